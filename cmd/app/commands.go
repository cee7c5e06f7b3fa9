package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/allisson/cellvault/cmd/app/commands"
	"github.com/allisson/cellvault/internal/app"
	"github.com/allisson/cellvault/internal/config"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getKeyCommands()...)
	cmds = append(cmds, getCellCommands()...)
	cmds = append(cmds, getSecretCommands()...)
	return cmds
}

// identityFlags identify the caller a command acts as.
func identityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "subject",
			Aliases:  []string{"s"},
			Required: true,
			Sources:  cli.EnvVars("CELLVAULT_SUBJECT"),
			Usage:    "Authenticated subject the command acts as",
		},
		&cli.StringSliceFlag{
			Name:    "factor",
			Sources: cli.EnvVars("CELLVAULT_FACTORS"),
			Value:   []string{"password"},
			Usage:   "Authentication factors of the session (password, mfa, certificate)",
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func cellIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "cell-id",
		Aliases:  []string{"c"},
		Required: true,
		Usage:    "Cell ID (UUID)",
	}
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}
	return flags
}

func identityFrom(cmd *cli.Command) commands.Identity {
	return commands.Identity{
		Subject: cmd.String("subject"),
		Factors: cmd.StringSlice("factor"),
	}
}

// withManager builds the container, hands the cell manager to fn and shuts the
// container down afterwards.
func withManager(
	ctx context.Context,
	fn func(ctx context.Context, manager cellUsecase.CellManager, logger *slog.Logger) error,
) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	defer func() { _ = container.Shutdown(ctx) }()

	manager, err := container.CellManager()
	if err != nil {
		return fmt.Errorf("failed to initialize cell manager: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()

	return fn(ctx, manager, container.Logger().With(slog.String("component", "cli")))
}
