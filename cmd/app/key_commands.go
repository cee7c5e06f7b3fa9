package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/allisson/cellvault/cmd/app/commands"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-key",
			Usage: "Generate a new master key for the local custodian",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Value:   "",
					Usage:   "Master key ID (e.g., prod-master-key-2026)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateMasterKey(commands.DefaultIO().Writer, cmd.String("id"))
			},
		},
		{
			Name:  "rotate-cell",
			Usage: "Advance a cell to a new cell key version",
			Flags: withFlags(identityFlags(), []cli.Flag{cellIDFlag(), formatFlag()}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, logger *slog.Logger) error {
					return commands.RunRotateCell(
						ctx,
						manager,
						logger,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.String("cell-id"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "migrate-cell",
			Usage: "Re-wrap every data key of a cell onto its current cell key version",
			Flags: withFlags(identityFlags(), []cli.Flag{cellIDFlag(), formatFlag()}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, _ *slog.Logger) error {
					return commands.RunMigrateCell(
						ctx,
						manager,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.String("cell-id"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "retire-key-version",
			Usage: "Retire a cell key version no secret references",
			Flags: withFlags(identityFlags(), []cli.Flag{
				cellIDFlag(),
				&cli.UintFlag{
					Name:     "version",
					Required: true,
					Usage:    "Cell key version to retire",
				},
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, _ *slog.Logger) error {
					return commands.RunRetireKeyVersion(
						ctx,
						manager,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.String("cell-id"),
						cmd.Uint("version"),
					)
				})
			},
		},
	}
}
