package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/allisson/cellvault/cmd/app/commands"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

func getSecretCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "put-secret",
			Usage: "Store a new version of a secret",
			Flags: withFlags(identityFlags(), []cli.Flag{
				cellIDFlag(),
				&cli.StringFlag{
					Name:     "secret-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Secret identifier within the cell",
				},
				&cli.StringFlag{
					Name:  "value",
					Usage: "Secret value (omit to read it from stdin)",
				},
				formatFlag(),
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, logger *slog.Logger) error {
					return commands.RunPutSecret(
						ctx,
						manager,
						logger,
						commands.DefaultIO(),
						identityFrom(cmd),
						cmd.String("cell-id"),
						cmd.String("secret-id"),
						cmd.String("value"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "get-secret",
			Usage: "Decrypt and print a secret version",
			Flags: withFlags(identityFlags(), []cli.Flag{
				cellIDFlag(),
				&cli.StringFlag{
					Name:     "secret-id",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Secret identifier within the cell",
				},
				&cli.UintFlag{
					Name:  "secret-version",
					Value: 0,
					Usage: "Secret version to read (0 for the latest)",
				},
				formatFlag(),
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, _ *slog.Logger) error {
					return commands.RunGetSecret(
						ctx,
						manager,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.String("cell-id"),
						cmd.String("secret-id"),
						cmd.Uint("secret-version"),
						cmd.String("format"),
					)
				})
			},
		},
	}
}
