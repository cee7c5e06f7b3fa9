package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/allisson/cellvault/cmd/app/commands"
	"github.com/allisson/cellvault/internal/app"
	"github.com/allisson/cellvault/internal/config"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "run-scheduler",
			Usage: "Run the rotation scheduler and the ops server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunScheduler(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
			},
		},
		{
			Name:  "verify-audit-log",
			Usage: "Verify the hash chain of the audit log",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "from",
					Value: 1,
					Usage: "First sequence number to verify",
				},
				&cli.Uint64Flag{
					Name:  "to",
					Value: 0,
					Usage: "Last sequence number to verify (0 for the head of the log)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, logger *slog.Logger) error {
					return commands.RunVerifyAuditLog(
						ctx,
						manager,
						logger,
						commands.DefaultIO().Writer,
						cmd.Uint64("from"),
						cmd.Uint64("to"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "unlock-subject",
			Usage: "Clear the lockout of a subject (caller must be in OPERATOR_SUBJECTS)",
			Flags: withFlags(identityFlags(), []cli.Flag{
				&cli.StringFlag{
					Name:     "target",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Subject to unlock",
				},
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, _ *slog.Logger) error {
					return commands.RunUnlockSubject(
						ctx,
						manager,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.String("target"),
					)
				})
			},
		},
	}
}
