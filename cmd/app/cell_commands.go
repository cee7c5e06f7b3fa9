package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/allisson/cellvault/cmd/app/commands"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

func getCellCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-cell",
			Usage: "Create a new cell",
			Flags: withFlags(identityFlags(), []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Unique cell name",
				},
				&cli.StringFlag{
					Name:  "description",
					Usage: "Human-readable description",
				},
				&cli.StringFlag{
					Name:  "organization-id",
					Usage: "Organization the cell belongs to",
				},
				&cli.IntFlag{
					Name:  "rotation-days",
					Value: 0,
					Usage: "Cell key rotation interval in days (0 for the configured default)",
				},
				&cli.StringFlag{
					Name:  "owner",
					Usage: "Subject granted every action on the new cell",
				},
				formatFlag(),
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, logger *slog.Logger) error {
					return commands.RunCreateCell(
						ctx,
						manager,
						logger,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						commands.CreateCellOptions{
							Name:           cmd.String("name"),
							Description:    cmd.String("description"),
							OrganizationID: cmd.String("organization-id"),
							RotationDays:   cmd.Int("rotation-days"),
							Owner:          cmd.String("owner"),
						},
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "list-cells",
			Usage: "List cells ordered by name",
			Flags: withFlags(identityFlags(), []cli.Flag{
				&cli.IntFlag{
					Name:  "offset",
					Value: 0,
					Usage: "Number of cells to skip",
				},
				&cli.IntFlag{
					Name:  "limit",
					Value: 50,
					Usage: "Maximum number of cells to return",
				},
				formatFlag(),
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, _ *slog.Logger) error {
					return commands.RunListCells(
						ctx,
						manager,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.Int("offset"),
						cmd.Int("limit"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "grant-policy",
			Usage: "Grant a subject actions on a cell",
			Flags: withFlags(identityFlags(), []cli.Flag{
				cellIDFlag(),
				&cli.StringFlag{
					Name:     "grantee",
					Aliases:  []string{"g"},
					Required: true,
					Usage:    "Subject the policy applies to",
				},
				&cli.StringFlag{
					Name:     "actions",
					Aliases:  []string{"a"},
					Required: true,
					Usage:    "Comma-separated actions (read, write, rotate, administer)",
				},
				&cli.BoolFlag{
					Name:  "require-mfa",
					Usage: "Only allow sessions carrying the mfa factor",
				},
				&cli.Int64Flag{
					Name:  "max-uses",
					Usage: "Maximum number of operations the policy may grant",
				},
				&cli.StringFlag{
					Name:  "not-before",
					Usage: "Start of the validity window (RFC 3339)",
				},
				&cli.StringFlag{
					Name:  "not-after",
					Usage: "End of the validity window (RFC 3339)",
				},
				formatFlag(),
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, logger *slog.Logger) error {
					return commands.RunGrantPolicy(
						ctx,
						manager,
						logger,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						commands.GrantPolicyOptions{
							CellID:     cmd.String("cell-id"),
							Subject:    cmd.String("grantee"),
							Actions:    cmd.String("actions"),
							RequireMFA: cmd.Bool("require-mfa"),
							MaxUses:    cmd.Int64("max-uses"),
							NotBefore:  cmd.String("not-before"),
							NotAfter:   cmd.String("not-after"),
						},
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "revoke-policy",
			Usage: "Remove a policy from a cell",
			Flags: withFlags(identityFlags(), []cli.Flag{
				cellIDFlag(),
				&cli.StringFlag{
					Name:     "policy-id",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Policy ID (UUID)",
				},
			}),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withManager(ctx, func(ctx context.Context, manager cellUsecase.CellManager, _ *slog.Logger) error {
					return commands.RunRevokePolicy(
						ctx,
						manager,
						commands.DefaultIO().Writer,
						identityFrom(cmd),
						cmd.String("cell-id"),
						cmd.String("policy-id"),
					)
				})
			},
		},
	}
}
