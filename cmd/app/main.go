// Package main is the cellvault command line: vault operations, key administration
// and the rotation scheduler.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	apperrors "github.com/allisson/cellvault/internal/errors"
)

var version = "dev"

// Exit statuses let scripts tell a refused request from a broken one.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitDenied    = 3
	exitIntegrity = 4
)

func exitCode(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return exitUsage
	case apperrors.Is(err, apperrors.ErrForbidden), apperrors.Is(err, apperrors.ErrUnauthorized):
		return exitDenied
	case apperrors.Is(err, apperrors.ErrIntegrity):
		return exitIntegrity
	default:
		return exitFailure
	}
}

func main() {
	cmd := &cli.Command{
		Name:     "cellvault",
		Usage:    "Cell-based secrets vault",
		Version:  version,
		Commands: getCommands(version),
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(exitCode(err))
	}
}
