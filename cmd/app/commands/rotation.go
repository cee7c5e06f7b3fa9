package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

// RunRotateCell advances a cell to a new CellKey version.
func RunRotateCell(
	ctx context.Context,
	manager cellUsecase.CellManager,
	logger *slog.Logger,
	writer io.Writer,
	identity Identity,
	cellIDValue string,
	format string,
) error {
	cellID, err := parseID("cell id", cellIDValue)
	if err != nil {
		return err
	}

	version, err := manager.RotateCell(ctx, identity.Claims(), cellID)
	if err != nil {
		return fmt.Errorf("failed to rotate cell: %w", err)
	}

	logger.Info("cell rotated", slog.String("cell_id", cellID.String()), slog.Uint64("version", uint64(version)))

	if format == "json" {
		return writeJSON(writer, map[string]any{"cell_id": cellID, "key_version": version})
	}
	_, _ = fmt.Fprintf(writer, "Cell %s rotated to key version %d\n", cellID, version)
	return nil
}

// RunMigrateCell re-wraps every DataKey of a cell onto its current CellKey version.
// A sweep that leaves failed secrets behind is reported as an error.
func RunMigrateCell(
	ctx context.Context,
	manager cellUsecase.CellManager,
	writer io.Writer,
	identity Identity,
	cellIDValue string,
	format string,
) error {
	cellID, err := parseID("cell id", cellIDValue)
	if err != nil {
		return err
	}

	report, err := manager.MigrateCell(ctx, identity.Claims(), cellID)
	if err != nil {
		return fmt.Errorf("failed to migrate cell: %w", err)
	}

	if format == "json" {
		if err := writeJSON(writer, map[string]any{
			"cell_id":        report.CellID,
			"target_version": report.TargetVersion,
			"migrated":       report.Migrated,
			"skipped":        report.Skipped,
			"failed":         report.Failed,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Migrated %d, skipped %d, failed %d (target key version %d)\n",
			report.Migrated, report.Skipped, report.Failed, report.TargetVersion)
	}

	if report.Failed > 0 {
		return fmt.Errorf("migration left %d secrets on older key versions", report.Failed)
	}
	return nil
}

// RunRetireKeyVersion retires a CellKey version no secret references.
func RunRetireKeyVersion(
	ctx context.Context,
	manager cellUsecase.CellManager,
	writer io.Writer,
	identity Identity,
	cellIDValue string,
	version uint,
) error {
	cellID, err := parseID("cell id", cellIDValue)
	if err != nil {
		return err
	}
	if version == 0 {
		return fmt.Errorf("key version is required")
	}

	if err := manager.RetireCellKeyVersion(ctx, identity.Claims(), cellID, version); err != nil {
		return fmt.Errorf("failed to retire key version: %w", err)
	}
	_, _ = fmt.Fprintf(writer, "Key version %d of cell %s retired\n", version, cellID)
	return nil
}
