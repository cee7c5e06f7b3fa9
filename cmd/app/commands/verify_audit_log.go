package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// RunVerifyAuditLog recomputes the audit chain over [from, to]. A zero to verifies up
// to the head of the log. A broken chain is reported and returned as an error so the
// process exits non-zero.
func RunVerifyAuditLog(
	ctx context.Context,
	manager cellUsecase.CellManager,
	logger *slog.Logger,
	writer io.Writer,
	from, to uint64,
	format string,
) error {
	logger.Info("verifying audit log", slog.Uint64("from", from), slog.Uint64("to", to))

	result, err := manager.VerifyChain(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to verify audit log: %w", err)
	}

	if format == "json" {
		view := map[string]any{
			"valid":   result.Valid,
			"from":    result.From,
			"to":      result.To,
			"checked": result.Checked,
		}
		if !result.Valid {
			view["broken_at"] = result.BrokenAt
			view["reason"] = result.Reason
		}
		if err := writeJSON(writer, view); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Checked entries %d..%d (%d entries)\n", result.From, result.To, result.Checked)
		if result.Valid {
			_, _ = fmt.Fprintln(writer, "Chain is intact")
		} else {
			_, _ = fmt.Fprintf(writer, "Chain broken at sequence %d: %s\n", result.BrokenAt, result.Reason)
		}
	}

	if !result.Valid {
		logger.Error("audit chain broken",
			slog.Uint64("broken_at", result.BrokenAt),
			slog.String("reason", string(result.Reason)),
		)
		return apperrors.Wrapf(apperrors.ErrIntegrity, "audit chain broken at sequence %d", result.BrokenAt)
	}
	return nil
}
