package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

// RunPutSecret stores a new version of a secret. When value is empty the plaintext is
// read from the reader, so secrets do not have to appear in the process arguments.
func RunPutSecret(
	ctx context.Context,
	manager cellUsecase.CellManager,
	logger *slog.Logger,
	streams IOTuple,
	identity Identity,
	cellIDValue, secretID, value string,
	format string,
) error {
	cellID, err := parseID("cell id", cellIDValue)
	if err != nil {
		return err
	}

	plaintext := []byte(value)
	if value == "" {
		plaintext, err = readPlaintext(streams.Reader)
		if err != nil {
			return err
		}
	}

	secret, err := manager.PutSecret(ctx, identity.Claims(), &cellDomain.PutSecretInput{
		CellID:    cellID,
		SecretID:  secretID,
		Plaintext: plaintext,
	})
	if err != nil {
		return fmt.Errorf("failed to put secret: %w", err)
	}

	logger.Info("secret stored",
		slog.String("cell_id", cellID.String()),
		slog.String("secret_id", secretID),
		slog.Uint64("version", uint64(secret.Version)),
	)

	if format == "json" {
		return writeJSON(streams.Writer, map[string]any{
			"cell_id":         secret.CellID,
			"secret_id":       secret.SecretID,
			"version":         secret.Version,
			"key_version":     secret.KeyVersion,
			"created_at":      secret.CreatedAt,
			"rotation_due_at": secret.RotationDueAt,
		})
	}
	_, _ = fmt.Fprintf(streams.Writer, "Secret %s stored as version %d (key version %d)\n",
		secret.SecretID, secret.Version, secret.KeyVersion)
	return nil
}

// RunGetSecret prints a decrypted secret version, or the latest when version is zero.
func RunGetSecret(
	ctx context.Context,
	manager cellUsecase.CellManager,
	writer io.Writer,
	identity Identity,
	cellIDValue, secretID string,
	version uint,
	format string,
) error {
	cellID, err := parseID("cell id", cellIDValue)
	if err != nil {
		return err
	}

	secret, err := manager.GetSecret(ctx, identity.Claims(), cellID, secretID, version)
	if err != nil {
		return fmt.Errorf("failed to get secret: %w", err)
	}
	defer secret.ZeroPlaintext()

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"cell_id":     secret.CellID,
			"secret_id":   secret.SecretID,
			"version":     secret.Version,
			"key_version": secret.KeyVersion,
			"value":       string(secret.Plaintext),
		})
	}
	_, _ = writer.Write(secret.Plaintext)
	_, _ = fmt.Fprintln(writer)
	return nil
}

func readPlaintext(reader io.Reader) ([]byte, error) {
	if reader == nil {
		return nil, errors.New("secret value is required")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret value: %w", err)
	}
	data = bytes.TrimRight(data, "\r\n")
	if len(data) == 0 {
		return nil, errors.New("secret value is required")
	}
	return data, nil
}
