package commands

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// RunCreateMasterKey generates a 32-byte master key for the local custodian and prints
// it as MASTER_KEYS/ACTIVE_MASTER_KEY_ID lines. Key material is zeroed after encoding.
// If keyID is empty, generates a default ID in format "master-key-YYYY-MM-DD".
//
// KMS-backed deployments do not need this command: the KMS key never leaves the KMS.
func RunCreateMasterKey(writer io.Writer, keyID string) error {
	if keyID == "" {
		keyID = fmt.Sprintf("master-key-%s", time.Now().UTC().Format("2006-01-02"))
	}

	masterKey := make([]byte, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(masterKey)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	encodedKey := base64.StdEncoding.EncodeToString(masterKey)

	_, _ = fmt.Fprintln(writer, "# Master Key Configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s:%s\"\n", keyID, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "# To rotate, append a new key and switch the active id; keep old keys until")
	_, _ = fmt.Fprintln(writer, "# every cell key wrapped under them has been rotated away:")
	_, _ = fmt.Fprintf(writer, "# MASTER_KEYS=\"%s:...,new-key:...\"\n", keyID)
	_, _ = fmt.Fprintln(writer, "# ACTIVE_MASTER_KEY_ID=\"new-key\"")
	return nil
}
