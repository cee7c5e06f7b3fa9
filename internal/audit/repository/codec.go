package repository

import (
	"encoding/json"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const entryColumns = `sequence, id, created_at, subject, cell_id, action, outcome, reason, signal_type,
	metadata, prev_hash, hash`

func encodeMetadata(entry *auditDomain.Entry) ([]byte, error) {
	if len(entry.Metadata) == 0 {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal audit metadata")
	}
	return data, nil
}

func decodeMetadata(entry *auditDomain.Entry, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var metadata map[string]string
	if err := json.Unmarshal(data, &metadata); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal audit metadata")
	}
	if len(metadata) > 0 {
		entry.Metadata = metadata
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
