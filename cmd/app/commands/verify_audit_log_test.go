package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

func TestRunVerifyAuditLog(t *testing.T) {
	ctx := context.Background()

	t.Run("intact-text", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("VerifyChain", ctx, uint64(1), uint64(0)).
			Return(&auditDomain.VerifyResult{Valid: true, From: 1, To: 12, Checked: 12}, nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunVerifyAuditLog(ctx, manager, discardLogger(), &out, 1, 0, "text"))
		assert.Contains(t, out.String(), "Checked entries 1..12 (12 entries)")
		assert.Contains(t, out.String(), "Chain is intact")
		manager.AssertExpectations(t)
	})

	t.Run("broken-json", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("VerifyChain", ctx, uint64(1), uint64(10)).Return(&auditDomain.VerifyResult{
			Valid:    false,
			BrokenAt: 4,
			Reason:   auditDomain.BreakHashMismatch,
			From:     1,
			To:       10,
			Checked:  4,
		}, nil).Once()

		var out bytes.Buffer
		err := RunVerifyAuditLog(ctx, manager, discardLogger(), &out, 1, 10, "json")
		require.ErrorContains(t, err, "broken at sequence 4")
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, false, result["valid"])
		assert.Equal(t, float64(4), result["broken_at"])
		assert.Equal(t, "hash_mismatch", result["reason"])
	})

	t.Run("invalid range", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("VerifyChain", ctx, uint64(9), uint64(3)).Return(nil, auditDomain.ErrInvalidRange).Once()

		err := RunVerifyAuditLog(ctx, manager, discardLogger(), &bytes.Buffer{}, 9, 3, "text")
		require.True(t, errors.Is(err, auditDomain.ErrInvalidRange))
	})
}
