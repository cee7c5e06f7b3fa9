package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
)

func TestRunPutSecret(t *testing.T) {
	ctx := context.Background()
	cellID := uuid.Must(uuid.NewV7())
	stored := &cellDomain.SecretVersion{CellID: cellID, SecretID: "db-password", Version: 3, KeyVersion: 2}

	t.Run("value from flag", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("PutSecret", ctx, mock.Anything, mock.MatchedBy(func(input *cellDomain.PutSecretInput) bool {
			return input.CellID == cellID && input.SecretID == "db-password" && string(input.Plaintext) == "hunter2"
		})).Return(stored, nil).Once()

		var out bytes.Buffer
		streams := IOTuple{Reader: strings.NewReader("ignored"), Writer: &out}
		err := RunPutSecret(ctx, manager, discardLogger(), streams, operator(), cellID.String(), "db-password", "hunter2", "text")
		require.NoError(t, err)
		assert.Contains(t, out.String(), "version 3 (key version 2)")
		manager.AssertExpectations(t)
	})

	t.Run("value from reader", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("PutSecret", ctx, mock.Anything, mock.MatchedBy(func(input *cellDomain.PutSecretInput) bool {
			return string(input.Plaintext) == "from-stdin"
		})).Return(stored, nil).Once()

		var out bytes.Buffer
		streams := IOTuple{Reader: strings.NewReader("from-stdin\n"), Writer: &out}
		err := RunPutSecret(ctx, manager, discardLogger(), streams, operator(), cellID.String(), "db-password", "", "json")
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, float64(3), result["version"])
		manager.AssertExpectations(t)
	})

	t.Run("empty reader", func(t *testing.T) {
		streams := IOTuple{Reader: strings.NewReader("\n"), Writer: io.Discard}
		err := RunPutSecret(ctx, &mockCellManager{}, discardLogger(), streams, operator(), cellID.String(), "k", "", "text")
		require.ErrorContains(t, err, "secret value is required")
	})

	t.Run("denied", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("PutSecret", ctx, mock.Anything, mock.Anything).Return(nil, accessDomain.ErrPolicyDenied).Once()

		streams := IOTuple{Writer: io.Discard}
		err := RunPutSecret(ctx, manager, discardLogger(), streams, operator(), cellID.String(), "k", "v", "text")
		require.ErrorIs(t, err, accessDomain.ErrPolicyDenied)
	})
}

func TestRunGetSecret(t *testing.T) {
	ctx := context.Background()
	cellID := uuid.Must(uuid.NewV7())

	t.Run("text zeroes plaintext", func(t *testing.T) {
		plaintext := []byte("hunter2")
		secret := &cellDomain.SecretVersion{CellID: cellID, SecretID: "db-password", Version: 1, Plaintext: plaintext}
		manager := &mockCellManager{}
		manager.On("GetSecret", ctx, mock.Anything, cellID, "db-password", uint(0)).Return(secret, nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunGetSecret(ctx, manager, &out, operator(), cellID.String(), "db-password", 0, "text"))
		assert.Equal(t, "hunter2\n", out.String())
		assert.Equal(t, make([]byte, len(plaintext)), plaintext)
		assert.Nil(t, secret.Plaintext)
	})

	t.Run("json", func(t *testing.T) {
		secret := &cellDomain.SecretVersion{CellID: cellID, SecretID: "db-password", Version: 2, Plaintext: []byte("v2")}
		manager := &mockCellManager{}
		manager.On("GetSecret", ctx, mock.Anything, cellID, "db-password", uint(2)).Return(secret, nil).Once()

		var out bytes.Buffer
		require.NoError(t, RunGetSecret(ctx, manager, &out, operator(), cellID.String(), "db-password", 2, "json"))

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, "v2", result["value"])
	})

	t.Run("not found", func(t *testing.T) {
		manager := &mockCellManager{}
		manager.On("GetSecret", ctx, mock.Anything, cellID, "missing", uint(0)).
			Return(nil, cellDomain.ErrSecretNotFound).Once()

		err := RunGetSecret(ctx, manager, io.Discard, operator(), cellID.String(), "missing", 0, "text")
		require.ErrorIs(t, err, cellDomain.ErrSecretNotFound)
	})
}
