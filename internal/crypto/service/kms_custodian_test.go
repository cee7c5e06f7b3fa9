package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gocloud.dev/gcerrors"
	"gocloud.dev/secrets"
	"gocloud.dev/secrets/driver"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// generateLocalSecretsURI generates a base64key:// URI for testing.
func generateLocalSecretsURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

type mockKeeper struct {
	mock.Mock
}

func (m *mockKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKeeper) Close() error {
	return m.Called().Error(0)
}

// codedKeeper is a driver.Keeper whose every call fails with code.
type codedKeeper struct {
	code gcerrors.ErrorCode
}

func (k codedKeeper) Decrypt(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("kms refused the request")
}

func (k codedKeeper) Encrypt(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("kms refused the request")
}

func (k codedKeeper) Close() error                       { return nil }
func (k codedKeeper) ErrorAs(error, any) bool            { return false }
func (k codedKeeper) ErrorCode(error) gcerrors.ErrorCode { return k.code }

var _ driver.Keeper = codedKeeper{}

func TestKMSCustodian_LocalSecrets(t *testing.T) {
	ctx := context.Background()

	custodian, err := OpenKMSCustodian(ctx, generateLocalSecretsURI(t), "kms-key-1")
	require.NoError(t, err)
	defer func() { _ = custodian.Close() }()

	assert.Equal(t, "kms-key-1", custodian.MasterKeyID())

	wrapped, err := custodian.WrapWithMaster(ctx, []byte("material"))
	require.NoError(t, err)

	got, err := custodian.UnwrapWithMaster(ctx, "kms-key-1", wrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("material"), got)

	tampered := append([]byte{}, wrapped...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = custodian.UnwrapWithMaster(ctx, "kms-key-1", tampered)
	assert.ErrorIs(t, err, cryptoDomain.ErrUnwrapIntegrity)

	_, err = custodian.UnwrapWithMaster(ctx, "other-key", wrapped)
	assert.ErrorIs(t, err, cryptoDomain.ErrMasterKeyNotFound)
}

func TestOpenKMSCustodian_InvalidURI(t *testing.T) {
	_, err := OpenKMSCustodian(context.Background(), "nope://key", "id")
	assert.Error(t, err)
}

func TestKMSCustodian_ErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("deadline is a timeout", func(t *testing.T) {
		keeper := &mockKeeper{}
		keeper.On("Encrypt", ctx, []byte("x")).Return(nil, context.DeadlineExceeded)

		_, err := NewKMSCustodian(keeper, "id").WrapWithMaster(ctx, []byte("x"))
		assert.ErrorIs(t, err, apperrors.ErrTimeout)
		keeper.AssertExpectations(t)
	})

	t.Run("encrypt failure is unavailable", func(t *testing.T) {
		keeper := &mockKeeper{}
		keeper.On("Encrypt", ctx, []byte("x")).Return(nil, errors.New("connection reset"))

		_, err := NewKMSCustodian(keeper, "id").WrapWithMaster(ctx, []byte("x"))
		assert.ErrorIs(t, err, cryptoDomain.ErrCustodianUnavailable)
		assert.True(t, apperrors.IsTransient(err))
	})

	t.Run("uncoded decrypt failure is unavailable", func(t *testing.T) {
		keeper := &mockKeeper{}
		keeper.On("Decrypt", ctx, []byte("blob")).Return(nil, errors.New("stream reset"))

		_, err := NewKMSCustodian(keeper, "id").UnwrapWithMaster(ctx, "id", []byte("blob"))
		assert.ErrorIs(t, err, cryptoDomain.ErrCustodianUnavailable)
		assert.NotErrorIs(t, err, cryptoDomain.ErrUnwrapIntegrity)
		assert.True(t, apperrors.IsTransient(err))
		keeper.AssertExpectations(t)
	})

	decryptCases := []struct {
		code      gcerrors.ErrorCode
		integrity bool
	}{
		{gcerrors.InvalidArgument, true},
		{gcerrors.Unknown, false},
		{gcerrors.Internal, false},
		{gcerrors.NotFound, false},
		{gcerrors.PermissionDenied, false},
		{gcerrors.FailedPrecondition, false},
		{gcerrors.ResourceExhausted, false},
	}
	for _, tc := range decryptCases {
		t.Run("decrypt "+tc.code.String(), func(t *testing.T) {
			keeper := secrets.NewKeeper(codedKeeper{code: tc.code})
			defer func() { _ = keeper.Close() }()

			_, err := NewKMSCustodian(keeper, "id").UnwrapWithMaster(ctx, "id", []byte("blob"))
			if tc.integrity {
				assert.ErrorIs(t, err, cryptoDomain.ErrUnwrapIntegrity)
				assert.False(t, apperrors.IsTransient(err))
				return
			}
			assert.ErrorIs(t, err, cryptoDomain.ErrCustodianUnavailable)
			assert.True(t, apperrors.IsTransient(err))
		})
	}

	t.Run("invalid argument on encrypt is unavailable", func(t *testing.T) {
		keeper := secrets.NewKeeper(codedKeeper{code: gcerrors.InvalidArgument})
		defer func() { _ = keeper.Close() }()

		_, err := NewKMSCustodian(keeper, "id").WrapWithMaster(ctx, []byte("x"))
		assert.ErrorIs(t, err, cryptoDomain.ErrCustodianUnavailable)
	})

	t.Run("gocloud internal code is unavailable", func(t *testing.T) {
		assert.Equal(t, gcerrors.Unknown, gcerrors.Code(errors.New("plain")))

		keeper, err := secrets.OpenKeeper(ctx, generateLocalSecretsURI(t))
		require.NoError(t, err)
		require.NoError(t, keeper.Close())

		_, err = NewKMSCustodian(keeper, "id").WrapWithMaster(ctx, []byte("x"))
		assert.Error(t, err)
		assert.True(t, apperrors.IsTransient(err) || errors.Is(err, cryptoDomain.ErrCustodianUnavailable))
	})
}
