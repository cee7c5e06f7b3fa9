package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"gocloud.dev/gcerrors"
	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"

	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	"gocloud.dev/secrets/localsecrets"
)

// Keeper is the subset of *secrets.Keeper the custodian needs.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSCustodian delegates master key operations to a cloud KMS or HSM-backed keeper.
//
// Supported URIs follow gocloud.dev/secrets: awskms://, gcpkms://, azurekeyvault://,
// hashivault://, and base64key:// for local testing.
//
// Error mapping:
//   - Context cancellation and KMS deadlines become apperrors.ErrTimeout
//   - A decrypt the KMS rejects as InvalidArgument becomes ErrUnwrapIntegrity
//   - Everything else, including unknown driver errors, becomes ErrCustodianUnavailable,
//     which callers retry
//
// Every wrap and unwrap is a network round trip, so CellKeys are opened once per
// operation rather than per secret. The underlying keeper is safe for concurrent use.
//
// Example:
//
//	custodian, err := OpenKMSCustodian(ctx, "awskms://alias/cellvault?region=us-east-1", "aws-prod-1")
//	if err != nil {
//		return err
//	}
//	defer custodian.Close()
type KMSCustodian struct {
	keeper      Keeper
	masterKeyID string

	// offline is set for base64key:// keepers, which decrypt in process.
	offline bool
}

// NewKMSCustodian wraps an already opened keeper.
func NewKMSCustodian(keeper Keeper, masterKeyID string) *KMSCustodian {
	return &KMSCustodian{keeper: keeper, masterKeyID: masterKeyID}
}

// OpenKMSCustodian opens the keeper at keyURI. masterKeyID is recorded on every
// CellKey wrapped through this custodian.
func OpenKMSCustodian(ctx context.Context, keyURI, masterKeyID string) (*KMSCustodian, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	custodian := NewKMSCustodian(keeper, masterKeyID)
	custodian.offline = strings.HasPrefix(keyURI, localsecrets.Scheme+"://")
	return custodian, nil
}

// MasterKeyID returns the configured master key ID.
func (c *KMSCustodian) MasterKeyID() string {
	return c.masterKeyID
}

// WrapWithMaster encrypts plaintext with the KMS key.
func (c *KMSCustodian) WrapWithMaster(ctx context.Context, plaintext []byte) ([]byte, error) {
	wrapped, err := c.keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, classifyKeeperError(err, false)
	}
	return wrapped, nil
}

// UnwrapWithMaster decrypts wrapped with the KMS key. Blobs recorded under another
// master key ID are refused without calling the KMS.
func (c *KMSCustodian) UnwrapWithMaster(
	ctx context.Context,
	masterKeyID string,
	wrapped []byte,
) ([]byte, error) {
	if masterKeyID != c.masterKeyID {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrMasterKeyNotFound, masterKeyID)
	}
	plaintext, err := c.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		// An in-process keeper has no transport that could fail.
		if c.offline && gcerrors.Code(err) == gcerrors.Unknown {
			return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrUnwrapIntegrity, err)
		}
		return nil, classifyKeeperError(err, true)
	}
	return plaintext, nil
}

// Close releases the keeper.
func (c *KMSCustodian) Close() error {
	return c.keeper.Close()
}

// classifyKeeperError separates a blob the KMS explicitly refused to open (integrity)
// from everything else (transient). Drivers report ciphertext rejection as
// InvalidArgument: awskms InvalidCiphertextException, gcpkms INVALID_ARGUMENT and
// azurekeyvault 400. Unknown codes stay transient so an outage is never mistaken
// for tampering.
func classifyKeeperError(err error, decrypting bool) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.FromContext(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", cryptoDomain.ErrCustodianUnavailable, err)
	}

	switch code := gcerrors.Code(err); {
	case code == gcerrors.DeadlineExceeded, code == gcerrors.Canceled:
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	case decrypting && code == gcerrors.InvalidArgument:
		return fmt.Errorf("%w: %v", cryptoDomain.ErrUnwrapIntegrity, err)
	}
	return fmt.Errorf("%w: %v", cryptoDomain.ErrCustodianUnavailable, err)
}
