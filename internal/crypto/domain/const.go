package domain

// Algorithm identifies the AEAD cipher used for a wrap or a secret ciphertext.
//
// Both supported algorithms take a 256-bit key, a 96-bit nonce, and produce a
// 128-bit authentication tag, so a wrapped blob that was altered in any way is
// rejected on open instead of yielding a wrong key.
type Algorithm string

const (
	// AESGCM is AES-256 in Galois/Counter Mode. Preferred on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305. Preferred where AES hardware support is missing.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// KeySize is the length in bytes of every symmetric key in the hierarchy.
const KeySize = 32

// ParseAlgorithm converts a configuration string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM, ChaCha20:
		return Algorithm(s), nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

// KeyState is the lifecycle state of one CellKey version.
//
//	Active --(rotate)--> Retiring --(all references migrated)--> Retired
//
// A Retired version has had its wrapped material purged and can never unwrap again.
type KeyState string

const (
	KeyStateActive   KeyState = "active"
	KeyStateRetiring KeyState = "retiring"
	KeyStateRetired  KeyState = "retired"
)
