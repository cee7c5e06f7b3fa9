package domain

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellKey_Usable(t *testing.T) {
	active := &CellKey{State: KeyStateActive, WrappedKey: []byte("wrapped")}
	assert.NoError(t, active.Usable())

	retiring := &CellKey{State: KeyStateRetiring, WrappedKey: []byte("wrapped")}
	assert.NoError(t, retiring.Usable())

	retired := &CellKey{State: KeyStateRetired}
	assert.ErrorIs(t, retired.Usable(), ErrKeyRevoked)
}

func TestNewKeyRing(t *testing.T) {
	cellID := uuid.Must(uuid.NewV7())
	keys := []*CellKey{
		{CellID: cellID, Version: 3, State: KeyStateActive},
		{CellID: cellID, Version: 1, State: KeyStateRetired},
		{CellID: cellID, Version: 2, State: KeyStateRetiring},
	}

	ring, err := NewKeyRing(cellID, 3, keys)
	require.NoError(t, err)

	assert.Equal(t, cellID, ring.CellID())
	assert.Equal(t, uint(3), ring.CurrentVersion())
	assert.Equal(t, uint(3), ring.Current().Version)

	versions := ring.Versions()
	require.Len(t, versions, 3)
	assert.Equal(t, uint(1), versions[0].Version)
	assert.Equal(t, uint(3), versions[2].Version)

	got, ok := ring.Get(2)
	require.True(t, ok)
	assert.Equal(t, KeyStateRetiring, got.State)
	_, ok = ring.Get(4)
	assert.False(t, ok)

	retiring := ring.InState(KeyStateRetiring)
	require.Len(t, retiring, 1)
	assert.Equal(t, uint(2), retiring[0].Version)

	// the caller's slice is not reordered
	assert.Equal(t, uint(3), keys[0].Version)
}

func TestNewKeyRing_DanglingPointer(t *testing.T) {
	cellID := uuid.Must(uuid.NewV7())
	_, err := NewKeyRing(cellID, 2, []*CellKey{{CellID: cellID, Version: 1}})
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestBindKeyMaterial(t *testing.T) {
	cellID := uuid.Must(uuid.NewV7())
	otherCell := uuid.Must(uuid.NewV7())
	key := bytes.Repeat([]byte{0xAB}, KeySize)

	material := BindKeyMaterial(cellID, 4, key)

	got, err := UnbindKeyMaterial(cellID, 4, material)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = UnbindKeyMaterial(otherCell, 4, material)
	assert.ErrorIs(t, err, ErrUnwrapIntegrity)

	_, err = UnbindKeyMaterial(cellID, 5, material)
	assert.ErrorIs(t, err, ErrUnwrapIntegrity)

	_, err = UnbindKeyMaterial(cellID, 4, material[:10])
	assert.ErrorIs(t, err, ErrUnwrapIntegrity)
}

func TestDataKeyAAD(t *testing.T) {
	cellID := uuid.Must(uuid.NewV7())
	assert.Equal(t, DataKeyAAD(cellID, 1), DataKeyAAD(cellID, 1))
	assert.NotEqual(t, DataKeyAAD(cellID, 1), DataKeyAAD(cellID, 2))
	assert.NotEqual(t, DataKeyAAD(cellID, 1), DataKeyAAD(uuid.Must(uuid.NewV7()), 1))
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("aes-gcm")
	require.NoError(t, err)
	assert.Equal(t, AESGCM, alg)

	alg, err = ParseAlgorithm("chacha20-poly1305")
	require.NoError(t, err)
	assert.Equal(t, ChaCha20, alg)

	_, err = ParseAlgorithm("rot13")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
