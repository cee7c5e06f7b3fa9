package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// MasterKey is the root of the key hierarchy when the local custodian is used.
//
// The ID is opaque and should carry its own generation (for example
// "prod-master-2026-1"); a new generation is introduced through a manual
// ceremony by adding a key and switching the active ID.
type MasterKey struct {
	ID  string
	Key []byte
}

// MasterKeyChain holds every master key the deployment can unwrap with and marks
// one of them as active for new wraps.
//
// Older keys stay in the chain so CellKeys wrapped before a master key ceremony keep
// opening. Lookups are safe for concurrent use; Close zeroes every key and must run
// after the last lookup.
type MasterKeyChain struct {
	activeID string
	keys     sync.Map
}

// ActiveMasterKeyID returns the ID of the key used for new wraps.
func (m *MasterKeyChain) ActiveMasterKeyID() string {
	return m.activeID
}

// Get retrieves a master key by ID.
func (m *MasterKeyChain) Get(id string) (*MasterKey, bool) {
	if masterKey, ok := m.keys.Load(id); ok {
		return masterKey.(*MasterKey), ok
	}

	return nil, false
}

// Close zeroes every key and empties the chain.
func (m *MasterKeyChain) Close() {
	m.keys.Range(func(_, value any) bool {
		Zero(value.(*MasterKey).Key)
		return true
	})
	m.activeID = ""
	m.keys.Clear()
}

// NewMasterKeyChain parses raw master keys in the form "id1:base64key,id2:base64key"
// and marks activeID as the key for new wraps. Every key must decode to KeySize bytes.
// On any error the partially built chain is zeroed.
func NewMasterKeyChain(raw, activeID string) (*MasterKeyChain, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMasterKeysNotSet
	}
	if activeID == "" {
		return nil, ErrActiveMasterKeyIDNotSet
	}

	mkc := &MasterKeyChain{activeID: activeID}

	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 || p[0] == "" {
			mkc.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part)
		}
		id := p[0]
		key, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			mkc.Close()
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidMasterKeyBase64, id, err)
		}
		if len(key) != KeySize {
			Zero(key)
			mkc.Close()
			return nil, fmt.Errorf(
				"%w: master key %s must be %d bytes, got %d",
				ErrInvalidKeySize,
				id,
				KeySize,
				len(key),
			)
		}
		if _, loaded := mkc.keys.LoadOrStore(id, &MasterKey{ID: id, Key: key}); loaded {
			Zero(key)
			mkc.Close()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMasterKeyID, id)
		}
	}

	if _, ok := mkc.Get(activeID); !ok {
		mkc.Close()
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, activeID)
	}

	return mkc, nil
}
