package domain

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestEntry() *Entry {
	return &Entry{
		Sequence:  7,
		ID:        uuid.Must(uuid.NewV7()),
		Timestamp: time.Date(2026, 5, 4, 3, 2, 1, 123000, time.UTC),
		Subject:   "svc:billing",
		CellID:    uuid.Must(uuid.NewV7()),
		Action:    "put_secret",
		Outcome:   OutcomeAllow,
		Metadata:  map[string]string{"secret_id": "db/password", "version": "3"},
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	entry := createTestEntry()
	prev := bytes.Repeat([]byte{9}, HashSize)

	h1, err := ComputeHash(prev, entry)
	require.NoError(t, err)
	h2, err := ComputeHash(prev, entry)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, HashSize)

	other, err := ComputeHash(GenesisHash, entry)
	require.NoError(t, err)
	assert.NotEqual(t, h1, other)
}

func TestComputeHash_EveryFieldIsBound(t *testing.T) {
	base := createTestEntry()
	want, err := ComputeHash(GenesisHash, base)
	require.NoError(t, err)

	mutations := map[string]func(e *Entry){
		"sequence":  func(e *Entry) { e.Sequence++ },
		"id":        func(e *Entry) { e.ID = uuid.Must(uuid.NewV7()) },
		"timestamp": func(e *Entry) { e.Timestamp = e.Timestamp.Add(time.Microsecond) },
		"subject":   func(e *Entry) { e.Subject = "svc:other" },
		"cell":      func(e *Entry) { e.CellID = uuid.Must(uuid.NewV7()) },
		"action":    func(e *Entry) { e.Action = "get_secret" },
		"outcome":   func(e *Entry) { e.Outcome = OutcomeDeny },
		"reason":    func(e *Entry) { e.Reason = "policy_denied" },
		"signal":    func(e *Entry) { e.Signal = SignalTamperSuspected },
		"metadata":  func(e *Entry) { e.Metadata["version"] = "4" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			entry := *base
			entry.Metadata = map[string]string{}
			for k, v := range base.Metadata {
				entry.Metadata[k] = v
			}
			mutate(&entry)

			got, err := ComputeHash(GenesisHash, &entry)
			require.NoError(t, err)
			assert.NotEqual(t, want, got)
		})
	}
}

func TestCanonicalize_FieldBoundaries(t *testing.T) {
	a := createTestEntry()
	a.Subject, a.Action = "ab", "c"
	b := *a
	b.Subject, b.Action = "a", "bc"

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(&b)
	require.NoError(t, err)
	assert.NotEqual(t, ca, cb)
}

func TestCanonicalize_EmptyMetadata(t *testing.T) {
	a := createTestEntry()
	a.Metadata = nil
	b := *a
	b.Metadata = map[string]string{}

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(&b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}
