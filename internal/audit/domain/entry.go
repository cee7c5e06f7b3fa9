// Package domain defines the tamper-evident audit log: entries, the hash chain that
// links them, and the result of verifying a range of the chain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of the audited operation.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	OutcomeError Outcome = "error"
)

// Signal flags entries that need attention beyond their outcome.
type Signal string

const (
	SignalNone Signal = ""
	// SignalTamperSuspected marks an integrity failure while unwrapping a key or
	// opening a ciphertext. It indicates corruption or an attack, not a denial.
	SignalTamperSuspected Signal = "tamper_suspected"
)

// Entry is one immutable audit record. Sequence, ID, Timestamp, PrevHash and Hash are
// assigned by the audit log when the entry is appended.
//
// Metadata carries operation details such as secret ids and version numbers. It must
// never contain key material or secret plaintext.
type Entry struct {
	Sequence  uint64
	ID        uuid.UUID
	Timestamp time.Time
	Subject   string
	CellID    uuid.UUID
	Action    string
	Outcome   Outcome
	Reason    string
	Signal    Signal
	Metadata  map[string]string
	PrevHash  []byte
	Hash      []byte
}
