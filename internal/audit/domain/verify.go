package domain

// BreakReason describes why a chain check failed.
type BreakReason string

const (
	BreakNone BreakReason = ""
	// BreakSequenceGap means an expected sequence number is missing.
	BreakSequenceGap BreakReason = "sequence_gap"
	// BreakPrevHashMismatch means the entry does not link to its predecessor.
	BreakPrevHashMismatch BreakReason = "prev_hash_mismatch"
	// BreakHashMismatch means the entry's fields no longer match its hash.
	BreakHashMismatch BreakReason = "hash_mismatch"
)

// VerifyResult reports the outcome of verifying [From, To]. When Valid is false,
// BrokenAt is the first sequence number that failed.
type VerifyResult struct {
	Valid    bool
	BrokenAt uint64
	Reason   BreakReason
	From     uint64
	To       uint64
	Checked  int64
}
