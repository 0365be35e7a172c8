package ledger

import (
	"strings"
	"time"
)

// GenesisHash is the previous_hash of block 0.
var GenesisHash = strings.Repeat("0", 64)

// Block is one hash-linked attestation. Blocks are immutable once stored.
type Block struct {
	BlockID      int64     `json:"block_id"`
	RecordID     string    `json:"record_id"`
	Kind         string    `json:"kind"`
	DataHash     string    `json:"data_hash"`
	PreviousHash string    `json:"previous_hash"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}

// Entry is what callers hand to Append. Payload must already be canonical:
// the same event must always serialize to the same bytes.
type Entry struct {
	RecordID string
	Kind     string
	Payload  []byte
}

// Report is the outcome of a full-chain verification.
type Report struct {
	OK              bool      `json:"ok"`
	Checked         int64     `json:"checked"`
	FirstBadBlockID *int64    `json:"first_bad_block_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	VerifiedAt      time.Time `json:"verified_at"`
}

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ListFilter pages through blocks by block_id.
type ListFilter struct {
	Order  Order
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Normalize clamps limits and defaults the order.
func (f ListFilter) Normalize() ListFilter {
	if f.Order != OrderDesc {
		f.Order = OrderAsc
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Verification failure reasons.
const (
	ReasonGap              = "missing_block"
	ReasonPreviousMismatch = "previous_hash_mismatch"
	ReasonDataMismatch     = "data_hash_mismatch"
)
