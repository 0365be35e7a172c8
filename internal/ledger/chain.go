package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	dErrors "rekamed/pkg/domain-errors"
)

// ErrStopWalk ends a Walk early without reporting an error.
var ErrStopWalk = errors.New("stop walk")

// Append links entry onto the chain held by store.
func Append(ctx context.Context, store Store, entry Entry, now time.Time) (*Block, error) {
	if entry.RecordID == "" || entry.Kind == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ledger entry needs a record id and kind")
	}
	if len(entry.Payload) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ledger entry payload is empty")
	}
	dataHash := DataHash(entry.Payload)
	createdAt := Timestamp(now)

	return store.Append(ctx, func(head *Block) (*Block, error) {
		b := &Block{
			RecordID:     entry.RecordID,
			Kind:         entry.Kind,
			DataHash:     dataHash,
			PreviousHash: GenesisHash,
			Payload:      entry.Payload,
			CreatedAt:    createdAt,
		}
		if head != nil {
			b.BlockID = head.BlockID + 1
			b.PreviousHash = ChainHash(head)
		}
		return b, nil
	})
}

// Verify walks the whole chain from genesis and reports the earliest
// inconsistency. It never writes.
func Verify(ctx context.Context, store Reader, now time.Time) (*Report, error) {
	report := &Report{OK: true, VerifiedAt: now.UTC()}
	var prev *Block
	expected := int64(0)

	err := store.Walk(ctx, 0, func(b *Block) error {
		if reason, badID := check(b, prev, expected); reason != "" {
			report.OK = false
			report.FirstBadBlockID = &badID
			report.Reason = reason
			return ErrStopWalk
		}
		report.Checked++
		prev = b
		expected++
		return nil
	})
	if err != nil && !errors.Is(err, ErrStopWalk) {
		return nil, fmt.Errorf("walk ledger: %w", err)
	}
	return report, nil
}

func check(b, prev *Block, expected int64) (string, int64) {
	if b.BlockID != expected {
		return ReasonGap, expected
	}
	want := GenesisHash
	if prev != nil {
		want = ChainHash(prev)
	}
	if b.PreviousHash != want {
		return ReasonPreviousMismatch, b.BlockID
	}
	if DataHash(b.Payload) != b.DataHash {
		return ReasonDataMismatch, b.BlockID
	}
	return "", 0
}
