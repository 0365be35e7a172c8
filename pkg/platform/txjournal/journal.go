// Package txjournal gives in-memory stores transaction semantics: writes made
// inside Runner.Run register undo actions on a Journal carried in the context,
// and the journal is replayed in reverse when the transaction function fails.
package txjournal

import (
	"context"
	"sync"
)

type journalKey struct{}

// Journal collects undo actions for one transaction.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

// OnRollback registers fn to run if the enclosing transaction fails.
func (j *Journal) OnRollback(fn func()) {
	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

// Rollback runs registered actions newest first and clears the journal.
func (j *Journal) Rollback() {
	j.mu.Lock()
	undo := j.undo
	j.undo = nil
	j.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.undo)
}

func WithJournal(ctx context.Context, j *Journal) context.Context {
	return context.WithValue(ctx, journalKey{}, j)
}

// Record registers fn on the context's journal. Outside a transaction it is a no-op.
func Record(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*Journal); ok && j != nil {
		j.OnRollback(fn)
	}
}
