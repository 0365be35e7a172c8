package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rekamed/internal/ledger"
	ledgerstore "rekamed/internal/ledger/store"
	"rekamed/pkg/testutil"
)

func seeded(t *testing.T, n int) *ledgerstore.InMemoryStore {
	t.Helper()
	st := ledgerstore.NewInMemory()
	for i := 0; i < n; i++ {
		_, err := ledger.Append(context.Background(), st, ledger.Entry{
			RecordID: fmt.Sprintf("rec-%d", i),
			Kind:     "access.allowed",
			Payload:  []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}, testutil.FixedNow)
		require.NoError(t, err)
	}
	return st
}

// tampered rewrites one payload on the way out, as an edited database row would.
type tampered struct {
	ledger.Reader
	blockID int64
}

func (r tampered) Walk(ctx context.Context, from int64, fn func(*ledger.Block) error) error {
	return r.Reader.Walk(ctx, from, func(b *ledger.Block) error {
		if b.BlockID == r.blockID {
			b.Payload = []byte(`{"n":"edited"}`)
		}
		return fn(b)
	})
}

func TestVerify(t *testing.T) {
	st := seeded(t, 4)

	t.Run("intact", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runVerify(context.Background(), st, &out, false))
		assert.Equal(t, "ok: 4 blocks verified\n", out.String())
	})

	t.Run("tampered", func(t *testing.T) {
		var out bytes.Buffer
		err := runVerify(context.Background(), tampered{Reader: st, blockID: 2}, &out, true)
		require.ErrorIs(t, err, errChainInvalid)

		var report ledger.Report
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.False(t, report.OK)
		require.NotNil(t, report.FirstBadBlockID)
		assert.EqualValues(t, 2, *report.FirstBadBlockID)
		assert.Equal(t, ledger.ReasonDataMismatch, report.Reason)
	})
}

func TestList(t *testing.T) {
	st := seeded(t, 3)

	var out bytes.Buffer
	require.NoError(t, runList(context.Background(), st, ledger.ListFilter{Order: ledger.OrderDesc, Limit: 2}, &out, true))

	var blocks []*ledger.Block
	require.NoError(t, json.Unmarshal(out.Bytes(), &blocks))
	require.Len(t, blocks, 2)
	assert.EqualValues(t, 2, blocks[0].BlockID)
	assert.EqualValues(t, 1, blocks[1].BlockID)

	out.Reset()
	require.NoError(t, runList(context.Background(), st, ledger.ListFilter{}, &out, false))
	assert.Contains(t, out.String(), "rec-0")
	assert.Contains(t, out.String(), "BLOCK")
}
