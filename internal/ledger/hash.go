package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DataHash is the hex sha256 of a canonical payload.
func DataHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ChainHash hashes a block's own fields. It becomes the next block's previous_hash.
func ChainHash(b *Block) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(b.BlockID, 10))
	sb.WriteByte('|')
	sb.WriteString(b.RecordID)
	sb.WriteByte('|')
	sb.WriteString(b.Kind)
	sb.WriteByte('|')
	sb.WriteString(b.DataHash)
	sb.WriteByte('|')
	sb.WriteString(b.PreviousHash)
	sb.WriteByte('|')
	sb.WriteString(b.CreatedAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Timestamp normalizes t to what every store can round-trip losslessly.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
