// Package dedup provides the message signature hasher and the persisted,
// capacity-bounded cache of already-synchronized signatures.
package dedup

import (
	"fmt"

	"github.com/BarnBuilder412/smsync/pkg/api"
)

// Signature derives the stable dedup key for a message and its candidate.
//
// The canonical input concatenates observed time, sender, the amount at two
// decimal places, merchant (empty when absent), and category. Two
// independent 32-bit rolling hashes (djb2 and sdbm) of that string are
// concatenated as hex, giving a fixed 16-character key. No salts: identical
// inputs must produce identical signatures across process restarts.
func Signature(msg api.RawMessage, cand api.TransactionCandidate) string {
	canonical := fmt.Sprintf("%d|%s|%s|%s|%s",
		msg.ObservedAt,
		msg.Sender,
		cand.Amount.StringFixed(2),
		cand.Merchant,
		cand.Category,
	)
	return fmt.Sprintf("%08x%08x", djb2(canonical), sdbm(canonical))
}

func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

func sdbm(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = uint32(s[i]) + h<<6 + h<<16 - h
	}
	return h
}
