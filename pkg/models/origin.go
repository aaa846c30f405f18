// Package models provides the core data structures shared by every pipeline
// stage: column-aligned relations and the per-row capture provenance used
// for deterministic deduplication.
package models

import (
	"time"
)

// RowOrigin is the per-row provenance carried through schema reconciliation
// so the cleaner can break duplicate-key ties deterministically.
type RowOrigin struct {
	Captured time.Time
	BatchSeq int
	Row      int
}

// After reports whether o wins a last-writer-wins comparison against other:
// later capture timestamp first, then later batch, then later row within
// the batch.
func (o RowOrigin) After(other RowOrigin) bool {
	if !o.Captured.Equal(other.Captured) {
		return o.Captured.After(other.Captured)
	}
	if o.BatchSeq != other.BatchSeq {
		return o.BatchSeq > other.BatchSeq
	}
	return o.Row > other.Row
}
