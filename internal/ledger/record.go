// Package ledger tracks, per document, how far indexing got in each
// backing store, and repairs the halves that failed.
package ledger

import (
	"errors"
	"time"
)

// Status is the per-store outcome for one document.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	// StatusPartial means some of the document made it into the store
	// and the rest needs repair. Vector-side: a subset of chunks is
	// embedded and searchable.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ErrRecordNotFound indicates no ledger row exists for a document.
var ErrRecordNotFound = errors.New("ledger: record not found")

// Record is the per-document ledger row. The two statuses advance
// independently: chunks can be searchable while graph extraction is still
// broken, and vice versa.
type Record struct {
	DocumentID   string
	Source       string
	ChunkIDs     []string
	VectorStatus Status
	GraphStatus  Status
	LastError    string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// State is the document-level condition derived from the two store
// statuses.
type State string

const (
	// StateComplete means both stores hold the document in full.
	StateComplete State = "complete"
	// StatePartialRecall means the document is searchable but absent or
	// incomplete in the graph, so entity-centric operations will miss it.
	StatePartialRecall State = "partial: recall-only"
	// StateFailed means the document cannot be recalled by search.
	StateFailed State = "failed"
	// StatePending means indexing has not finished yet.
	StatePending State = "pending"
)

// DeriveState folds the two store statuses into the document state.
// Vector recall dominates: a document with nothing embedded is failed
// even if its entities made it into the graph, while one with any
// searchable chunks is at worst partial.
func (r Record) DeriveState() State {
	switch {
	case r.VectorStatus == StatusFailed:
		return StateFailed
	case r.VectorStatus == StatusDone && r.GraphStatus == StatusDone:
		return StateComplete
	case r.VectorStatus == StatusPartial,
		r.VectorStatus == StatusDone && r.GraphStatus == StatusFailed:
		return StatePartialRecall
	default:
		return StatePending
	}
}

// NeedsRepair reports whether a reconcile pass should pick this record up.
func (r Record) NeedsRepair() bool {
	return r.VectorStatus == StatusFailed || r.VectorStatus == StatusPartial ||
		r.GraphStatus == StatusFailed
}
