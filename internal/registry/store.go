// Package registry manages the rule lifecycle over an append-only store:
// draft creation, review transitions, versioned edits, and provenance
// lookups for the chunks and documents rules were extracted from.
package registry

import (
	"context"

	"github.com/stratamed/policymatch/internal/types"
)

// Store is the persistence backend behind a Registry. Rule persistence is
// append-only: AppendRule adds one immutable revision record and ReplayRules
// returns every record in append order, which is all the registry needs to
// rebuild its working state. Implementations must make each append atomic;
// a crash mid-write may lose the record but never corrupt earlier ones.
type Store interface {
	AppendRule(ctx context.Context, r types.Rule) error
	ReplayRules(ctx context.Context) ([]types.Rule, error)

	PutDocument(ctx context.Context, d types.PolicyDocument) error
	GetDocument(ctx context.Context, id types.DocumentID) (types.PolicyDocument, error)

	PutChunk(ctx context.Context, c types.Chunk) error
	GetChunk(ctx context.Context, id types.ChunkID) (types.Chunk, error)

	Close() error
}

// Draft is the input to Registry.Add: a candidate rule before it has an
// identity. The registry assigns id, version and status.
type Draft struct {
	Category      types.Category
	Expression    string
	SourceChunkID types.ChunkID
	Confidence    float64
}

// Filter narrows Registry.List. Empty slices match everything.
type Filter struct {
	Statuses   []types.RuleStatus
	Categories []types.Category
}

func (f Filter) matches(r types.Rule) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Categories) > 0 {
		ok := false
		for _, c := range f.Categories {
			if r.Category == c {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
