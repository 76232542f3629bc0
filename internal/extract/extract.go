// Package extract turns classified policy chunks into draft rule candidates.
//
// Extraction is advisory: every candidate lands in the registry as a DRAFT
// and goes through human review before it can affect a decision. An extractor
// may decline a chunk it cannot translate; declining is not an error.
package extract

import (
	"context"

	"github.com/stratamed/policymatch/internal/types"
)

// Candidate is a proposed rule condition for one chunk.
type Candidate struct {
	// Expression is the condition in the rule grammar. It compiles; every
	// extractor validates before returning.
	Expression string

	// Confidence is the extractor's own certainty in [0, 1], independent
	// of the chunk's classification confidence.
	Confidence float64

	// Rationale says what the extractor matched, for the reviewer.
	Rationale string
}

// Extractor proposes a condition expression for one chunk. The second return
// is false when the extractor declines the chunk; err reports failures of the
// extractor itself, such as an unreachable model endpoint.
type Extractor interface {
	Extract(ctx context.Context, chunk types.Chunk) (Candidate, bool, error)
}
