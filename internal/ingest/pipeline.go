// Package ingest runs the document pipeline: read a policy document, slice
// it into clause chunks, classify each chunk, persist everything, and hand
// the chunks to an extractor that proposes draft rules. Drafts always enter
// the registry as DRAFT; nothing in this package can touch a decision until
// a reviewer approves it.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/stratamed/policymatch/internal/classify"
	"github.com/stratamed/policymatch/internal/extract"
	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/telemetry"
	"github.com/stratamed/policymatch/internal/types"
)

// Pipeline wires the ingest stages together. A nil extractor turns the
// pipeline into classification-plus-persistence only; a nil metrics handle
// runs unmetered.
type Pipeline struct {
	registry   *registry.Registry
	classifier *classify.Classifier
	extractor  extract.Extractor
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// NewPipeline builds a pipeline over the given components.
func NewPipeline(reg *registry.Registry, cls *classify.Classifier, ext extract.Extractor, metrics *telemetry.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry:   reg,
		classifier: cls,
		extractor:  ext,
		metrics:    metrics,
		logger:     logger.With("component", "ingest"),
	}
}

// Outcome summarizes one pipeline run.
type Outcome struct {
	DocumentID       types.DocumentID       `json:"document_id"`
	Title            string                 `json:"title"`
	Chunks           int                    `json:"chunks"`
	ChunksByCategory map[types.Category]int `json:"chunks_by_category"`
	LowConfidence    int                    `json:"low_confidence_chunks"`
	Drafts           []types.RuleID         `json:"drafts"`
	Skipped          int                    `json:"skipped_candidates"`
}

// RunFile ingests the document at path.
func (p *Pipeline) RunFile(ctx context.Context, path string) (Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest: opening document: %w", err)
	}
	defer f.Close()
	return p.Run(ctx, f, path)
}

// Run ingests one document from r. sourcePath is recorded as provenance and
// may be empty for documents arriving over the API.
//
// Storage failures abort the run. Extraction failures do not: a chunk whose
// candidate cannot be extracted or fails registry validation is logged,
// counted in Skipped, and the run continues. The document and its chunks are
// already persisted by then, so a rerun of extraction loses nothing.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, sourcePath string) (Outcome, error) {
	data, err := io.ReadAll(io.LimitReader(r, types.MaxDocumentSize+1))
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest: reading document: %w", err)
	}
	if len(data) > types.MaxDocumentSize {
		return Outcome{}, fmt.Errorf("ingest: %w (limit %d bytes)", types.ErrDocumentTooLarge, types.MaxDocumentSize)
	}
	// Line-anchored patterns in the header parser and splitter expect \n.
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	doc := parseMetadata(text, sourcePath)
	doc.ID = types.NewDocumentID()
	doc.IngestedAt = time.Now().UTC().Truncate(time.Second)

	pieces := classify.Split(sliceCriteria(text))
	if len(pieces) == 0 {
		return Outcome{}, fmt.Errorf("ingest: %w", types.ErrEmptyDocument)
	}

	if err := p.registry.PutDocument(ctx, doc); err != nil {
		return Outcome{}, fmt.Errorf("ingest: persisting document: %w", err)
	}

	outcome := Outcome{
		DocumentID:       doc.ID,
		Title:            doc.Title,
		ChunksByCategory: make(map[types.Category]int),
	}

	chunks := make([]types.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		label := p.classifier.Classify(piece.Text)
		chunk := types.Chunk{
			ID:            types.NewChunkID(),
			DocumentID:    doc.ID,
			Ordinal:       piece.Ordinal,
			Marker:        piece.Marker,
			Text:          piece.Text,
			Category:      label.Category,
			Confidence:    label.Confidence,
			LowConfidence: label.LowConfidence,
		}
		if err := p.registry.PutChunk(ctx, chunk); err != nil {
			return Outcome{}, fmt.Errorf("ingest: persisting chunk %d: %w", chunk.Ordinal, err)
		}
		chunks = append(chunks, chunk)

		outcome.Chunks++
		outcome.ChunksByCategory[chunk.Category]++
		if chunk.LowConfidence {
			outcome.LowConfidence++
		}
		p.metrics.RecordChunk(chunk.Category)
	}

	if p.extractor != nil {
		if err := p.extractChunks(ctx, chunks, &outcome); err != nil {
			return outcome, err
		}
	}

	p.logger.Info("document ingested",
		"document_id", doc.ID,
		"title", doc.Title,
		"chunks", outcome.Chunks,
		"low_confidence", outcome.LowConfidence,
		"drafts", len(outcome.Drafts),
		"skipped", outcome.Skipped,
	)
	return outcome, nil
}

// extractChunks proposes and registers draft rules for the chunks. Chunks
// the classifier flagged low-confidence are skipped: their category is a
// guess, and the category drives the polarity of the extracted expression.
// They stay persisted for manual review against the source text.
func (p *Pipeline) extractChunks(ctx context.Context, chunks []types.Chunk, outcome *Outcome) error {
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk.LowConfidence {
			p.logger.Debug("skipping extraction for low-confidence chunk", "chunk_id", chunk.ID, "ordinal", chunk.Ordinal)
			continue
		}

		candidate, ok, err := p.extractor.Extract(ctx, chunk)
		if err != nil {
			p.logger.Warn("extraction failed, chunk skipped",
				"chunk_id", chunk.ID, "ordinal", chunk.Ordinal, "error", err)
			outcome.Skipped++
			continue
		}
		if !ok {
			continue
		}

		rule, err := p.registry.Add(ctx, registry.Draft{
			Category:      chunk.Category,
			Expression:    candidate.Expression,
			SourceChunkID: chunk.ID,
			Confidence:    candidate.Confidence,
		})
		if err != nil {
			p.logger.Warn("draft rejected by registry, chunk skipped",
				"chunk_id", chunk.ID, "expression", candidate.Expression, "error", err)
			outcome.Skipped++
			continue
		}

		outcome.Drafts = append(outcome.Drafts, rule.ID)
		p.metrics.RecordDraft(rule.Category)
		p.logger.Info("draft rule created",
			"rule_id", rule.ID, "category", rule.Category,
			"expression", rule.Expression, "confidence", rule.Confidence,
			"rationale", candidate.Rationale,
		)
	}
	return nil
}
