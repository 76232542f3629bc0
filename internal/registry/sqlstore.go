package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stratamed/policymatch/internal/core/db"
	"github.com/stratamed/policymatch/internal/types"
)

// SQLStore persists rule revisions, documents and chunks in SQLite or
// PostgreSQL. Revisions go into an append-only table whose insertion order
// is the replay order; documents and chunks are upserted so re-ingesting a
// policy file is harmless.
type SQLStore struct {
	conn *sqlx.DB
	q    *db.Queries
}

// OpenSQLStore connects to dbURL, applies pending schema migrations and
// loads the embedded named-query set.
func OpenSQLStore(dbURL string) (*SQLStore, error) {
	conn, err := db.Open(dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLStore{conn: conn, q: q}, nil
}

type ruleRow struct {
	RuleID        string  `db:"rule_id"`
	Category      string  `db:"category"`
	Version       int     `db:"version"`
	Expression    string  `db:"logic_expression"`
	Status        string  `db:"status"`
	SourceChunkID string  `db:"source_chunk_id"`
	Confidence    float64 `db:"confidence"`
	CreatedAt     string  `db:"created_at"`
}

// AppendRule inserts one immutable revision record.
func (s *SQLStore) AppendRule(ctx context.Context, r types.Rule) error {
	_, err := s.q.Exec(ctx, "rule-revision-insert",
		string(r.ID), string(r.Category), r.Version, r.Expression,
		string(r.Status), string(r.SourceChunkID), r.Confidence,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert rule revision %s v%d: %w", r.ID, r.Version, err)
	}
	return nil
}

// ReplayRules returns every revision record in append order.
func (s *SQLStore) ReplayRules(ctx context.Context) ([]types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "rule-revisions-all", &rows); err != nil {
		return nil, fmt.Errorf("replay rule revisions: %w", err)
	}

	rules := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("rule revision %s v%d: bad created_at %q: %w", row.RuleID, row.Version, row.CreatedAt, err)
		}
		rules = append(rules, types.Rule{
			ID:            types.RuleID(row.RuleID),
			Category:      types.Category(row.Category),
			Version:       row.Version,
			Expression:    row.Expression,
			Status:        types.RuleStatus(row.Status),
			SourceChunkID: types.ChunkID(row.SourceChunkID),
			Confidence:    row.Confidence,
			CreatedAt:     createdAt,
		})
	}
	return rules, nil
}

type documentRow struct {
	ID            string `db:"id"`
	Payer         string `db:"payer"`
	PolicyID      string `db:"policy_id"`
	Title         string `db:"title"`
	EffectiveDate string `db:"effective_date"`
	SourcePath    string `db:"source_path"`
	IngestedAt    string `db:"ingested_at"`
}

// PutDocument stores or replaces a policy document record.
func (s *SQLStore) PutDocument(ctx context.Context, d types.PolicyDocument) error {
	_, err := s.q.Exec(ctx, "document-upsert",
		string(d.ID), d.Payer, d.PolicyID, d.Title, d.EffectiveDate,
		d.SourcePath, d.IngestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.ID, err)
	}
	return nil
}

// GetDocument returns a stored document or ErrDocumentNotFound.
func (s *SQLStore) GetDocument(ctx context.Context, id types.DocumentID) (types.PolicyDocument, error) {
	var row documentRow
	if err := s.q.Get(ctx, "document-by-id", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PolicyDocument{}, types.ErrDocumentNotFound
		}
		return types.PolicyDocument{}, fmt.Errorf("get document %s: %w", id, err)
	}

	ingestedAt, err := time.Parse(time.RFC3339, row.IngestedAt)
	if err != nil {
		return types.PolicyDocument{}, fmt.Errorf("document %s: bad ingested_at %q: %w", id, row.IngestedAt, err)
	}
	return types.PolicyDocument{
		ID:            types.DocumentID(row.ID),
		Payer:         row.Payer,
		PolicyID:      row.PolicyID,
		Title:         row.Title,
		EffectiveDate: row.EffectiveDate,
		SourcePath:    row.SourcePath,
		IngestedAt:    ingestedAt,
	}, nil
}

type chunkRow struct {
	ID            string  `db:"id"`
	DocumentID    string  `db:"document_id"`
	Ordinal       int     `db:"ordinal"`
	Marker        string  `db:"marker"`
	Body          string  `db:"body"`
	Category      string  `db:"category"`
	Confidence    float64 `db:"confidence"`
	LowConfidence bool    `db:"low_confidence"`
}

// PutChunk stores or replaces a classified chunk record. The referenced
// document must already be stored; chunks carry a foreign key to it.
func (s *SQLStore) PutChunk(ctx context.Context, c types.Chunk) error {
	_, err := s.q.Exec(ctx, "chunk-upsert",
		string(c.ID), string(c.DocumentID), c.Ordinal, c.Marker, c.Text,
		string(c.Category), c.Confidence, c.LowConfidence,
	)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
	}
	return nil
}

// GetChunk returns a stored chunk or ErrChunkNotFound.
func (s *SQLStore) GetChunk(ctx context.Context, id types.ChunkID) (types.Chunk, error) {
	var row chunkRow
	if err := s.q.Get(ctx, "chunk-by-id", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chunk{}, types.ErrChunkNotFound
		}
		return types.Chunk{}, fmt.Errorf("get chunk %s: %w", id, err)
	}

	return types.Chunk{
		ID:            types.ChunkID(row.ID),
		DocumentID:    types.DocumentID(row.DocumentID),
		Ordinal:       row.Ordinal,
		Marker:        row.Marker,
		Text:          row.Body,
		Category:      types.Category(row.Category),
		Confidence:    row.Confidence,
		LowConfidence: row.LowConfidence,
	}, nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.conn.Close()
}
