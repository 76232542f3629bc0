package registry

import (
	"context"
	"sync"

	"github.com/stratamed/policymatch/internal/types"
)

// MemStore is an in-memory Store for tests and database-less CLI runs.
// Records live only as long as the process.
type MemStore struct {
	mu     sync.Mutex
	rules  []types.Rule
	docs   map[types.DocumentID]types.PolicyDocument
	chunks map[types.ChunkID]types.Chunk
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		docs:   make(map[types.DocumentID]types.PolicyDocument),
		chunks: make(map[types.ChunkID]types.Chunk),
	}
}

// AppendRule adds one revision record.
func (s *MemStore) AppendRule(_ context.Context, r types.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
	return nil
}

// ReplayRules returns every appended record in append order.
func (s *MemStore) ReplayRules(_ context.Context) ([]types.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// PutDocument stores a policy document record.
func (s *MemStore) PutDocument(_ context.Context, d types.PolicyDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
	return nil
}

// GetDocument returns a stored document or ErrDocumentNotFound.
func (s *MemStore) GetDocument(_ context.Context, id types.DocumentID) (types.PolicyDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return types.PolicyDocument{}, types.ErrDocumentNotFound
	}
	return d, nil
}

// PutChunk stores a chunk record.
func (s *MemStore) PutChunk(_ context.Context, c types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[c.ID] = c
	return nil
}

// GetChunk returns a stored chunk or ErrChunkNotFound.
func (s *MemStore) GetChunk(_ context.Context, id types.ChunkID) (types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[id]
	if !ok {
		return types.Chunk{}, types.ErrChunkNotFound
	}
	return c, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}
