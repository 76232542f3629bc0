// Package index pushes approved rules to the retrieval index that serves
// rule lookup for decision evaluation. The registry stays the source of
// truth; the index is a downstream copy, rebuilt from APPROVED rules and
// safe to re-upsert at any time.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stratamed/policymatch/internal/types"
)

// APIKeyEnv names the environment variable holding the bearer token for the
// index endpoint. Empty means unauthenticated, as with local indexes.
const APIKeyEnv = "PM_INDEX_API_KEY"

// Indexer upserts a batch of rules into the retrieval index. Upserting the
// same rule twice must be harmless.
type Indexer interface {
	Upsert(ctx context.Context, rules []types.Rule) error
}

// MemoryIndexer keeps the index in process, for tests and single-node runs.
type MemoryIndexer struct {
	mu    sync.Mutex
	rules map[types.RuleID]types.Rule
}

// NewMemoryIndexer returns an empty in-process index.
func NewMemoryIndexer() *MemoryIndexer {
	return &MemoryIndexer{rules: make(map[types.RuleID]types.Rule)}
}

// Upsert stores the rules, replacing prior versions by id.
func (m *MemoryIndexer) Upsert(_ context.Context, rules []types.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return nil
}

// Rules returns a snapshot sorted by id.
func (m *MemoryIndexer) Rules() []types.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of indexed rules.
func (m *MemoryIndexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rules)
}

// HTTPIndexer posts rule batches as JSON to a remote index service.
type HTTPIndexer struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewHTTPIndexer builds an indexer for endpoint. The bearer token comes from
// the environment; a zero timeout defaults to 30 seconds.
func NewHTTPIndexer(endpoint string, timeout time.Duration) *HTTPIndexer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIndexer{
		endpoint: endpoint,
		apiKey:   os.Getenv(APIKeyEnv),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
			Timeout: timeout,
		},
	}
}

type upsertRequest struct {
	Rules []types.Rule `json:"rules"`
}

// Upsert posts the batch and treats any non-2xx status as failure.
func (h *HTTPIndexer) Upsert(ctx context.Context, rules []types.Rule) error {
	payload, err := json.Marshal(upsertRequest{Rules: rules})
	if err != nil {
		return fmt.Errorf("index: marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("index: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("index: upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return fmt.Errorf("index: upsert failed: status %d", resp.StatusCode)
		}
		return fmt.Errorf("index: upsert failed: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
