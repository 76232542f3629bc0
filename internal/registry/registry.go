package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stratamed/policymatch/internal/expr"
	"github.com/stratamed/policymatch/internal/types"
)

/*
 * Rule lifecycle over an append-only store.
 *
 * Working state (current revision per id, full history, per-category id
 * counters) is an in-memory projection rebuilt by replaying the store at
 * construction. Every mutation appends to the store first and commits to
 * the projection only on success, so the store never lags memory.
 *
 * Concurrency: a global RWMutex guards the projection maps for readers; a
 * per-rule-id mutex serializes writers touching the same rule, so reviews
 * of different rules proceed in parallel while double-approves of one rule
 * cannot interleave. Draft creation holds a single allocation lock across
 * counter increment and append, which keeps store order consistent with id
 * order.
 *
 * Transition legality: DRAFT -> APPROVED | REJECTED, APPROVED -> INDEXED.
 * A request naming the current state is an idempotent no-op returning the
 * current revision. Everything else is InvalidTransitionError. Status
 * transitions append a record with the same version; only content edits
 * bump the version.
 */

// Registry coordinates rule lifecycle state. Safe for concurrent use.
type Registry struct {
	store Store
	log   *slog.Logger

	mu       sync.RWMutex
	current  map[types.RuleID]types.Rule
	history  map[types.RuleID][]types.Rule
	counters map[types.Category]int

	allocMu sync.Mutex

	lockMu  sync.Mutex
	ruleMus map[types.RuleID]*sync.Mutex
}

// New builds a registry by replaying the store. Records replay in append
// order; the last record per id is the current revision and the highest
// sequence per category seeds the id counters.
func New(ctx context.Context, store Store, log *slog.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Registry{
		store:    store,
		log:      log.With("component", "registry"),
		current:  make(map[types.RuleID]types.Rule),
		history:  make(map[types.RuleID][]types.Rule),
		counters: make(map[types.Category]int),
		ruleMus:  make(map[types.RuleID]*sync.Mutex),
	}

	records, err := store.ReplayRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: replay: %w", err)
	}
	for _, rec := range records {
		r.current[rec.ID] = rec
		r.history[rec.ID] = append(r.history[rec.ID], rec)
		if cat, seq, err := types.SplitRuleID(rec.ID); err == nil && seq > r.counters[cat] {
			r.counters[cat] = seq
		}
	}

	r.log.Info("registry loaded", "records", len(records), "rules", len(r.current))
	return r, nil
}

// lockFor returns the write mutex for a rule id, creating it on first use.
func (r *Registry) lockFor(id types.RuleID) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	mu, ok := r.ruleMus[id]
	if !ok {
		mu = &sync.Mutex{}
		r.ruleMus[id] = mu
	}
	return mu
}

// Add compiles and registers a draft. Invalid expressions are rejected
// before anything is persisted, so the registry never holds a rule the
// engine could not evaluate.
func (r *Registry) Add(ctx context.Context, d Draft) (types.Rule, error) {
	if !d.Category.Valid() {
		return types.Rule{}, fmt.Errorf("registry: unknown category %q", d.Category)
	}
	if _, err := expr.Compile(d.Expression); err != nil {
		return types.Rule{}, err
	}

	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	r.mu.RLock()
	seq := r.counters[d.Category] + 1
	r.mu.RUnlock()

	rule := types.Rule{
		ID:            types.FormatRuleID(d.Category, seq),
		Category:      d.Category,
		Version:       1,
		Expression:    d.Expression,
		Status:        types.StatusDraft,
		SourceChunkID: d.SourceChunkID,
		Confidence:    d.Confidence,
		CreatedAt:     now(),
	}

	if err := r.store.AppendRule(ctx, rule); err != nil {
		return types.Rule{}, fmt.Errorf("registry: append %s: %w", rule.ID, err)
	}

	r.mu.Lock()
	r.counters[d.Category] = seq
	r.current[rule.ID] = rule
	r.history[rule.ID] = append(r.history[rule.ID], rule)
	r.mu.Unlock()

	r.log.Info("draft added", "rule_id", rule.ID, "category", rule.Category, "confidence", rule.Confidence)
	return rule, nil
}

// Get returns the current revision of a rule.
func (r *Registry) Get(ctx context.Context, id types.RuleID) (types.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.current[id]
	if !ok {
		return types.Rule{}, types.ErrRuleNotFound
	}
	return rule, nil
}

// List returns current revisions matching the filter, ordered by category
// in policy reading order and numeric id sequence within a category.
func (r *Registry) List(ctx context.Context, f Filter) ([]types.Rule, error) {
	r.mu.RLock()
	out := make([]types.Rule, 0, len(r.current))
	for _, rule := range r.current {
		if f.matches(rule) {
			out = append(out, rule)
		}
	}
	r.mu.RUnlock()

	listingRank := make(map[types.Category]int, len(types.Categories))
	for i, c := range types.Categories {
		listingRank[c] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := listingRank[out[i].Category], listingRank[out[j].Category]
		if ri != rj {
			return ri < rj
		}
		_, si, errI := types.SplitRuleID(out[i].ID)
		_, sj, errJ := types.SplitRuleID(out[j].ID)
		if errI == nil && errJ == nil && si != sj {
			return si < sj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// History returns every appended revision of a rule in append order.
func (r *Registry) History(ctx context.Context, id types.RuleID) ([]types.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	revs, ok := r.history[id]
	if !ok {
		return nil, types.ErrRuleNotFound
	}
	out := make([]types.Rule, len(revs))
	copy(out, revs)
	return out, nil
}

// Edit replaces a draft's expression, bumping the version. Only DRAFT rules
// are editable; anything later in the lifecycle is immutable.
func (r *Registry) Edit(ctx context.Context, id types.RuleID, expression string) (types.Rule, error) {
	if _, err := expr.Compile(expression); err != nil {
		return types.Rule{}, err
	}

	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	cur, err := r.Get(ctx, id)
	if err != nil {
		return types.Rule{}, err
	}
	if cur.Status != types.StatusDraft {
		return types.Rule{}, &types.InvalidTransitionError{ID: id, From: cur.Status, To: types.StatusDraft}
	}

	next := cur
	next.Version = cur.Version + 1
	next.Expression = expression
	next.CreatedAt = now()

	if err := r.store.AppendRule(ctx, next); err != nil {
		return types.Rule{}, fmt.Errorf("registry: append %s v%d: %w", next.ID, next.Version, err)
	}
	r.commit(next)

	r.log.Info("draft edited", "rule_id", next.ID, "version", next.Version)
	return next, nil
}

// Approve moves a draft to APPROVED. Idempotent on already-approved rules.
func (r *Registry) Approve(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return r.transition(ctx, id, types.StatusApproved)
}

// Reject moves a draft to REJECTED, a terminal state. Idempotent on
// already-rejected rules.
func (r *Registry) Reject(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return r.transition(ctx, id, types.StatusRejected)
}

// MarkIndexed records that an approved rule reached the retrieval index.
// Idempotent on already-indexed rules.
func (r *Registry) MarkIndexed(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return r.transition(ctx, id, types.StatusIndexed)
}

// legalTransitions maps each status to the statuses reachable from it.
var legalTransitions = map[types.RuleStatus][]types.RuleStatus{
	types.StatusDraft:    {types.StatusApproved, types.StatusRejected},
	types.StatusApproved: {types.StatusIndexed},
}

func (r *Registry) transition(ctx context.Context, id types.RuleID, target types.RuleStatus) (types.Rule, error) {
	mu := r.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	cur, err := r.Get(ctx, id)
	if err != nil {
		return types.Rule{}, err
	}
	if cur.Status == target {
		return cur, nil
	}

	legal := false
	for _, s := range legalTransitions[cur.Status] {
		if s == target {
			legal = true
			break
		}
	}
	if !legal {
		return types.Rule{}, &types.InvalidTransitionError{ID: id, From: cur.Status, To: target}
	}

	next := cur
	next.Status = target
	next.CreatedAt = now()

	if err := r.store.AppendRule(ctx, next); err != nil {
		return types.Rule{}, fmt.Errorf("registry: append %s %s: %w", next.ID, target, err)
	}
	r.commit(next)

	r.log.Info("rule transitioned", "rule_id", id, "from", cur.Status, "to", target)
	return next, nil
}

func (r *Registry) commit(rule types.Rule) {
	r.mu.Lock()
	r.current[rule.ID] = rule
	r.history[rule.ID] = append(r.history[rule.ID], rule)
	r.mu.Unlock()
}

// now returns the revision timestamp. Second precision, so records survive
// a persistence round trip unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// PutDocument records an ingested document for provenance.
func (r *Registry) PutDocument(ctx context.Context, d types.PolicyDocument) error {
	return r.store.PutDocument(ctx, d)
}

// GetDocument returns a recorded document.
func (r *Registry) GetDocument(ctx context.Context, id types.DocumentID) (types.PolicyDocument, error) {
	return r.store.GetDocument(ctx, id)
}

// PutChunk records a classified chunk for provenance.
func (r *Registry) PutChunk(ctx context.Context, c types.Chunk) error {
	return r.store.PutChunk(ctx, c)
}

// GetChunk returns a recorded chunk.
func (r *Registry) GetChunk(ctx context.Context, id types.ChunkID) (types.Chunk, error) {
	return r.store.GetChunk(ctx, id)
}
