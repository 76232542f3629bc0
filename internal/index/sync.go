package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

// SyncJob periodically pushes APPROVED rules into the index and marks them
// INDEXED. A failed push leaves the rules APPROVED, so the next tick retries
// the whole batch; upserts are idempotent, so partial progress never
// corrupts the index.
type SyncJob struct {
	registry *registry.Registry
	indexer  Indexer
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSyncJob builds a sync job on a cron schedule. The schedule accepts
// standard five-field cron syntax and descriptors like "@every 5m".
func NewSyncJob(reg *registry.Registry, indexer Indexer, schedule string, logger *slog.Logger) *SyncJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncJob{
		registry: reg,
		indexer:  indexer,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "index-sync"),
	}
}

// Start validates the schedule and begins ticking. The job stops when ctx
// is canceled or Stop is called.
func (j *SyncJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.logger.Info("no sync schedule configured, index sync disabled")
		return nil
	}
	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("index: invalid sync schedule %q: %w", j.schedule, err)
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		indexed, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.Error("scheduled index sync failed", "error", err)
			return
		}
		if indexed > 0 {
			j.logger.Info("index sync completed", "indexed", indexed)
		} else {
			j.logger.Debug("index sync completed, nothing to push")
		}
	})
	if err != nil {
		return fmt.Errorf("index: scheduling sync: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("index sync started", "schedule", j.schedule)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// Stop halts the schedule and waits for a running sync to finish.
func (j *SyncJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.logger.Info("index sync stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (j *SyncJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// RunOnce performs one sync pass and reports how many rules were marked
// INDEXED. Exported for the CLI and for callers that want an immediate push
// outside the schedule.
func (j *SyncJob) RunOnce(ctx context.Context) (int, error) {
	approved, err := j.registry.List(ctx, registry.Filter{
		Statuses: []types.RuleStatus{types.StatusApproved},
	})
	if err != nil {
		return 0, fmt.Errorf("index: listing approved rules: %w", err)
	}
	if len(approved) == 0 {
		return 0, nil
	}

	if err := j.indexer.Upsert(ctx, approved); err != nil {
		return 0, fmt.Errorf("index: upserting %d rules: %w", len(approved), err)
	}

	indexed := 0
	for _, rule := range approved {
		if _, err := j.registry.MarkIndexed(ctx, rule.ID); err != nil {
			// The rule stays APPROVED and is retried next tick.
			j.logger.Warn("marking rule indexed failed", "rule_id", rule.ID, "error", err)
			continue
		}
		indexed++
	}
	return indexed, nil
}
