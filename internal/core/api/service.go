// Package api provides the HTTP handlers for the PolicyMatch service.
package api

import (
	"fmt"
	"log/slog"

	"github.com/stratamed/policymatch/internal/engine"
	"github.com/stratamed/policymatch/internal/ingest"
	"github.com/stratamed/policymatch/internal/llm"
	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/telemetry"
)

// Service implements the HTTP API. Thin orchestration layer delegating to
// the registry, ingest pipeline and evaluation engine.
type Service struct {
	registry  *registry.Registry
	engine    *engine.Engine
	pipeline  *ingest.Pipeline
	explainer *llm.Explainer
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// NewService creates the handler set with its dependencies. The explainer
// and metrics are optional: a nil explainer disables decision explanations
// and nil metrics record nothing.
func NewService(reg *registry.Registry, eng *engine.Engine, pipe *ingest.Pipeline, explainer *llm.Explainer, metrics *telemetry.Metrics, logger *slog.Logger) (*Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if pipe == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Service{
		registry:  reg,
		engine:    eng,
		pipeline:  pipe,
		explainer: explainer,
		metrics:   metrics,
		logger:    logger.With("component", "api"),
	}, nil
}
