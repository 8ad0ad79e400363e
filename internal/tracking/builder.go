package tracking

import (
	"context"
	"fmt"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/domain"

	log "github.com/sirupsen/logrus"
)

// LargeBatchPolicy slows down runs big enough to risk supplier rate limits.
type LargeBatchPolicy struct {
	Threshold       int
	MaxConcurrency  int
	MinDelaySeconds float64
}

// RunRequest is what a caller asks to sync.
type RunRequest struct {
	// RunID names the run; a new one is generated when empty.
	RunID     string
	StoreID   string
	StoreType string
	// IDs limits the run to these orders; empty means every order matching
	// the filter.
	IDs    []string
	Config domain.RunConfiguration
	// ExplicitPacing is set when delay and concurrency were chosen for this
	// run and must not be adjusted for batch size.
	ExplicitPacing bool
}

// Queue is the ordered task list of one run together with its effective
// configuration.
type Queue struct {
	Tasks  []domain.OrderTrackingTask
	Config domain.RunConfiguration
}

func (q *Queue) Pending() int {
	return len(q.Tasks)
}

type QueueBuilder struct {
	backend client.Backend
	policy  LargeBatchPolicy
}

func NewQueueBuilder(backend client.Backend, policy LargeBatchPolicy) *QueueBuilder {
	return &QueueBuilder{backend: backend, policy: policy}
}

func (b *QueueBuilder) Build(ctx context.Context, req RunRequest) (*Queue, error) {
	cfg := req.Config.Normalized()
	filter := client.OrderFilter{
		StoreID:         req.StoreID,
		StoreType:       req.StoreType,
		UnfulfilledOnly: cfg.UnfulfilledOnly,
		CreatedAt:       cfg.CreatedAtRange,
	}

	expected := len(req.IDs)
	if expected == 0 {
		count, err := b.backend.CountPending(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count orders for store %s: %w", req.StoreID, err)
		}
		if count == 0 {
			return nil, ErrNothingToSync
		}
		expected = count
	}

	if !req.ExplicitPacing {
		cfg = b.adjustForBatch(cfg, expected)
	}

	tasks, err := b.backend.ListOrders(ctx, filter, req.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for store %s: %w", req.StoreID, err)
	}
	if len(tasks) == 0 {
		return nil, ErrNothingToSync
	}
	if len(tasks) != expected {
		log.Debugf("Store %s: expected %d orders, backend returned %d", req.StoreID, expected, len(tasks))
	}

	return &Queue{Tasks: tasks, Config: cfg}, nil
}

func (b *QueueBuilder) adjustForBatch(cfg domain.RunConfiguration, pending int) domain.RunConfiguration {
	if b.policy.Threshold <= 0 || pending <= b.policy.Threshold {
		return cfg
	}
	if b.policy.MaxConcurrency > 0 && cfg.Concurrency > b.policy.MaxConcurrency {
		cfg.Concurrency = b.policy.MaxConcurrency
	}
	if cfg.DelaySeconds < b.policy.MinDelaySeconds {
		cfg.DelaySeconds = b.policy.MinDelaySeconds
	}
	log.Infof("🐢 %d orders to sync, slowing down to concurrency %d with %.1fs delay",
		pending, cfg.Concurrency, cfg.DelaySeconds)
	return cfg.Normalized()
}
