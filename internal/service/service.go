package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/preferences"
	"dropified/tracksync/internal/repository"
	"dropified/tracksync/internal/state"
	"dropified/tracksync/internal/tracking"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrRunActive   = errors.New("a tracking sync is already running for this store")
	ErrRunNotFound = errors.New("run not found")
)

// keepFinished is how many finished runs stay in memory for snapshots.
const keepFinished = 50

// StartRequest is a request to sync a store. Nil pacing fields fall back to
// the saved preferences.
type StartRequest struct {
	StoreID         string   `json:"store_id"`
	StoreType       string   `json:"store_type"`
	IDs             []string `json:"ids,omitempty"`
	UnfulfilledOnly *bool    `json:"unfulfilled_only,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	DelaySeconds    *float64 `json:"delay_seconds,omitempty"`
	Concurrency     *int     `json:"concurrency,omitempty"`
}

// Preparer builds runs; satisfied by *tracking.Engine.
type Preparer interface {
	Prepare(ctx context.Context, req tracking.RunRequest, reporter tracking.Reporter) (*tracking.Run, error)
}

type Service struct {
	engine       Preparer
	stateManager state.StateManager
	history      repository.RunRepository // nil when history is disabled
	prefs        *preferences.Store
	reporters    []tracking.Reporter
	lockTTL      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	runs     map[string]*tracking.Run
	active   map[string]*tracking.Run // by store id
	finished []string
	wg       sync.WaitGroup
}

func NewService(
	engine Preparer,
	stateManager state.StateManager,
	history repository.RunRepository,
	prefs *preferences.Store,
	reporters []tracking.Reporter,
	lockTTL int,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	ttl := time.Duration(lockTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		engine:       engine,
		stateManager: stateManager,
		history:      history,
		prefs:        prefs,
		reporters:    reporters,
		lockTTL:      ttl,
		ctx:          ctx,
		cancel:       cancel,
		runs:         make(map[string]*tracking.Run),
		active:       make(map[string]*tracking.Run),
	}
}

// Start prepares a run for the store and starts it in the background.
func (s *Service) Start(ctx context.Context, req StartRequest) (*tracking.Run, error) {
	if req.StoreID == "" {
		return nil, fmt.Errorf("store_id is required")
	}

	runReq := s.runRequest(req)

	if err := s.stateManager.AcquireRunLock(ctx, req.StoreID, runReq.RunID, s.lockTTL); err != nil {
		if errors.Is(err, state.ErrLocked) {
			return nil, ErrRunActive
		}
		return nil, err
	}

	reporters := append(tracking.MultiReporter{tracking.NewLogReporter()}, s.reporters...)
	if s.history != nil {
		reporters = append(reporters, repository.NewHistoryReporter(s.history))
	}
	reporters = append(reporters, &finishHook{service: s})

	run, err := s.engine.Prepare(ctx, runReq, reporters)
	if err != nil {
		s.releaseLock(req.StoreID, runReq.RunID)
		return nil, err
	}

	if s.history != nil {
		cfg := run.Config()
		pending := run.Snapshot().Counts.Pending
		if err := s.history.StartRun(ctx, run.ID(), req.StoreID, cfg, pending, time.Now()); err != nil {
			log.Warnf("⚠️ %v", err)
		}
	}

	s.mu.Lock()
	s.runs[run.ID()] = run
	s.active[req.StoreID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-run.Done()
	}()

	run.Start(s.ctx)
	return run, nil
}

func (s *Service) runRequest(req StartRequest) tracking.RunRequest {
	cfg := s.prefs.Get()
	cfg.CreatedAtRange = req.CreatedAt
	if req.UnfulfilledOnly != nil {
		cfg.UnfulfilledOnly = *req.UnfulfilledOnly
	}
	explicit := false
	if req.DelaySeconds != nil {
		cfg.DelaySeconds = *req.DelaySeconds
		explicit = true
	}
	if req.Concurrency != nil {
		cfg.Concurrency = *req.Concurrency
		explicit = true
	}

	return tracking.RunRequest{
		RunID:          uuid.NewString(),
		StoreID:        req.StoreID,
		StoreType:      req.StoreType,
		IDs:            req.IDs,
		Config:         cfg,
		ExplicitPacing: explicit,
	}
}

// Get returns a snapshot of a run held in memory, or the summary from the
// history store for older runs.
func (s *Service) Get(ctx context.Context, runID string) (tracking.Snapshot, error) {
	s.mu.Lock()
	run, ok := s.runs[runID]
	s.mu.Unlock()
	if ok {
		return run.Snapshot(), nil
	}

	if s.history == nil {
		return tracking.Snapshot{}, ErrRunNotFound
	}
	summary, err := s.history.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return tracking.Snapshot{}, ErrRunNotFound
		}
		return tracking.Snapshot{}, err
	}
	finished := summary.FinishedAt
	return tracking.Snapshot{
		RunID:      summary.RunID,
		StoreID:    summary.StoreID,
		State:      summary.Status,
		Counts:     summary.Counts,
		StartedAt:  summary.StartedAt,
		FinishedAt: &finished,
	}, nil
}

// Run returns an in-memory run.
func (s *Service) Run(runID string) (*tracking.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	return run, ok
}

// Cancel stops scheduling new tasks for the run. It is safe to call on a
// finished run.
func (s *Service) Cancel(runID string) (tracking.Snapshot, error) {
	run, ok := s.Run(runID)
	if !ok {
		return tracking.Snapshot{}, ErrRunNotFound
	}
	run.Cancel()
	return run.Snapshot(), nil
}

func (s *Service) LastRun(ctx context.Context, storeID string) (*domain.Summary, error) {
	return s.stateManager.GetLastSummary(ctx, storeID)
}

// Shutdown cancels every active run and waits for in-flight tasks to settle.
// When ctx expires first, in-flight requests are aborted.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	active := make([]*tracking.Run, 0, len(s.active))
	for _, run := range s.active {
		active = append(active, run)
	}
	s.mu.Unlock()

	if len(active) > 0 {
		log.Infof("🛑 Stopping %d active tracking syncs...", len(active))
	}
	for _, run := range active {
		run.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) onFinished(ctx context.Context, summary domain.Summary) {
	if err := s.stateManager.SetLastSummary(ctx, summary); err != nil {
		log.Warnf("⚠️ %v", err)
	}
	s.releaseLock(summary.StoreID, summary.RunID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if run, ok := s.active[summary.StoreID]; ok && run.ID() == summary.RunID {
		delete(s.active, summary.StoreID)
	}
	s.finished = append(s.finished, summary.RunID)
	for len(s.finished) > keepFinished {
		delete(s.runs, s.finished[0])
		s.finished = s.finished[1:]
	}
}

func (s *Service) releaseLock(storeID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.stateManager.ReleaseRunLock(ctx, storeID, runID); err != nil {
		log.Warnf("⚠️ %v", err)
	}
}

// finishHook is the last reporter of every run.
type finishHook struct {
	service *Service
}

func (h *finishHook) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {}

func (h *finishHook) RunFinished(ctx context.Context, summary domain.Summary) {
	h.service.onFinished(ctx, summary)
}
