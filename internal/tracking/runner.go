package tracking

import (
	"context"
	"sync"
	"time"

	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const eventBuffer = 64

// Snapshot is a point-in-time view of a run. Its counts encode flat, next to
// the run's state.
type Snapshot struct {
	domain.Counts

	RunID           string                  `json:"run_id"`
	StoreID         string                  `json:"store_id"`
	State           domain.RunStatus        `json:"state"`
	CancelRequested bool                    `json:"cancel_requested"`
	Config          domain.RunConfiguration `json:"config"`
	Rows            []domain.ProgressRow    `json:"rows"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      *time.Time              `json:"finished_at,omitempty"`
}

type runEvent struct {
	row     *domain.ProgressRow
	summary *domain.Summary
}

// Run walks a queue with at most Config.Concurrency tasks in flight. A run is
// started once, finishes once and cannot be restarted.
type Run struct {
	id         string
	storeID    string
	queue      *Queue
	selector   *Selector
	reconciler *Reconciler
	reporter   Reporter
	state      *domain.RunState
	startedAt  time.Time

	startOnce  sync.Once
	cancelOnce sync.Once
	stop       chan struct{}
	done       chan struct{}

	emitMu sync.Mutex
	events chan runEvent

	mu      sync.Mutex
	rows    []domain.ProgressRow
	summary *domain.Summary
}

func NewRun(id, storeID string, queue *Queue, selector *Selector, reconciler *Reconciler, reporter Reporter) *Run {
	if id == "" {
		id = uuid.NewString()
	}
	if reporter == nil {
		reporter = MultiReporter{}
	}
	return &Run{
		id:         id,
		storeID:    storeID,
		queue:      queue,
		selector:   selector,
		reconciler: reconciler,
		reporter:   reporter,
		state:      domain.NewRunState(queue.Pending()),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		events:     make(chan runEvent, eventBuffer),
	}
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) StoreID() string {
	return r.storeID
}

func (r *Run) Config() domain.RunConfiguration {
	return r.queue.Config
}

// Done is closed after the final summary has been reported.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Start begins scheduling. Cancelling ctx aborts in-flight requests as well;
// use Cancel to let them finish.
func (r *Run) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.mu.Lock()
		r.startedAt = time.Now()
		r.mu.Unlock()

		go r.dispatch(context.WithoutCancel(ctx))
		go r.schedule(ctx)
	})
}

// Cancel stops scheduling new tasks. Tasks already in flight settle normally
// and still count. Calling it more than once, or after the run finished, has
// no effect.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() {
		r.mu.Lock()
		finished := r.summary != nil
		r.mu.Unlock()
		if finished {
			return
		}
		log.Infof("🛑 Cancelling tracking sync %s for store %s", r.id, r.storeID)
		close(r.stop)
	})
}

// Summary returns the terminal state, or false while the run is active.
func (r *Run) Summary() (domain.Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return domain.Summary{}, false
	}
	return *r.summary, true
}

func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		RunID:     r.id,
		StoreID:   r.storeID,
		State:     domain.RunStatusRunning,
		Config:    r.queue.Config,
		Counts:    r.state.Counts(),
		Rows:      append([]domain.ProgressRow(nil), r.rows...),
		StartedAt: r.startedAt,
	}
	select {
	case <-r.stop:
		s.CancelRequested = true
	default:
	}
	if r.summary != nil {
		s.State = r.summary.Status
		s.Counts = r.summary.Counts
		finished := r.summary.FinishedAt
		s.FinishedAt = &finished
	}
	return s
}

func (r *Run) schedule(ctx context.Context) {
	cfg := r.queue.Config
	log.Infof("🚀 Starting tracking sync %s for store %s: %d orders, concurrency %d, delay %.1fs",
		r.id, r.storeID, r.queue.Pending(), cfg.Concurrency, cfg.DelaySeconds)

	semaphore := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup

loop:
	for i := range r.queue.Tasks {
		task := &r.queue.Tasks[i]

		select {
		case <-r.stop:
			break loop
		case <-ctx.Done():
			break loop
		case semaphore <- struct{}{}:
		}

		// a cancel may have landed while we waited for the slot
		if r.stopped() || ctx.Err() != nil {
			<-semaphore
			break loop
		}

		wg.Add(1)
		metrics.TaskStarted()
		go func() {
			defer wg.Done()
			defer func() {
				metrics.TaskDone()
				<-semaphore
			}()
			r.process(ctx, task)
		}()
	}

	wg.Wait()
	r.finish()
}

func (r *Run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Run) process(ctx context.Context, task *domain.OrderTrackingTask) {
	entry := log.WithFields(log.Fields{
		"run_id":      r.id,
		"order_id":    task.ID,
		"source_type": task.SourceType,
	})

	start := time.Now()
	statuses, err := r.selector.For(task.SourceType).Fetch(ctx, task)
	metrics.ObserveFetch(task.SourceType.String(), err, time.Since(start))
	if err != nil {
		entry.Debugf("Fetch failed: %v", err)
		metrics.ObserveTask(task.SourceType.String(), "error")
		r.settle(false, []domain.ProgressRow{r.newRow(task, nil, false, err)})
		return
	}

	ok := true
	anyWritten := false
	rows := make([]domain.ProgressRow, 0, len(statuses))
	for i := range statuses {
		status := &statuses[i]
		skipped, werr := r.reconciler.Reconcile(ctx, task, status)
		if werr != nil {
			entry.Debugf("Update failed: %v", werr)
			ok = false
		} else if !skipped {
			anyWritten = true
		}
		rows = append(rows, r.newRow(task, status, skipped, werr))
	}

	switch {
	case !ok:
		metrics.ObserveTask(task.SourceType.String(), "error")
	case anyWritten:
		metrics.ObserveTask(task.SourceType.String(), "updated")
	default:
		metrics.ObserveTask(task.SourceType.String(), "unchanged")
	}
	r.settle(ok, rows)
}

func (r *Run) newRow(task *domain.OrderTrackingTask, status *domain.SupplierStatus, skipped bool, err error) domain.ProgressRow {
	row := domain.ProgressRow{
		RunID:      r.id,
		OrderID:    task.ID,
		SourceID:   task.SourceID,
		SourceType: task.SourceType,
		Skipped:    skipped,
	}
	if status != nil {
		row.Status = status.OrderStatus
		row.StatusLabel = domain.StatusLabel(status.OrderStatus)
		row.Tracking = status.TrackingNumber
		if status.SourceID != "" {
			row.SourceID = status.SourceID
		}
		row.SupplierURL = status.SourceURL
	}
	if row.SupplierURL == "" {
		if ids := task.SourceIDs(); len(ids) > 0 {
			row.SupplierURL = task.SourceType.OrderURL(ids[0])
		}
	}
	if err != nil {
		row.Error = err.Error()
	}
	return row
}

// settle counts one task and queues its rows. Counting and queueing happen
// under one lock so rows reach reporters with monotonically growing counts.
func (r *Run) settle(ok bool, rows []domain.ProgressRow) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	counts, recorded := r.state.Record(ok)
	if !recorded {
		log.Warnf("⚠️ Run %s settled more tasks than it queued", r.id)
		return
	}

	now := time.Now()
	for i := range rows {
		rows[i].Counts = counts
		rows[i].SettledAt = now
	}

	r.mu.Lock()
	r.rows = append(r.rows, rows...)
	r.mu.Unlock()

	for i := range rows {
		r.events <- runEvent{row: &rows[i]}
	}
}

func (r *Run) finish() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	counts := r.state.Counts()
	status := domain.RunStatusCompleted
	if !counts.Done() {
		status = domain.RunStatusCancelled
	}

	r.mu.Lock()
	summary := domain.Summary{
		RunID:      r.id,
		StoreID:    r.storeID,
		Status:     status,
		Counts:     counts,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}
	r.summary = &summary
	r.mu.Unlock()

	metrics.ObserveRun(string(status))
	r.events <- runEvent{summary: &summary}
	close(r.events)
}

// dispatch hands events to the reporter one at a time, in settle order.
func (r *Run) dispatch(ctx context.Context) {
	defer close(r.done)
	for ev := range r.events {
		switch {
		case ev.row != nil:
			r.reporter.RowSettled(ctx, r.storeID, *ev.row)
		case ev.summary != nil:
			r.reporter.RunFinished(ctx, *ev.summary)
		}
	}
}
