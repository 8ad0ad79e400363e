package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu sync.Mutex

	count      int
	countCalls int
	orders     []domain.OrderTrackingTask
	listedIDs  []string

	updates   []client.OrderUpdate
	updateErr map[string]error // by source id

	supplements map[string][]domain.SupplierStatus
	print       map[string]*domain.SupplierStatus
	printDelay  time.Duration

	inFlight    int
	maxInFlight int
}

func (b *fakeBackend) CountPending(ctx context.Context, filter client.OrderFilter) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countCalls++
	return b.count, nil
}

func (b *fakeBackend) ListOrders(ctx context.Context, filter client.OrderFilter, ids []string) ([]domain.OrderTrackingTask, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listedIDs = ids
	return append([]domain.OrderTrackingTask(nil), b.orders...), nil
}

func (b *fakeBackend) UpdateOrder(ctx context.Context, update client.OrderUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
	return b.updateErr[update.SourceID]
}

func (b *fakeBackend) SyncSupplementOrder(ctx context.Context, req client.SupplementSync) ([]domain.SupplierStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	statuses, ok := b.supplements[req.TrackID]
	if !ok {
		return nil, &client.BackendError{StatusCode: 404, Message: "order not found"}
	}
	return statuses, nil
}

func (b *fakeBackend) GetPrintOrder(ctx context.Context, storeID, sourceID string) (*domain.SupplierStatus, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	status := b.print[sourceID]
	b.mu.Unlock()

	time.Sleep(b.printDelay)

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()

	if status == nil {
		return nil, errors.New("print order not found")
	}
	s := *status
	return &s, nil
}

func (b *fakeBackend) GetUserConfig(ctx context.Context, names []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (b *fakeBackend) SetUserConfig(ctx context.Context, name, value string) error {
	return nil
}

func (b *fakeBackend) updateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.updates)
}

type fakeBridge struct {
	mu      sync.Mutex
	calls   []string
	pingErr error
	replies map[string]*domain.SupplierStatus
	errs    map[string]error
	onCall  func(task *domain.OrderTrackingTask)
}

func (b *fakeBridge) Ping(ctx context.Context, minVersion string) (string, error) {
	return "2.0.0", b.pingErr
}

func (b *fakeBridge) GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error) {
	b.mu.Lock()
	b.calls = append(b.calls, task.ID)
	hook := b.onCall
	err := b.errs[task.ID]
	reply := b.replies[task.ID]
	b.mu.Unlock()

	if hook != nil {
		hook(task)
	}
	if err != nil {
		return nil, err
	}
	if reply == nil {
		reply = &domain.SupplierStatus{OrderStatus: "WAIT_BUYER_ACCEPT_GOODS", TrackingNumber: "LP" + task.ID}
	}
	s := *reply
	return &s, nil
}

func (b *fakeBridge) Close() error {
	return nil
}

func (b *fakeBridge) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type fakeScraper struct {
	types map[domain.SourceType]bool
	calls int
	mu    sync.Mutex
}

func (s *fakeScraper) Supports(sourceType domain.SourceType) bool {
	return s.types[sourceType]
}

func (s *fakeScraper) GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &domain.SupplierStatus{OrderStatus: "SHIPPED", TrackingNumber: "EB1", SourceURL: "https://ebay.test/" + task.SourceID}, nil
}

// recordingReporter checks the counter invariant on every row it receives.
type recordingReporter struct {
	t         *testing.T
	mu        sync.Mutex
	rows      []domain.ProgressRow
	summaries []domain.Summary
}

func (r *recordingReporter) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assert.LessOrEqual(r.t, row.Counts.Settled(), row.Counts.Pending)
	if n := len(r.rows); n > 0 {
		assert.GreaterOrEqual(r.t, row.Counts.Settled(), r.rows[n-1].Counts.Settled())
	}
	assert.Empty(r.t, r.summaries, "row reported after the summary")
	r.rows = append(r.rows, row)
}

func (r *recordingReporter) RunFinished(ctx context.Context, summary domain.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
}

func tasks(sourceType domain.SourceType, ids ...string) []domain.OrderTrackingTask {
	out := make([]domain.OrderTrackingTask, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.OrderTrackingTask{
			ID:             id,
			SourceID:       "9" + id,
			SourceType:     sourceType,
			SourceStatus:   "PLACE_ORDER_SUCCESS",
			SourceTracking: "",
		})
	}
	return out
}

func waitDone(t *testing.T, run *Run) domain.Summary {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
	}
	summary, ok := run.Summary()
	require.True(t, ok)
	return summary
}
