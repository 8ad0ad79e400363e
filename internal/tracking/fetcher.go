package tracking

import (
	"context"
	"errors"
	"time"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/extension"
	"dropified/tracksync/internal/scraper"
)

// StatusFetcher obtains the current supplier status of one task. Most
// suppliers answer with a single status; supplements may return one per
// supplier sub-order.
type StatusFetcher interface {
	Fetch(ctx context.Context, task *domain.OrderTrackingTask) ([]domain.SupplierStatus, error)
}

type printFetcher struct {
	backend client.Backend
	storeID string
}

func (f *printFetcher) Fetch(ctx context.Context, task *domain.OrderTrackingTask) ([]domain.SupplierStatus, error) {
	if task.SourceID == "" {
		return nil, errors.New("order has no print order id")
	}
	status, err := f.backend.GetPrintOrder(ctx, f.storeID, task.SourceID)
	if err != nil {
		return nil, err
	}
	return []domain.SupplierStatus{*status}, nil
}

type supplementsFetcher struct {
	backend   client.Backend
	storeID   string
	storeType string
}

func (f *supplementsFetcher) Fetch(ctx context.Context, task *domain.OrderTrackingTask) ([]domain.SupplierStatus, error) {
	statuses, err := f.backend.SyncSupplementOrder(ctx, client.SupplementSync{
		StoreID:   f.storeID,
		StoreType: f.storeType,
		SourceID:  task.SourceID,
		TrackID:   task.ID,
	})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, errors.New("supplier returned no orders")
	}
	return statuses, nil
}

// pacedFetcher waits delay after every reply, success or not, while still
// holding the task's slot. This spaces out requests that reach supplier
// sites.
type pacedFetcher struct {
	get   func(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error)
	delay time.Duration
}

func (f *pacedFetcher) Fetch(ctx context.Context, task *domain.OrderTrackingTask) ([]domain.SupplierStatus, error) {
	status, err := f.get(ctx, task)
	sleep(ctx, f.delay)
	if err != nil {
		return nil, err
	}
	return []domain.SupplierStatus{*status}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Selector picks the fetch strategy for a source type.
type Selector struct {
	print       StatusFetcher
	supplements StatusFetcher
	extension   StatusFetcher
	scrape      StatusFetcher
	scraper     scraper.Scraper
}

// NewSelector builds the strategies for one run. scr may be nil when direct
// scraping is disabled.
func NewSelector(backend client.Backend, bridge extension.Bridge, scr scraper.Scraper, storeID, storeType string, delay time.Duration) *Selector {
	s := &Selector{
		print:       &printFetcher{backend: backend, storeID: storeID},
		supplements: &supplementsFetcher{backend: backend, storeID: storeID, storeType: storeType},
		scraper:     scr,
	}
	if bridge != nil {
		s.extension = &pacedFetcher{get: bridge.GetOrderStatus, delay: delay}
	} else {
		s.extension = &pacedFetcher{get: noExtension, delay: 0}
	}
	if scr != nil {
		s.scrape = &pacedFetcher{get: scr.GetOrderStatus, delay: delay}
	}
	return s
}

func (s *Selector) For(sourceType domain.SourceType) StatusFetcher {
	switch sourceType {
	case domain.SourceTypePrint:
		return s.print
	case domain.SourceTypeSupplements:
		return s.supplements
	default:
		if s.scrapes(sourceType) {
			return s.scrape
		}
		return s.extension
	}
}

// NeedsExtension reports whether any task will be fetched through the
// browser extension.
func (s *Selector) NeedsExtension(tasks []domain.OrderTrackingTask) bool {
	for i := range tasks {
		st := tasks[i].SourceType
		if st.UsesExtension() && !s.scrapes(st) {
			return true
		}
	}
	return false
}

func (s *Selector) scrapes(sourceType domain.SourceType) bool {
	return s.scraper != nil && s.scraper.Supports(sourceType)
}

func noExtension(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error) {
	return nil, ErrExtensionUnavailable
}
