package tracking

import (
	"context"

	"dropified/tracksync/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Reporter observes a run. Calls arrive from a single goroutine per run, in
// the order rows settled, and RunFinished comes last and exactly once.
type Reporter interface {
	RowSettled(ctx context.Context, storeID string, row domain.ProgressRow)
	RunFinished(ctx context.Context, summary domain.Summary)
}

// MultiReporter fans every notification out to each reporter in turn.
type MultiReporter []Reporter

func (m MultiReporter) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {
	for _, r := range m {
		r.RowSettled(ctx, storeID, row)
	}
}

func (m MultiReporter) RunFinished(ctx context.Context, summary domain.Summary) {
	for _, r := range m {
		r.RunFinished(ctx, summary)
	}
}

type logReporter struct{}

// NewLogReporter writes rows and summaries to the application log.
func NewLogReporter() Reporter {
	return logReporter{}
}

func (logReporter) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {
	entry := log.WithFields(log.Fields{
		"run_id":      row.RunID,
		"store_id":    storeID,
		"order_id":    row.OrderID,
		"source_type": row.SourceType,
	})
	switch {
	case row.Failed():
		entry.Warnf("❌ Order %s failed (%d/%d): %s", row.OrderID, row.Counts.Settled(), row.Counts.Pending, row.Error)
	case row.Skipped:
		entry.Debugf("Order %s unchanged: %s", row.OrderID, row.StatusLabel)
	default:
		entry.Debugf("Order %s updated: %s %s", row.OrderID, row.StatusLabel, row.Tracking)
	}
}

func (logReporter) RunFinished(ctx context.Context, summary domain.Summary) {
	log.WithFields(log.Fields{
		"run_id":   summary.RunID,
		"store_id": summary.StoreID,
	}).Infof("🏁 Tracking sync %s: %d updated, %d failed, %d of %d settled",
		summary.Status, summary.Counts.Success, summary.Counts.Error, summary.Counts.Settled(), summary.Counts.Pending)
}
