package domain

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ProgressRow is one line of a run's results table, appended in completion
// order.
type ProgressRow struct {
	RunID       string     `json:"run_id"`
	OrderID     string     `json:"order_id"`
	SourceID    string     `json:"source_id"`
	SourceType  SourceType `json:"source_type"`
	Status      string     `json:"status"`
	StatusLabel string     `json:"status_label"`
	Tracking    string     `json:"tracking_number,omitempty"`
	SupplierURL string     `json:"supplier_url,omitempty"`
	Skipped     bool       `json:"skipped"` // unchanged, no write issued
	Error       string     `json:"error,omitempty"`
	Counts      Counts     `json:"counts"`
	SettledAt   time.Time  `json:"settled_at"`
}

// Failed reports whether the row records a fetch or write failure.
func (r *ProgressRow) Failed() bool {
	return r.Error != ""
}

// Summary is the terminal state of a run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StoreID    string    `json:"store_id"`
	Status     RunStatus `json:"status"`
	Counts     Counts    `json:"counts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
