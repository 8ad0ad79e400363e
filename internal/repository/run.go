package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dropified/tracksync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

var ErrRunNotFound = errors.New("run not found")

// DB is the part of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS tracking_runs (
	id            TEXT PRIMARY KEY,
	store_id      TEXT NOT NULL,
	status        TEXT NOT NULL,
	config        JSONB NOT NULL,
	pending       INTEGER NOT NULL,
	success       INTEGER NOT NULL DEFAULT 0,
	error         INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS tracking_runs_store_idx ON tracking_runs (store_id, started_at DESC);
CREATE TABLE IF NOT EXISTS tracking_rows (
	run_id        TEXT NOT NULL REFERENCES tracking_runs (id) ON DELETE CASCADE,
	order_id      TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	source_type   TEXT NOT NULL,
	status        TEXT NOT NULL,
	tracking      TEXT NOT NULL,
	skipped       BOOLEAN NOT NULL,
	error         TEXT NOT NULL,
	settled_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, order_id, source_id)
);`

type RunRepository interface {
	EnsureSchema(ctx context.Context) error
	StartRun(ctx context.Context, runID, storeID string, cfg domain.RunConfiguration, pending int, startedAt time.Time) error
	SaveRow(ctx context.Context, row domain.ProgressRow) error
	FinishRun(ctx context.Context, summary domain.Summary) error
	GetRun(ctx context.Context, runID string) (*domain.Summary, error)
}

type runRepository struct {
	db DB
}

func NewRunRepository(db DB) RunRepository {
	return &runRepository{
		db: db,
	}
}

func (r *runRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create run history tables: %w", err)
	}
	return nil
}

func (r *runRepository) StartRun(ctx context.Context, runID, storeID string, cfg domain.RunConfiguration, pending int, startedAt time.Time) error {
	query := `
	INSERT INTO tracking_runs (id, store_id, status, config, pending, started_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, runID, storeID, string(domain.RunStatusRunning), cfg, pending, startedAt)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", runID, err)
	}
	return nil
}

func (r *runRepository) SaveRow(ctx context.Context, row domain.ProgressRow) error {
	query := `
	INSERT INTO tracking_rows (run_id, order_id, source_id, source_type, status, tracking, skipped, error, settled_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (run_id, order_id, source_id)
	DO UPDATE SET status = $5, tracking = $6, skipped = $7, error = $8, settled_at = $9`
	_, err := r.db.Exec(ctx, query,
		row.RunID, row.OrderID, row.SourceID, row.SourceType.String(),
		row.Status, row.Tracking, row.Skipped, row.Error, row.SettledAt)
	if err != nil {
		return fmt.Errorf("failed to save row for order %s: %w", row.OrderID, err)
	}

	query = `UPDATE tracking_runs SET success = $2, error = $3 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, row.RunID, row.Counts.Success, row.Counts.Error); err != nil {
		return fmt.Errorf("failed to update counts of run %s: %w", row.RunID, err)
	}
	return nil
}

func (r *runRepository) FinishRun(ctx context.Context, summary domain.Summary) error {
	query := `
	UPDATE tracking_runs
	SET status = $2, pending = $3, success = $4, error = $5, finished_at = $6
	WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, summary.RunID, string(summary.Status),
		summary.Counts.Pending, summary.Counts.Success, summary.Counts.Error, summary.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", summary.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish run %s: %w", summary.RunID, ErrRunNotFound)
	}
	return nil
}

func (r *runRepository) GetRun(ctx context.Context, runID string) (*domain.Summary, error) {
	query := `
	SELECT id, store_id, status, pending, success, error, started_at, COALESCE(finished_at, started_at)
	FROM tracking_runs WHERE id = $1`

	var s domain.Summary
	var status string
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&s.RunID, &s.StoreID, &status,
		&s.Counts.Pending, &s.Counts.Success, &s.Counts.Error,
		&s.StartedAt, &s.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	s.Status = domain.RunStatus(status)
	return &s, nil
}

// HistoryReporter records run progress in the repository. Write failures are
// logged; history never interrupts a run.
type HistoryReporter struct {
	repo RunRepository
}

func NewHistoryReporter(repo RunRepository) *HistoryReporter {
	return &HistoryReporter{repo: repo}
}

func (h *HistoryReporter) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {
	if err := h.repo.SaveRow(ctx, row); err != nil {
		log.Warnf("⚠️ %v", err)
	}
}

func (h *HistoryReporter) RunFinished(ctx context.Context, summary domain.Summary) {
	if err := h.repo.FinishRun(ctx, summary); err != nil {
		log.Warnf("⚠️ %v", err)
	}
}
