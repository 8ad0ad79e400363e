package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"dropified/tracksync/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls    []execCall
	affected int64
	err      error
	row      pgx.Row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	if strings.Contains(sql, "UPDATE") {
		return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(f.affected, 10)), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

type summaryRow struct{}

func (summaryRow) Scan(dest ...any) error {
	*dest[0].(*string) = "run-1"
	*dest[1].(*string) = "42"
	*dest[2].(*string) = "cancelled"
	*dest[3].(*int) = 3
	*dest[4].(*int) = 1
	*dest[5].(*int) = 0
	*dest[6].(*time.Time) = time.Unix(100, 0)
	*dest[7].(*time.Time) = time.Unix(200, 0)
	return nil
}

func TestSaveRowUpsertsAndUpdatesCounts(t *testing.T) {
	db := &fakeDB{affected: 1}
	repo := NewRunRepository(db)

	err := repo.SaveRow(context.Background(), domain.ProgressRow{
		RunID:      "run-1",
		OrderID:    "7",
		SourceID:   "s1",
		SourceType: domain.SourceTypeSupplements,
		Status:     "D_SHIPPED",
		Counts:     domain.Counts{Pending: 2, Success: 1},
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 2)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (run_id, order_id, source_id)")
	assert.Equal(t, "supplements", db.calls[0].args[3])
	assert.Equal(t, []any{"run-1", 1, 0}, db.calls[1].args)
}

func TestFinishRunMissing(t *testing.T) {
	db := &fakeDB{affected: 0}
	err := NewRunRepository(db).FinishRun(context.Background(), domain.Summary{RunID: "ghost"})
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestGetRun(t *testing.T) {
	repo := NewRunRepository(&fakeDB{row: summaryRow{}})
	s, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, s.Status)
	assert.Equal(t, domain.Counts{Pending: 3, Success: 1}, s.Counts)

	repo = NewRunRepository(&fakeDB{row: errRow{err: pgx.ErrNoRows}})
	_, err = repo.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestHistoryReporterSwallowsErrors(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	h := NewHistoryReporter(NewRunRepository(db))

	assert.NotPanics(t, func() {
		h.RowSettled(context.Background(), "42", domain.ProgressRow{RunID: "r"})
		h.RunFinished(context.Background(), domain.Summary{RunID: "r"})
	})
	assert.Len(t, db.calls, 2)
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewRunRepository(db).EnsureSchema(context.Background()))
	assert.Contains(t, db.calls[0].sql, "CREATE TABLE IF NOT EXISTS tracking_runs")
}
