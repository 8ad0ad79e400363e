package tracking

import (
	"context"
	"testing"

	"dropified/tracksync/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestMultiReporterFansOut(t *testing.T) {
	a := &recordingReporter{t: t}
	b := &recordingReporter{t: t}
	m := MultiReporter{a, NewLogReporter(), b}

	row := domain.ProgressRow{OrderID: "1", Counts: domain.Counts{Pending: 1, Success: 1}}
	m.RowSettled(context.Background(), "42", row)
	m.RunFinished(context.Background(), domain.Summary{RunID: "r", Status: domain.RunStatusCompleted})

	for _, r := range []*recordingReporter{a, b} {
		assert.Len(t, r.rows, 1)
		assert.Len(t, r.summaries, 1)
	}
}
