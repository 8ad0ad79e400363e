package event

import (
	"testing"

	"dropified/tracksync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowSettledValue(t *testing.T) {
	e := &RowSettled{
		StoreID: "12",
		Row: domain.ProgressRow{
			RunID:      "run-1",
			OrderID:    "55",
			SourceType: domain.SourceTypeEbay,
			Status:     "FINISH",
			Counts:     domain.Counts{Pending: 2, Success: 1},
		},
	}
	assert.Equal(t, TypeRow, e.EventType())

	data, err := e.EventValue()
	require.NoError(t, err)

	got, err := UnmarshalEvent[*RowSettled](data)
	require.NoError(t, err)
	assert.Equal(t, "12", got.StoreID)
	assert.Equal(t, domain.SourceTypeEbay, got.Row.SourceType)
	assert.Equal(t, 1, got.Row.Counts.Success)
}

func TestRunFinishedType(t *testing.T) {
	e := &RunFinished{Summary: domain.Summary{RunID: "r", Status: domain.RunStatusCancelled}}
	assert.Equal(t, TypeFinished, e.EventType())

	data, err := e.EventValue()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"cancelled"`)
}

func TestDecode(t *testing.T) {
	e := &RunFinished{Summary: domain.Summary{RunID: "r", Counts: domain.Counts{Pending: 3, Error: 3}}}
	data, err := e.EventValue()
	require.NoError(t, err)

	got, err := Decode(TypeFinished, data)
	require.NoError(t, err)
	finished, ok := got.(*RunFinished)
	require.True(t, ok)
	assert.Equal(t, 3, finished.Summary.Counts.Error)

	_, err = Decode("bogus", data)
	assert.Error(t, err)
}
