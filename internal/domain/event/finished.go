package event

import "dropified/tracksync/internal/domain"

const TypeFinished = "finished"

// RunFinished is emitted exactly once when a run completes or is cancelled.
type RunFinished struct {
	Summary domain.Summary `json:"summary"`
}

func (e *RunFinished) EventType() string {
	return TypeFinished
}

func (e *RunFinished) EventValue() ([]byte, error) {
	return DefaultEventValue(e)
}
