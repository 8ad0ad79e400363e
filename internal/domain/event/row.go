package event

import "dropified/tracksync/internal/domain"

const TypeRow = "row"

// RowSettled is emitted once per settled task (or supplier sub-order).
type RowSettled struct {
	StoreID string             `json:"store_id"`
	Row     domain.ProgressRow `json:"row"`
}

func (e *RowSettled) EventType() string {
	return TypeRow
}

func (e *RowSettled) EventValue() ([]byte, error) {
	return DefaultEventValue(e)
}
