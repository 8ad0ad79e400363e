package event

import (
	"encoding/json"
	"fmt"
)

// Event is a progress notification published to run observers.
type Event interface {
	EventType() string
	EventValue() ([]byte, error)
}

// DefaultEventValue provides a common implementation for EventValue
func DefaultEventValue(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

func UnmarshalEvent[T Event](data []byte) (T, error) {
	var e T
	err := json.Unmarshal(data, &e)
	return e, err
}

// Decode rebuilds an event from its type name and serialized value.
func Decode(eventType string, data []byte) (Event, error) {
	switch eventType {
	case TypeRow:
		return UnmarshalEvent[*RowSettled](data)
	case TypeFinished:
		return UnmarshalEvent[*RunFinished](data)
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
