package client

import (
	"bytes"
	"encoding/json"
	"strings"

	"dropified/tracksync/internal/domain"
)

// flexString accepts ids the backend sends either as numbers or strings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type wireOrder struct {
	ID             flexString      `json:"id"`
	SourceID       flexString      `json:"source_id"`
	SourceType     string          `json:"source_type"`
	SourceStatus   string          `json:"source_status"`
	SourceTracking string          `json:"source_tracking"`
	Bundle         bool            `json:"bundle"`
	OrderDetails   json.RawMessage `json:"order_details"`
}

func (o wireOrder) toTask() domain.OrderTrackingTask {
	sourceID := strings.TrimSpace(string(o.SourceID))
	return domain.OrderTrackingTask{
		ID:             string(o.ID),
		SourceID:       sourceID,
		SourceType:     domain.ParseSourceType(o.SourceType),
		SourceStatus:   o.SourceStatus,
		SourceTracking: o.SourceTracking,
		IsBundle:       o.Bundle || strings.Contains(sourceID, ","),
		OrderDetails:   o.OrderDetails,
	}
}
