package domain

import (
	"encoding/json"
	"strings"
)

// OrderTrackingTask is one order line to reconcile against its supplier.
type OrderTrackingTask struct {
	ID             string          `json:"id"`
	SourceID       string          `json:"source_id"`       // supplier order id, comma-joined for bundles
	SourceType     SourceType      `json:"source_type"`     // selects the fetch strategy
	SourceStatus   string          `json:"source_status"`   // last known supplier status
	SourceTracking string          `json:"source_tracking"` // last known tracking number
	IsBundle       bool            `json:"bundle"`
	OrderDetails   json.RawMessage `json:"order_details,omitempty"` // passed through to the extension
	Updated        bool            `json:"updated"`
}

// SourceIDs splits a bundle source id into its supplier order ids.
func (t *OrderTrackingTask) SourceIDs() []string {
	parts := strings.Split(t.SourceID, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// SupplierStatus is what a supplier currently reports for an order.
type SupplierStatus struct {
	OrderStatus    string          `json:"orderStatus"`
	TrackingNumber string          `json:"tracking_number"`
	EndReason      string          `json:"end_reason,omitempty"`
	SourceURL      string          `json:"source_url,omitempty"`
	SourceID       string          `json:"source_id,omitempty"` // set when one task maps to several supplier orders
	OrderDetails   json.RawMessage `json:"order_details,omitempty"`
}

// Unchanged reports whether the supplier still says what we already stored.
func (s *SupplierStatus) Unchanged(t *OrderTrackingTask) bool {
	return t.SourceStatus == s.OrderStatus && t.SourceTracking == s.TrackingNumber
}
