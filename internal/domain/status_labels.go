package domain

import "strings"

var statusLabels = map[string]string{
	"PLACE_ORDER_SUCCESS":       "Awaiting Payment",
	"IN_CANCEL":                 "Awaiting Cancellation",
	"WAIT_SELLER_SEND_GOODS":    "Awaiting Shipment",
	"SELLER_PART_SEND_GOODS":    "Partial Shipment",
	"WAIT_BUYER_ACCEPT_GOODS":   "Awaiting delivery",
	"WAIT_GROUP_SUCCESS":        "Pending operation success",
	"FINISH":                    "Order Completed",
	"IN_ISSUE":                  "Dispute Orders",
	"IN_FROZEN":                 "Frozen Orders",
	"WAIT_SELLER_EXAMINE_MONEY": "Payment not yet confirmed",
	"RISK_CONTROL":              "Payment being verified",
	"IN_PRESELL_PROMOTION":      "Promotion is on",
	"FUND_PROCESSING":           "Fund Processing",

	"D_PENDING_PAYMENT":  "Pending Payment",
	"D_PENDING_SHIPMENT": "Pending Shipment",
	"D_SHIPPED":          "Shipped",
	"D_DELIVERED":        "Delivered",
	"D_CANCELLED":        "Cancelled",
	"D_REFUNDED":         "Refunded",
}

// StatusLabel returns the human label for a supplier status code. Codes
// without a label are returned as-is.
func StatusLabel(code string) string {
	if label, ok := statusLabels[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return label
	}
	return code
}
