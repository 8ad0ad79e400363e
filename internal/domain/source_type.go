package domain

import (
	"fmt"
	"strings"
)

// SourceType identifies the supplier family an order is fulfilled from. It
// selects the status fetching strategy.
type SourceType string

func (s SourceType) String() string {
	return string(s)
}

const (
	SourceTypeAliExpress  SourceType = "aliexpress"
	SourceTypeEbay        SourceType = "ebay"
	SourceTypePrint       SourceType = "dropified-print"
	SourceTypeSupplements SourceType = "supplements"
	SourceTypeOther       SourceType = "other"
)

var SourceTypes = []SourceType{
	SourceTypeAliExpress,
	SourceTypeEbay,
	SourceTypePrint,
	SourceTypeSupplements,
	SourceTypeOther,
}

// ParseSourceType maps a backend source_type value onto a SourceType.
// Unknown and custom suppliers collapse to SourceTypeOther.
func ParseSourceType(raw string) SourceType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "aliexpress", "":
		return SourceTypeAliExpress
	case "ebay":
		return SourceTypeEbay
	case "dropified-print", "dropified_print", "print":
		return SourceTypePrint
	case "supplements", "pls":
		return SourceTypeSupplements
	default:
		return SourceTypeOther
	}
}

func (s SourceType) GetSupplierName() string {
	switch s {
	case SourceTypeAliExpress:
		return "AliExpress"
	case SourceTypeEbay:
		return "eBay"
	case SourceTypePrint:
		return "Dropified Print"
	case SourceTypeSupplements:
		return "Private Label Supplements"
	default:
		return "Custom supplier"
	}
}

// OrderURL returns the supplier page for a supplier order id, or "" when the
// supplier has no public order page.
func (s SourceType) OrderURL(sourceID string) string {
	if sourceID == "" {
		return ""
	}
	switch s {
	case SourceTypeAliExpress:
		return fmt.Sprintf("https://www.aliexpress.com/p/order/detail.html?orderId=%s", sourceID)
	case SourceTypeEbay:
		return fmt.Sprintf("https://vod.ebay.com/vod/FetchOrderDetails?purchaseOrderId=%s", sourceID)
	default:
		return ""
	}
}

// UsesExtension reports whether the default fetch path for this type goes
// through the browser extension.
func (s SourceType) UsesExtension() bool {
	switch s {
	case SourceTypePrint, SourceTypeSupplements:
		return false
	default:
		return true
	}
}
