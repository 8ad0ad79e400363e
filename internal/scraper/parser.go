package scraper

import (
	"fmt"
	"strings"

	"dropified/tracksync/internal/config"
	"dropified/tracksync/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

// parseOrderPage extracts status and tracking from a supplier order page
// using the profile's CSS selectors.
func parseOrderPage(html string, profile config.ScraperProfile) (*domain.SupplierStatus, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	status := selectText(doc, profile.StatusSelector)
	if status == "" {
		return nil, fmt.Errorf("order status not found on page (selector %q)", profile.StatusSelector)
	}

	tracking := ""
	if profile.TrackingSelector != "" {
		tracking = selectText(doc, profile.TrackingSelector)
	}

	log.Debugf("Parsed supplier page: status=%q tracking=%q", status, tracking)
	return &domain.SupplierStatus{
		OrderStatus:    normalizeStatus(status),
		TrackingNumber: tracking,
	}, nil
}

// selectText returns the first non-empty text (or value attribute for
// inputs) among the elements matching selector.
func selectText(doc *goquery.Document, selector string) string {
	var text string
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if v, ok := s.Attr("value"); ok && strings.TrimSpace(v) != "" {
			text = strings.TrimSpace(v)
			return false
		}
		text = strings.Join(strings.Fields(s.Text()), " ")
		return text == ""
	})
	return text
}

// normalizeStatus turns "Awaiting delivery" into AWAITING_DELIVERY so scraped
// statuses compare the same way extension codes do.
func normalizeStatus(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), "_"))
}
