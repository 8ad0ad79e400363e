package scraper

import (
	"testing"

	"dropified/tracksync/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderPage = `<html><body>
<div class="order">
  <span class="order-status"></span>
  <span class="order-status">
     Awaiting   delivery
  </span>
  <div class="shipping">
    <input class="tracking" type="text" value="  LX123456789CN ">
  </div>
</div>
</body></html>`

func TestParseOrderPage(t *testing.T) {
	status, err := parseOrderPage(orderPage, config.ScraperProfile{
		StatusSelector:   ".order-status",
		TrackingSelector: ".shipping .tracking",
	})
	require.NoError(t, err)
	assert.Equal(t, "AWAITING_DELIVERY", status.OrderStatus)
	assert.Equal(t, "LX123456789CN", status.TrackingNumber)
}

func TestParseOrderPageMissingStatus(t *testing.T) {
	_, err := parseOrderPage(orderPage, config.ScraperProfile{StatusSelector: ".nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".nope")
}

func TestParseOrderPageNoTrackingSelector(t *testing.T) {
	status, err := parseOrderPage(orderPage, config.ScraperProfile{StatusSelector: ".order-status"})
	require.NoError(t, err)
	assert.Empty(t, status.TrackingNumber)
}
