package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSourceType(t *testing.T) {
	cases := map[string]SourceType{
		"aliexpress":      SourceTypeAliExpress,
		"":                SourceTypeAliExpress,
		"eBay":            SourceTypeEbay,
		"dropified-print": SourceTypePrint,
		"supplements":     SourceTypeSupplements,
		"pls":             SourceTypeSupplements,
		"my-warehouse":    SourceTypeOther,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseSourceType(raw), raw)
	}
}

func TestSourceTypeUsesExtension(t *testing.T) {
	assert.True(t, SourceTypeAliExpress.UsesExtension())
	assert.True(t, SourceTypeEbay.UsesExtension())
	assert.True(t, SourceTypeOther.UsesExtension())
	assert.False(t, SourceTypePrint.UsesExtension())
	assert.False(t, SourceTypeSupplements.UsesExtension())
}

func TestOrderURL(t *testing.T) {
	assert.Contains(t, SourceTypeAliExpress.OrderURL("8001"), "orderId=8001")
	assert.Contains(t, SourceTypeEbay.OrderURL("12-34"), "purchaseOrderId=12-34")
	assert.Empty(t, SourceTypeOther.OrderURL("x"))
	assert.Empty(t, SourceTypeAliExpress.OrderURL(""))
}

func TestSourceIDs(t *testing.T) {
	task := &OrderTrackingTask{SourceID: "100, 200,,300"}
	assert.Equal(t, []string{"100", "200", "300"}, task.SourceIDs())
}

func TestSupplierStatusUnchanged(t *testing.T) {
	task := &OrderTrackingTask{SourceStatus: "FINISH", SourceTracking: "LP0001"}

	assert.True(t, (&SupplierStatus{OrderStatus: "FINISH", TrackingNumber: "LP0001"}).Unchanged(task))
	assert.False(t, (&SupplierStatus{OrderStatus: "FINISH", TrackingNumber: "LP0002"}).Unchanged(task))
	assert.False(t, (&SupplierStatus{OrderStatus: "IN_ISSUE", TrackingNumber: "LP0001"}).Unchanged(task))
}

func TestRunConfigurationNormalized(t *testing.T) {
	low := RunConfiguration{DelaySeconds: 0, Concurrency: 0}.Normalized()
	assert.Equal(t, 0.1, low.DelaySeconds)
	assert.Equal(t, 1, low.Concurrency)

	high := RunConfiguration{DelaySeconds: 500, Concurrency: 50}.Normalized()
	assert.Equal(t, 100.0, high.DelaySeconds)
	assert.Equal(t, 10, high.Concurrency)

	assert.Equal(t, int64(1500), RunConfiguration{DelaySeconds: 1.5}.Delay().Milliseconds())
}

func TestRunStateRecord(t *testing.T) {
	state := NewRunState(3)

	counts, ok := state.Record(true)
	assert.True(t, ok)
	assert.Equal(t, Counts{Pending: 3, Success: 1}, counts)
	assert.False(t, counts.Done())

	state.Record(false)
	counts, _ = state.Record(true)
	assert.Equal(t, Counts{Pending: 3, Success: 2, Error: 1}, counts)
	assert.True(t, counts.Done())

	// settling past pending is ignored
	counts, ok = state.Record(true)
	assert.False(t, ok)
	assert.Equal(t, 3, counts.Settled())
}

func TestRunStateConcurrentRecord(t *testing.T) {
	state := NewRunState(100)

	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts, _ := state.Record(i%3 != 0)
			assert.LessOrEqual(t, counts.Settled(), counts.Pending)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, state.Counts().Settled())
}

func TestCountsPercent(t *testing.T) {
	c := Counts{Pending: 4, Success: 1, Error: 2}
	assert.Equal(t, 25.0, c.SuccessPercent())
	assert.Equal(t, 50.0, c.ErrorPercent())
	assert.Equal(t, 0.0, Counts{}.SuccessPercent())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Order Completed", StatusLabel("FINISH"))
	assert.Equal(t, "Awaiting Shipment", StatusLabel("wait_seller_send_goods"))
	assert.Equal(t, "SOMETHING_NEW", StatusLabel("SOMETHING_NEW"))
}
