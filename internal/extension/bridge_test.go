package extension

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"dropified/tracksync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost answers bridge requests the way the extension host would.
type fakeHost struct {
	conn    net.Conn
	respond func(msg message) (interface{}, bool)
}

func (h *fakeHost) serve() {
	for {
		var msg message
		if err := readFrame(h.conn, &msg); err != nil {
			return
		}
		resp, ok := h.respond(msg)
		if !ok {
			continue
		}
		if err := writeFrame(h.conn, resp); err != nil {
			return
		}
	}
}

func newPipeBridge(t *testing.T, timeout time.Duration, respond func(msg message) (interface{}, bool)) Bridge {
	t.Helper()
	client, server := net.Pipe()
	host := &fakeHost{conn: server, respond: respond}
	go host.serve()

	b := NewBridge(client, timeout)
	t.Cleanup(func() {
		b.Close()
		server.Close()
	})
	return b
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, map[string]string{"subject": "ping"}))

	assert.Equal(t, []byte{18, 0, 0, 0}, buf.Bytes()[:4])

	var out map[string]string
	require.NoError(t, readFrame(&buf, &out))
	assert.Equal(t, "ping", out["subject"])
}

func TestReadFrameRejectsOversize(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
	var out map[string]string
	assert.Error(t, readFrame(buf, &out))
}

func TestGetOrderStatus(t *testing.T) {
	b := newPipeBridge(t, time.Second, func(msg message) (interface{}, bool) {
		assert.Equal(t, subjectGetOrderStatus, msg.Subject)
		require.NotNil(t, msg.Order)
		assert.Equal(t, "8001", msg.Order.SourceID)
		assert.JSONEq(t, `{"store":"x"}`, string(msg.OrderDetails))
		return map[string]interface{}{
			"id":              msg.ID,
			"orderStatus":     "WAIT_BUYER_ACCEPT_GOODS",
			"tracking_number": "LP00123",
			"end_reason":      "",
		}, true
	})

	status, err := b.GetOrderStatus(context.Background(), &domain.OrderTrackingTask{
		ID:           "1",
		SourceID:     "8001",
		SourceType:   domain.SourceTypeAliExpress,
		OrderDetails: json.RawMessage(`{"store":"x"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "WAIT_BUYER_ACCEPT_GOODS", status.OrderStatus)
	assert.Equal(t, "LP00123", status.TrackingNumber)
}

func TestGetOrderStatusReplyError(t *testing.T) {
	b := newPipeBridge(t, time.Second, func(msg message) (interface{}, bool) {
		return map[string]interface{}{"id": msg.ID, "error": "timeout"}, true
	})

	_, err := b.GetOrderStatus(context.Background(), &domain.OrderTrackingTask{ID: "2", SourceID: "9"})
	require.Error(t, err)

	var re *ReplyError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "timeout", re.Message)
}

func TestGetOrderStatusObjectError(t *testing.T) {
	b := newPipeBridge(t, time.Second, func(msg message) (interface{}, bool) {
		return map[string]interface{}{"id": msg.ID, "error": map[string]string{"code": "LOGIN"}}, true
	})

	_, err := b.GetOrderStatus(context.Background(), &domain.OrderTrackingTask{ID: "2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOGIN")
}

func TestCallTimesOut(t *testing.T) {
	b := newPipeBridge(t, 50*time.Millisecond, func(msg message) (interface{}, bool) {
		return nil, false
	})

	start := time.Now()
	_, err := b.GetOrderStatus(context.Background(), &domain.OrderTrackingTask{ID: "3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallHonoursContext(t *testing.T) {
	b := newPipeBridge(t, time.Minute, func(msg message) (interface{}, bool) {
		return nil, false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := b.GetOrderStatus(ctx, &domain.OrderTrackingTask{ID: "4"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPingVersion(t *testing.T) {
	b := newPipeBridge(t, time.Second, func(msg message) (interface{}, bool) {
		assert.Equal(t, subjectPing, msg.Subject)
		return map[string]interface{}{"id": msg.ID, "version": "2.4.1"}, true
	})

	v, err := b.Ping(context.Background(), "2.4.0")
	require.NoError(t, err)
	assert.Equal(t, "2.4.1", v)

	_, err = b.Ping(context.Background(), "3.0")
	assert.True(t, errors.Is(err, ErrOutdated))
}

func TestClosedBridge(t *testing.T) {
	b := newPipeBridge(t, time.Second, func(msg message) (interface{}, bool) {
		return nil, false
	})
	require.NoError(t, b.Close())

	_, err := b.Ping(context.Background(), "")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoError(t, b.Close())
}

func TestHostDisconnectReleasesCallers(t *testing.T) {
	client, server := net.Pipe()
	b := NewBridge(client, time.Minute)
	defer b.Close()

	go func() {
		var msg message
		readFrame(server, &msg)
		server.Close()
	}()

	_, err := b.Ping(context.Background(), "")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestParseAddress(t *testing.T) {
	network, addr, err := parseAddress("unix:///tmp/ext.sock")
	require.NoError(t, err)
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/tmp/ext.sock", addr)

	network, addr, err = parseAddress("tcp://127.0.0.1:7777")
	require.NoError(t, err)
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "127.0.0.1:7777", addr)

	_, _, err = parseAddress("ws://x")
	assert.Error(t, err)
}

func TestVersionAtLeast(t *testing.T) {
	assert.True(t, versionAtLeast("1.2.3", "1.2.3"))
	assert.True(t, versionAtLeast("1.10", "1.9.9"))
	assert.True(t, versionAtLeast("v2", "1.99"))
	assert.False(t, versionAtLeast("1.2", "1.2.1"))
	assert.False(t, versionAtLeast("", "1.0"))
}
