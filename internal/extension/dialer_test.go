package extension

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedialBridgeReconnects(t *testing.T) {
	dials := 0
	var servers []net.Conn
	t.Cleanup(func() {
		for _, s := range servers {
			s.Close()
		}
	})

	b := NewRedialBridgeFunc(func(ctx context.Context) (Bridge, error) {
		dials++
		client, server := net.Pipe()
		servers = append(servers, server)
		host := &fakeHost{conn: server, respond: func(msg message) (interface{}, bool) {
			return map[string]interface{}{"id": msg.ID, "version": "1.0"}, true
		}}
		go host.serve()
		return NewBridge(client, time.Second), nil
	})
	defer b.Close()

	_, err := b.Ping(context.Background(), "")
	require.NoError(t, err)
	_, err = b.Ping(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, dials)

	// host goes away; the next call fails and the one after redials
	servers[0].Close()
	_, err = b.Ping(context.Background(), "")
	assert.True(t, errors.Is(err, ErrClosed))

	_, err = b.Ping(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
}

func TestRedialBridgeDialError(t *testing.T) {
	b := NewRedialBridgeFunc(func(ctx context.Context) (Bridge, error) {
		return nil, errors.New("connection refused")
	})

	_, err := b.Ping(context.Background(), "")
	assert.EqualError(t, err, "connection refused")
	assert.NoError(t, b.Close())
}
