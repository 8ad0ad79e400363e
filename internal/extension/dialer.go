package extension

import (
	"context"
	"errors"
	"sync"
	"time"

	"dropified/tracksync/internal/domain"

	log "github.com/sirupsen/logrus"
)

// DialFunc opens a bridge to the extension host.
type DialFunc func(ctx context.Context) (Bridge, error)

type redialBridge struct {
	dial DialFunc

	mu      sync.Mutex
	current Bridge
}

// NewRedialBridge connects on first use and again after the host goes away,
// so the service can start before the browser does.
func NewRedialBridge(address string, timeout time.Duration) Bridge {
	return NewRedialBridgeFunc(func(ctx context.Context) (Bridge, error) {
		return Dial(ctx, address, timeout)
	})
}

func NewRedialBridgeFunc(dial DialFunc) Bridge {
	return &redialBridge{dial: dial}
}

func (r *redialBridge) bridge(ctx context.Context) (Bridge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return r.current, nil
	}
	b, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.current = b
	return b, nil
}

// drop forgets b if it is still the current connection.
func (r *redialBridge) drop(b Bridge) {
	r.mu.Lock()
	if r.current != b {
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.mu.Unlock()

	log.Warnf("🔌 Extension host disconnected, will reconnect on next request")
	b.Close()
}

func (r *redialBridge) Ping(ctx context.Context, minVersion string) (string, error) {
	b, err := r.bridge(ctx)
	if err != nil {
		return "", err
	}
	v, err := b.Ping(ctx, minVersion)
	if errors.Is(err, ErrClosed) {
		r.drop(b)
	}
	return v, err
}

func (r *redialBridge) GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error) {
	b, err := r.bridge(ctx)
	if err != nil {
		return nil, err
	}
	status, err := b.GetOrderStatus(ctx, task)
	if errors.Is(err, ErrClosed) {
		r.drop(b)
	}
	return status, err
}

func (r *redialBridge) Close() error {
	r.mu.Lock()
	b := r.current
	r.current = nil
	r.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close()
}
