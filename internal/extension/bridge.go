package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"dropified/tracksync/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	subjectPing           = "ping"
	subjectGetOrderStatus = "getOrderStatus"
)

var (
	ErrTimeout  = errors.New("extension did not reply in time")
	ErrClosed   = errors.New("extension bridge closed")
	ErrOutdated = errors.New("extension version is outdated")
)

// ReplyError is an error the extension reported for a request.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return e.Message
}

// Bridge talks to the locally installed browser extension, which performs the
// supplier page requests on our behalf.
type Bridge interface {
	// Ping checks that the extension answers and is at least minVersion.
	Ping(ctx context.Context, minVersion string) (string, error)
	GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error)
	Close() error
}

type orderRef struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	SourceType domain.SourceType `json:"source_type"`
	Bundle     bool              `json:"bundle"`
}

type message struct {
	ID           string          `json:"id"`
	Subject      string          `json:"subject"`
	OrderDetails json.RawMessage `json:"order_details,omitempty"`
	Order        *orderRef       `json:"order,omitempty"`
}

type reply struct {
	ID             string          `json:"id"`
	Version        string          `json:"version,omitempty"`
	OrderStatus    string          `json:"orderStatus"`
	TrackingNumber string          `json:"tracking_number"`
	EndReason      string          `json:"end_reason,omitempty"`
	OrderDetails   json.RawMessage `json:"order_details,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

func (r *reply) err() error {
	if len(r.Error) == 0 || string(r.Error) == "null" || string(r.Error) == "false" {
		return nil
	}
	var text string
	if err := json.Unmarshal(r.Error, &text); err == nil {
		if text == "" {
			return nil
		}
		return &ReplyError{Message: text}
	}
	return &ReplyError{Message: string(r.Error)}
}

type nativeBridge struct {
	conn    io.ReadWriteCloser
	timeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan reply
	closed  bool
	done    chan struct{}
}

// Dial connects to the extension host at a unix:// or tcp:// address.
func Dial(ctx context.Context, address string, timeout time.Duration) (Bridge, error) {
	network, addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to extension host at %s: %w", address, err)
	}

	log.Infof("🔌 Connected to extension host at %s", address)
	return NewBridge(conn, timeout), nil
}

// NewBridge runs the bridge protocol over an established connection. Every
// request is bounded by timeout so a silent extension cannot hold a run slot
// forever.
func NewBridge(conn io.ReadWriteCloser, timeout time.Duration) Bridge {
	if timeout <= 0 {
		timeout = time.Minute
	}
	b := &nativeBridge{
		conn:    conn,
		timeout: timeout,
		pending: make(map[string]chan reply),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *nativeBridge) Ping(ctx context.Context, minVersion string) (string, error) {
	r, err := b.call(ctx, &message{Subject: subjectPing})
	if err != nil {
		return "", err
	}
	if err := r.err(); err != nil {
		return "", err
	}
	if minVersion != "" && !versionAtLeast(r.Version, minVersion) {
		return r.Version, fmt.Errorf("%w: have %q, need %s", ErrOutdated, r.Version, minVersion)
	}
	return r.Version, nil
}

func (b *nativeBridge) GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error) {
	r, err := b.call(ctx, &message{
		Subject:      subjectGetOrderStatus,
		OrderDetails: task.OrderDetails,
		Order: &orderRef{
			ID:         task.ID,
			SourceID:   task.SourceID,
			SourceType: task.SourceType,
			Bundle:     task.IsBundle,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	return &domain.SupplierStatus{
		OrderStatus:    r.OrderStatus,
		TrackingNumber: r.TrackingNumber,
		EndReason:      r.EndReason,
		OrderDetails:   r.OrderDetails,
	}, nil
}

func (b *nativeBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		err = b.conn.Close()
	})
	<-b.done
	return err
}

func (b *nativeBridge) call(ctx context.Context, msg *message) (*reply, error) {
	msg.ID = uuid.NewString()
	ch := make(chan reply, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[msg.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
	}()

	b.writeMu.Lock()
	err := writeFrame(b.conn, msg)
	b.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send %s: %v", ErrClosed, msg.Subject, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case r, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return &r, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v (%s)", ErrTimeout, b.timeout, msg.Subject)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *nativeBridge) readLoop() {
	defer close(b.done)
	defer b.failPending()

	for {
		var r reply
		if err := readFrame(b.conn, &r); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				log.Warnf("⚠️ Extension bridge read failed: %v", err)
			}
			return
		}

		b.mu.Lock()
		ch, ok := b.pending[r.ID]
		b.mu.Unlock()
		if !ok {
			log.Debugf("Dropping extension reply for unknown request %s", r.ID)
			continue
		}
		select {
		case ch <- r:
		default:
		}
	}
}

// failPending releases every waiting caller once the connection is gone.
func (b *nativeBridge) failPending() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

func parseAddress(address string) (string, string, error) {
	switch {
	case strings.HasPrefix(address, "unix://"):
		return "unix", strings.TrimPrefix(address, "unix://"), nil
	case strings.HasPrefix(address, "tcp://"):
		return "tcp", strings.TrimPrefix(address, "tcp://"), nil
	default:
		return "", "", fmt.Errorf("unsupported extension address %q", address)
	}
}
