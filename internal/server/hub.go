package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dropified/tracksync/internal/domain"

	log "github.com/sirupsen/logrus"
)

type SSEEvent struct {
	RunID string
	Event string
	Data  string
}

const (
	eventRow      = "row"
	eventFinished = "finished"
)

// finishedTimeout bounds how long RunFinished waits for room in the
// broadcast queue.
const finishedTimeout = 5 * time.Second

// subscriber gets rows on ch, which may drop when the client is slow, and
// the run's finished event on finished, which never drops.
type subscriber struct {
	runID    string
	ch       chan SSEEvent
	finished chan SSEEvent
}

// EventHub forwards run progress to SSE subscribers of that run.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[*subscriber]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	keepalive time.Duration
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[*subscriber]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
		keepalive: 30 * time.Second,
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for sub := range h.clients {
				if sub.runID != evt.RunID {
					continue
				}
				if evt.Event == eventFinished {
					select {
					case sub.finished <- evt:
					default:
					}
					continue
				}
				select {
				case sub.ch <- evt:
				default:
					// drop if full
				}
			}
			h.mu.RUnlock()
		case <-keepalive.C:
			h.mu.RLock()
			for sub := range h.clients {
				select {
				case sub.ch <- SSEEvent{Event: "keepalive", Data: "ping"}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *EventHub) Broadcast(runID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("⚠️ Failed to encode %s event: %v", event, err)
		return
	}
	evt := SSEEvent{RunID: runID, Event: event, Data: string(data)}
	if event != eventFinished {
		select {
		case h.broadcast <- evt:
		default:
		}
		return
	}

	// subscribers only hang up on finished, so it waits for room
	timer := time.NewTimer(finishedTimeout)
	defer timer.Stop()
	select {
	case h.broadcast <- evt:
	case <-h.stopChan:
	case <-timer.C:
		log.Warnf("⚠️ Event hub is saturated, dropped finished event for run %s", runID)
	}
}

func (h *EventHub) AddClient(runID string) *subscriber {
	sub := &subscriber{
		runID:    runID,
		ch:       make(chan SSEEvent, 64),
		finished: make(chan SSEEvent, 1),
	}
	h.mu.Lock()
	h.clients[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *EventHub) RemoveClient(sub *subscriber) {
	h.mu.Lock()
	delete(h.clients, sub)
	h.mu.Unlock()
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {
	h.Broadcast(row.RunID, eventRow, row)
}

func (h *EventHub) RunFinished(ctx context.Context, summary domain.Summary) {
	h.Broadcast(summary.RunID, eventFinished, summary)
}

// serveRun streams one run's events. The client subscribes before current
// state is read, so nothing settles unseen in between; the state goes out
// first and the stream ends after the finished event.
func (h *EventHub) serveRun(w http.ResponseWriter, r *http.Request, runID string, current func() (SSEEvent, bool, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := h.AddClient(runID)
	defer h.RemoveClient(sub)

	initial, finished, err := current()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()
	if finished {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-sub.ch:
			if err := writeEvent(w, evt); err != nil {
				log.Debugf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		case evt := <-sub.finished:
			// rows queued ahead of it go out first
			for drained := false; !drained; {
				select {
				case row := <-sub.ch:
					if err := writeEvent(w, row); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			if err := writeEvent(w, evt); err != nil {
				log.Debugf("sse: write error: %v", err)
			}
			flusher.Flush()
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, evt SSEEvent) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
	return err
}
