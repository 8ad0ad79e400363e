package tracking

import (
	"context"
	"errors"
	"fmt"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/extension"
	"dropified/tracksync/internal/scraper"

	log "github.com/sirupsen/logrus"
)

// Engine prepares tracking sync runs.
type Engine struct {
	backend    client.Backend
	bridge     extension.Bridge
	scraper    scraper.Scraper
	builder    *QueueBuilder
	minVersion string
}

// NewEngine wires the run dependencies. bridge and scr may be nil.
func NewEngine(backend client.Backend, bridge extension.Bridge, scr scraper.Scraper, policy LargeBatchPolicy, minExtensionVersion string) *Engine {
	return &Engine{
		backend:    backend,
		bridge:     bridge,
		scraper:    scr,
		builder:    NewQueueBuilder(backend, policy),
		minVersion: minExtensionVersion,
	}
}

// Prepare builds the queue and checks the extension when the queue needs
// it. The returned run has not started.
func (e *Engine) Prepare(ctx context.Context, req RunRequest, reporter Reporter) (*Run, error) {
	queue, err := e.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	selector := NewSelector(e.backend, e.bridge, e.scraper, req.StoreID, req.StoreType, queue.Config.Delay())
	if selector.NeedsExtension(queue.Tasks) {
		if err := e.checkExtension(ctx); err != nil {
			return nil, err
		}
	}

	return NewRun(req.RunID, req.StoreID, queue, selector, NewReconciler(e.backend, queue.Config.UnfulfilledOnly), reporter), nil
}

func (e *Engine) checkExtension(ctx context.Context) error {
	if e.bridge == nil {
		return &ExtensionError{
			Advice: "install the Dropified browser extension to sync these orders",
			Err:    errors.New("no extension host configured"),
		}
	}

	version, err := e.bridge.Ping(ctx, e.minVersion)
	if err == nil {
		log.Debugf("Extension %s is available", version)
		return nil
	}
	if errors.Is(err, extension.ErrOutdated) {
		return &ExtensionError{
			Advice: fmt.Sprintf("upgrade the Dropified browser extension to %s or later", e.minVersion),
			Err:    err,
		}
	}
	return &ExtensionError{
		Advice: "install or enable the Dropified browser extension to sync these orders",
		Err:    err,
	}
}
