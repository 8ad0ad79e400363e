package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/preferences"
	"dropified/tracksync/internal/service"
	"dropified/tracksync/internal/tracking"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type startResponse struct {
	RunID        string  `json:"run_id"`
	Pending      int     `json:"pending"`
	DelaySeconds float64 `json:"delay_seconds"`
	Concurrency  int     `json:"concurrency"`
}

func (h *Handlers) apiStartRun(w http.ResponseWriter, r *http.Request) {
	var req service.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StoreID == "" {
		jsonError(w, "store_id is required", http.StatusBadRequest)
		return
	}

	run, err := h.runs.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	snap := run.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(startResponse{
		RunID:        run.ID(),
		Pending:      snap.Counts.Pending,
		DelaySeconds: snap.Config.DelaySeconds,
		Concurrency:  snap.Config.Concurrency,
	})
}

func (h *Handlers) apiGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, snap)
}

func (h *Handlers) apiCancelRun(w http.ResponseWriter, r *http.Request) {
	snap, err := h.runs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, snap)
}

func (h *Handlers) apiRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	h.eventHub.serveRun(w, r, runID, func() (SSEEvent, bool, error) {
		snap, err := h.runs.Get(r.Context(), runID)
		if err != nil {
			return SSEEvent{}, false, err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return SSEEvent{}, false, err
		}
		return SSEEvent{RunID: runID, Event: "snapshot", Data: string(data)}, snap.FinishedAt != nil, nil
	})
}

func (h *Handlers) apiLastRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runs.LastRun(r.Context(), chi.URLParam(r, "store_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if summary == nil {
		jsonError(w, "no finished run for this store", http.StatusNotFound)
		return
	}
	jsonOK(w, summary)
}

func (h *Handlers) apiStoreEvents(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		jsonError(w, "progress stream is not enabled", http.StatusNotFound)
		return
	}

	query := r.URL.Query()
	since := query.Get("since")
	if since == "" {
		since = query.Get("after")
	}
	count, _ := strconv.ParseInt(query.Get("count"), 10, 64)
	entries, err := h.history.ReadSince(r.Context(), chi.URLParam(r, "store_id"), since, count)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, entries)
}

func (h *Handlers) apiGetPreferences(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, h.prefs.Get())
}

func (h *Handlers) apiPutPreferences(w http.ResponseWriter, r *http.Request) {
	var u preferences.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cfg, err := h.prefs.Apply(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, cfg)
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrRunActive):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, tracking.ErrNothingToSync), errors.Is(err, tracking.ErrExtensionUnavailable):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, client.ErrBackend):
		jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		log.Errorf("❌ Request failed: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
