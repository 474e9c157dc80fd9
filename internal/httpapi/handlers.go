package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bikeweather/internal/domain"
	"bikeweather/internal/fsm"
)

const (
	maxBodyBytes         = 4 << 10
	defaultTimelineLimit = 12
	maxTimelineLimit     = 168
	streamBuffer         = 8
)

// StateResponse is public representation of current app state.
type StateResponse struct {
	Kind       fsm.Kind        `json:"kind"`
	Generation uint64          `json:"generation"`
	Revision   uint64          `json:"revision"`
	View       fsm.View        `json:"view"`
	Verdict    *domain.Verdict `json:"verdict,omitempty"`
	Failure    *fsm.Failure    `json:"failure,omitempty"`
}

// TimelineResponse is companion timeline window around one instant.
type TimelineResponse struct {
	ID      string                 `json:"id"`
	Time    time.Time              `json:"time"`
	Current *domain.TimelineEntry  `json:"current,omitempty"`
	Before  []domain.TimelineEntry `json:"before"`
	After   []domain.TimelineEntry `json:"after"`
}

type permissionRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !a.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not-ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *API) handleState(w http.ResponseWriter, _ *http.Request) {
	current, revision := a.states.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse(current, revision))
}

// handleStateStream pushes state snapshots as server-sent events.
func (a *API) handleStateStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}
	updates, cancel := a.states.Subscribe(streamBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	current, revision := a.states.Snapshot()
	if err := writeEvent(w, stateResponse(current, revision)); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			if update.Revision <= revision {
				continue
			}
			revision = update.Revision
			if err := writeEvent(w, stateResponse(update.Current, update.Revision)); err != nil {
				a.logger.Debug("state stream closed", "error", err.Error())
				return
			}
			flusher.Flush()
		}
	}
}

func (a *API) handleBecomeReady(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, fsm.BecomeReady{})
}

// handleAction triggers the action offered by the current view.
func (a *API) handleAction(w http.ResponseWriter, r *http.Request) {
	current, _ := a.states.Snapshot()
	if current.View().Action == "" {
		writeJSON(w, http.StatusConflict, errorResponse{Error: fmt.Sprintf("no action available in state %s", current.Kind)})
		return
	}
	a.dispatch(w, r, fsm.UserAction{})
}

// handlePermission reports platform authorization change.
func (a *API) handlePermission(w http.ResponseWriter, r *http.Request) {
	var request permissionRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	status, err := domain.ParsePermissionStatus(request.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if a.permissions != nil {
		a.permissions.Set(status)
	}
	a.dispatch(w, r, fsm.PermissionChanged{Status: status})
}

// handleTimeline returns companion entries around ?at= (RFC3339, default now).
func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	payload, ok := a.timeline.Payload()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "timeline not available"})
		return
	}
	at, err := parseAt(r.URL.Query().Get("at"), a.now)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	response := TimelineResponse{
		ID:     payload.ID,
		Time:   payload.Time,
		Before: a.timeline.Before(at, limit),
		After:  a.timeline.After(at, limit),
	}
	if current, ok := a.timeline.Current(); ok {
		response.Current = &current
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) dispatch(w http.ResponseWriter, r *http.Request, event fsm.Event) {
	if err := a.dispatcher.Dispatch(r.Context(), event); err != nil {
		a.logger.Warn("event dispatch failed", "event", fsm.EventName(event), "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event loop unavailable"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event": fsm.EventName(event)})
}

func stateResponse(current fsm.State, revision uint64) StateResponse {
	return StateResponse{
		Kind:       current.Kind,
		Generation: current.Generation,
		Revision:   revision,
		View:       current.View(),
		Verdict:    current.Verdict,
		Failure:    current.Failure,
	}
}

func parseAt(raw string, now func() time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now(), nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("at must be RFC3339 timestamp")
	}
	return at, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultTimelineLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be positive integer")
	}
	if limit > maxTimelineLimit {
		limit = maxTimelineLimit
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeEvent(w io.Writer, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", raw)
	return err
}
