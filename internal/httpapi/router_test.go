package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeweather/internal/companion"
	"bikeweather/internal/domain"
	"bikeweather/internal/fsm"
	"bikeweather/internal/state"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []fsm.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event fsm.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) recorded() []fsm.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]fsm.Event(nil), d.events...)
}

type recordingPermissions struct {
	status domain.PermissionStatus
}

func (p *recordingPermissions) Set(status domain.PermissionStatus) {
	p.status = status
}

var apiNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func newTestAPI(t *testing.T) (http.Handler, *state.Container, *recordingDispatcher, *companion.Timeline, *recordingPermissions) {
	t.Helper()
	container := state.NewContainer(fsm.Initial())
	dispatcher := &recordingDispatcher{}
	timeline := companion.NewTimeline()
	permissions := &recordingPermissions{}
	router := NewRouter(container, dispatcher, timeline, Options{
		HealthPath:  "/healthz",
		ReadyPath:   "/readyz",
		Permissions: permissions,
		Now:         func() time.Time { return apiNow },
	})
	return router, container, dispatcher, timeline, permissions
}

func serve(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func failedState(t *testing.T, container *state.Container) {
	t.Helper()
	_, revision := container.Snapshot()
	_, err := container.Replace(revision, fsm.State{
		Kind:       fsm.KindFailed,
		Generation: 3,
		Failure:    &fsm.Failure{Kind: "forecast_failure", Message: "fetch forecast: status 503"},
	})
	require.NoError(t, err)
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	ready := false
	router := NewRouter(state.NewContainer(fsm.Initial()), &recordingDispatcher{}, companion.NewTimeline(), Options{
		Ready: func() bool { return ready },
	})

	health := serve(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, "ok", health.Body.String())

	notReady := serve(router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, notReady.Code)
	assert.Equal(t, "not-ready", notReady.Body.String())

	ready = true
	readyResponse := serve(router, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, readyResponse.Code)
	assert.Equal(t, "ready", readyResponse.Body.String())
}

func TestStateEndpoint(t *testing.T) {
	t.Parallel()

	router, container, _, _, _ := newTestAPI(t)
	failedState(t, container)

	response := serve(router, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, response.Code)

	var body StateResponse
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	assert.Equal(t, fsm.KindFailed, body.Kind)
	assert.Equal(t, uint64(3), body.Generation)
	assert.Equal(t, uint64(2), body.Revision)
	assert.Equal(t, "Sorry", body.View.Status)
	assert.Equal(t, fsm.ActionRetry, body.View.Action)
	require.NotNil(t, body.Failure)
	assert.Equal(t, "fetch forecast: status 503", body.Failure.Message)
}

func TestBecomeReadyDispatches(t *testing.T) {
	t.Parallel()

	router, _, dispatcher, _, _ := newTestAPI(t)
	response := serve(router, http.MethodPost, "/v1/ready", "")
	require.Equal(t, http.StatusAccepted, response.Code)
	assert.Equal(t, []fsm.Event{fsm.BecomeReady{}}, dispatcher.recorded())
}

func TestActionRequiresAvailableAction(t *testing.T) {
	t.Parallel()

	router, container, dispatcher, _, _ := newTestAPI(t)

	conflict := serve(router, http.MethodPost, "/v1/action", "")
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Empty(t, dispatcher.recorded())

	failedState(t, container)
	accepted := serve(router, http.MethodPost, "/v1/action", "")
	assert.Equal(t, http.StatusAccepted, accepted.Code)
	assert.Equal(t, []fsm.Event{fsm.UserAction{}}, dispatcher.recorded())
}

func TestDispatchFailureReturnsUnavailable(t *testing.T) {
	t.Parallel()

	router, _, dispatcher, _, _ := newTestAPI(t)
	dispatcher.err = errors.New("driver stopped")

	response := serve(router, http.MethodPost, "/v1/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, response.Code)
}

func TestPermissionCallback(t *testing.T) {
	t.Parallel()

	router, _, dispatcher, _, permissions := newTestAPI(t)

	response := serve(router, http.MethodPost, "/v1/permission", `{"status":"Denied"}`)
	require.Equal(t, http.StatusAccepted, response.Code)
	assert.Equal(t, domain.PermissionDenied, permissions.status)
	assert.Equal(t, []fsm.Event{fsm.PermissionChanged{Status: domain.PermissionDenied}}, dispatcher.recorded())

	invalid := serve(router, http.MethodPost, "/v1/permission", `{"status":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	unknownField := serve(router, http.MethodPost, "/v1/permission", `{"status":"granted","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, unknownField.Code)
	assert.Len(t, dispatcher.recorded(), 1)
}

func TestTimelineEndpoint(t *testing.T) {
	t.Parallel()

	router, _, _, timeline, _ := newTestAPI(t)

	missing := serve(router, http.MethodGet, "/v1/timeline", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	start := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	entries := make([]domain.TimelineEntry, 0, 6)
	for hour := 0; hour < 6; hour++ {
		entries = append(entries, domain.TimelineEntry{
			Time:    start.Add(time.Duration(hour) * time.Hour),
			Outcome: domain.OutcomeFavorable,
			Reasons: []string{"Temperature is fine."},
		})
	}
	require.True(t, timeline.Apply(domain.TimelinePayload{ID: "p-1", Time: start, Data: entries}))

	response := serve(router, http.MethodGet, "/v1/timeline?limit=2", "")
	require.Equal(t, http.StatusOK, response.Code)

	var body TimelineResponse
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
	assert.Equal(t, "p-1", body.ID)
	require.NotNil(t, body.Current)
	assert.True(t, body.Current.Time.Equal(start))
	require.Len(t, body.Before, 2)
	assert.True(t, body.Before[0].Time.Equal(start.Add(2*time.Hour)))
	assert.True(t, body.Before[1].Time.Equal(start.Add(3*time.Hour)))
	require.Len(t, body.After, 2)
	assert.True(t, body.After[0].Time.Equal(start.Add(4*time.Hour)))

	badAt := serve(router, http.MethodGet, "/v1/timeline?at=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, badAt.Code)
	badLimit := serve(router, http.MethodGet, "/v1/timeline?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func TestStateStreamPushesUpdates(t *testing.T) {
	t.Parallel()

	router, container, _, _, _ := newTestAPI(t)
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/state/stream", nil)
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))

	reader := bufio.NewReader(response.Body)
	first := readStateEvent(t, reader)
	assert.Equal(t, fsm.KindInitial, first.Kind)

	failedState(t, container)
	second := readStateEvent(t, reader)
	assert.Equal(t, fsm.KindFailed, second.Kind)
	assert.Equal(t, uint64(2), second.Revision)
}

func readStateEvent(t *testing.T, reader *bufio.Reader) StateResponse {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var body StateResponse
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &body))
		return body
	}
}
