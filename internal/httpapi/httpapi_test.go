package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/httpapi"
	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/scheduler"
	"github.com/taskgraph/scheduler/internal/store/memstore"
)

// syncQueue runs every enqueued job through the recalculator inline,
// so handler tests observe post-cascade state without a goroutine
// race against the test assertions.
type syncQueue struct {
	recalc *cascade.Recalculator
}

func (q *syncQueue) Enqueue(ctx context.Context, job cascade.Job) error {
	id, err := uuid.Parse(job.TaskID)
	if err != nil {
		return err
	}
	_, err = q.recalc.RecalcFrom(ctx, id, job.VersionToken)
	return err
}

func (q *syncQueue) Subscribe(context.Context, cascade.Handler) error { return nil }
func (q *syncQueue) Close() error                                    { return nil }

func newServer(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	q := &syncQueue{recalc: cascade.NewRecalculator(s)}
	sched := scheduler.New(s, q, scheduler.NewMemProjectLocker())
	return httpapi.NewHandler(sched, nil), s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	h, _ := newServer(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProjectTaskEdge_FullFlow(t *testing.T) {
	h, _ := newServer(t)

	rec := doJSON(t, h, http.MethodPost, "/projects", map[string]string{"name": "p1", "owner_id": "owner-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var project models.Project
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&project))

	rec = doJSON(t, h, http.MethodPost, "/projects/"+project.ID.String()+"/tasks",
		map[string]any{"title": "A", "duration_days": 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	var a models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))

	rec = doJSON(t, h, http.MethodPost, "/projects/"+project.ID.String()+"/tasks",
		map[string]any{"title": "B", "duration_days": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&b))

	rec = doJSON(t, h, http.MethodPost, "/projects/"+project.ID.String()+"/edges",
		map[string]string{"predecessor_id": a.ID.String(), "successor_id": b.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/projects/"+project.ID.String()+"/critical-path", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/projects/"+project.ID.String()+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateEdge_SelfDependencyReturns400(t *testing.T) {
	h, _ := newServer(t)

	rec := doJSON(t, h, http.MethodPost, "/projects", map[string]string{"name": "p1", "owner_id": "owner-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var project models.Project
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&project))

	rec = doJSON(t, h, http.MethodPost, "/projects/"+project.ID.String()+"/tasks",
		map[string]any{"title": "A", "duration_days": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	var a models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))

	rec = doJSON(t, h, http.MethodPost, "/projects/"+project.ID.String()+"/edges",
		map[string]string{"predecessor_id": a.ID.String(), "successor_id": a.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "self_dependency", envelope.Error)
}

func TestRequestRecalc_UnknownTaskReturns404(t *testing.T) {
	h, _ := newServer(t)
	rec := doJSON(t, h, http.MethodPost, "/tasks/"+uuid.New().String()+"/recalc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
