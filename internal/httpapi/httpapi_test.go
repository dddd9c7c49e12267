package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/filelock"
	"github.com/skylarbarrera/whim/internal/httpapi"
	"github.com/skylarbarrera/whim/internal/queue"
	"github.com/skylarbarrera/whim/internal/retry"
	"github.com/skylarbarrera/whim/internal/storage/memstore"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

func newTestHandler() http.Handler {
	s := memstore.New()
	q := queue.New(s)
	reg := workerreg.New(s, retry.Policy{Cap: 5, BaseDelay: time.Second, MaxDelay: time.Minute})
	locks := filelock.New(s)
	return httpapi.NewHandler(q, reg, locks, nil, s)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSubmitAndGetWork(t *testing.T) {
	h := newTestHandler()
	spec := "do X"

	rec := doJSON(t, h, http.MethodPost, "/api/work", map[string]any{
		"repo":     "o/r",
		"spec":     spec,
		"priority": "medium",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var item domain.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, domain.StatusQueued, item.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/work/"+item.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitInvalidJSON(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/work", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkNotFound(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(t, h, http.MethodGet, "/api/work/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelWork(t *testing.T) {
	h := newTestHandler()
	spec := "do X"
	rec := doJSON(t, h, http.MethodPost, "/api/work", map[string]any{"repo": "o/r", "spec": spec})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	rec = doJSON(t, h, http.MethodPost, "/api/work/"+item.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out["cancelled"])
}

func TestGetQueueExcludesTerminalAndDLQIncludesFailed(t *testing.T) {
	h := newTestHandler()
	spec := "do X"

	rec := doJSON(t, h, http.MethodPost, "/api/work", map[string]any{"repo": "o/r", "spec": spec})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item domain.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))

	rec = doJSON(t, h, http.MethodPost, "/api/work/"+item.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []domain.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Empty(t, active, "a cancelled item must not appear in the active queue view")

	rec = doJSON(t, h, http.MethodGet, "/api/queue/dlq", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var failed []domain.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.Empty(t, failed, "a cancelled item is not a failed item, so dlq must stay empty")
}

func TestGetStatusAndMetricsAndLearnings(t *testing.T) {
	h := newTestHandler()

	rec := doJSON(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/learnings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListWorkersEmpty(t *testing.T) {
	h := newTestHandler()
	rec := doJSON(t, h, http.MethodGet, "/api/workers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMaxBodyBytesRejectsOversizedRequests(t *testing.T) {
	s := memstore.New()
	q := queue.New(s)
	reg := workerreg.New(s, retry.Policy{Cap: 5, BaseDelay: time.Second, MaxDelay: time.Minute})
	locks := filelock.New(s)
	handler := httpapi.NewHandler(q, reg, locks, nil, s)
	limited := httpapi.MaxBodyBytes(16)(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/work", bytes.NewBufferString(`{"repo":"o/r","spec":"this body is far longer than sixteen bytes"}`))
	req.ContentLength = int64(len(`{"repo":"o/r","spec":"this body is far longer than sixteen bytes"}`))
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusCreated, rec.Code)
}
