package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylarbarrera/whim/internal/cliclient"
)

func withTestClient(t *testing.T, handler http.Handler) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client = cliclient.New(srv.URL)
	cache = withCache(t)
	offline = false
}

func TestDlqListCallsDeadLetterEndpoint(t *testing.T) {
	var hitPath string
	withTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitPath = r.URL.Path
		_ = json.NewEncoder(w).Encode([]map[string]string{{"ID": "failed-1"}})
	}))
	outputFormat = "json"

	out := captureStdout(t, func() {
		require.NoError(t, dlqListCmd.RunE(dlqListCmd, nil))
	})
	assert.Equal(t, "/api/queue/dlq", hitPath)
	assert.Contains(t, out, "failed-1")
}

func TestDlqRetryClonesFailedItemIntoFreshSubmission(t *testing.T) {
	var submitted map[string]any
	spec := "do X"
	withTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/work/failed-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"Repo":     "o/r",
				"Spec":     &spec,
				"Priority": "high",
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/work":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "new-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	outputFormat = "json"

	_ = captureStdout(t, func() {
		require.NoError(t, dlqRetryCmd.RunE(dlqRetryCmd, []string{"failed-1"}))
	})

	require.NotNil(t, submitted)
	assert.Equal(t, "o/r", submitted["repo"])
	assert.Equal(t, "high", submitted["priority"])
	assert.Equal(t, spec, submitted["spec"])
}

func TestDlqDiscardAcknowledgesViaCancel(t *testing.T) {
	var hitPath string
	withTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": false})
	}))

	out := captureStdout(t, func() {
		require.NoError(t, dlqDiscardCmd.RunE(dlqDiscardCmd, []string{"failed-1"}))
	})
	assert.Equal(t, "/api/work/failed-1/cancel", hitPath)
	assert.Contains(t, out, "acknowledged failed-1")
}
