package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crontub/scheduler"
)

type fakeSource struct {
	entries   []scheduler.FileEntry
	jobs      []scheduler.RunningJob
	records   []scheduler.ExecutionRecord
	err       error
	lastLimit int
}

func (f *fakeSource) Snapshot() []scheduler.FileEntry { return f.entries }
func (f *fakeSource) Jobs() []scheduler.RunningJob    { return f.jobs }
func (f *fakeSource) State() scheduler.State          { return scheduler.StateIdle }
func (f *fakeSource) Recent(_ context.Context, limit int) ([]scheduler.ExecutionRecord, error) {
	f.lastLimit = limit
	return f.records, f.err
}

func newTestServer(src Source) *StatusServer {
	s := NewStatusServer("127.0.0.1:0", src, zap.NewNop().Sugar())
	s.now = func() time.Time { return time.Date(2024, time.May, 1, 10, 0, 30, 0, time.UTC) }
	return s
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthz(t *testing.T) {
	rec, body := get(t, newTestServer(&fakeSource{}).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["state"])
}

func TestJobs(t *testing.T) {
	spec, err := scheduler.ParseSchedule("*/15 * * * *")
	require.NoError(t, err)
	src := &fakeSource{
		entries: []scheduler.FileEntry{
			{Path: "/jobs/a.sh", Raw: "*/15 * * * *", Spec: spec, Enabled: true},
			{Path: "/jobs/b.sh", Raw: "*/15 * * * *", Spec: spec, Enabled: false, LastError: "bad month"},
		},
		jobs: []scheduler.RunningJob{{ID: "1", Path: "/jobs/a.sh"}},
	}

	rec, body := get(t, newTestServer(src).Handler(), "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.EqualValues(t, 2, body["count"])

	data := body["data"].([]interface{})
	first := data[0].(map[string]interface{})
	assert.Equal(t, "/jobs/a.sh", first["path"])
	assert.Equal(t, "0,15,30,45 * * * *", first["canonical"])
	assert.Equal(t, "2024-05-01T10:15:00Z", first["next_run"])

	second := data[1].(map[string]interface{})
	assert.Equal(t, "bad month", second["last_error"])
	assert.NotContains(t, second, "next_run")

	assert.Len(t, body["running"], 1)
}

func TestExecutions(t *testing.T) {
	src := &fakeSource{records: []scheduler.ExecutionRecord{
		{ID: "x", Path: "/jobs/a.sh", Outcome: scheduler.OutcomeFailed, ExitCode: 3},
	}}
	h := newTestServer(src).Handler()

	rec, body := get(t, h, "/api/executions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, src.lastLimit)
	assert.EqualValues(t, 1, body["count"])

	_, _ = get(t, h, "/api/executions?limit=5")
	assert.Equal(t, 5, src.lastLimit)
}

func TestExecutionsBadLimit(t *testing.T) {
	for _, limit := range []string{"abc", "0", "-2"} {
		rec, body := get(t, newTestServer(&fakeSource{}).Handler(), "/api/executions?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
		assert.Equal(t, "limit must be a positive integer", body["error"])
	}
}

func TestExecutionsStoreError(t *testing.T) {
	src := &fakeSource{err: errors.New("redis down")}
	rec, body := get(t, newTestServer(src).Handler(), "/api/executions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", body["error"])
}

func TestReadOnly(t *testing.T) {
	h := newTestServer(&fakeSource{}).Handler()
	for _, target := range []string{"/api/jobs", "/api/executions"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
	}
}

func TestServeThenShutdown(t *testing.T) {
	s := newTestServer(&fakeSource{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	url := fmt.Sprintf("http://%s/healthz", ln.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	_, err = http.Get(url)
	assert.Error(t, err)
}

func TestShutdownBeforeStart(t *testing.T) {
	s := newTestServer(&fakeSource{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}
