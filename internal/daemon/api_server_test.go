package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/logging"
	"vidqueue/internal/testsupport"
	"vidqueue/internal/workflow"
)

type idleRunner struct{}

func (idleRunner) RunJob(context.Context, *job.Job) error { return nil }

func newTestAPI(t *testing.T, token string) (http.Handler, *jobstore.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, idleRunner{}, logger)
	d, err := New(cfg, store, logger, mgr, filepath.Join(cfg.Paths.LogDir, "daemon.log"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := &apiServer{daemon: d, logger: logger}
	return srv.routes(token), store
}

func TestAPIServerListsJobs(t *testing.T) {
	handler, store := newTestAPI(t, "")
	j, err := job.New(job.Input{Path: "/media/example.mkv"}, job.Settings{Codec: "libx264"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordSubmitted(context.Background(), j.Snapshot()); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs?state=queued", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp jobsPayload
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Input != "/media/example.mkv" {
		t.Fatalf("unexpected jobs: %+v", resp.Jobs)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for job detail, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=x", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestAPIServerStatusRequiresToken(t *testing.T) {
	handler, _ := newTestAPI(t, "secret")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var resp statusPayload
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if resp.Running || resp.PID == 0 || resp.Workflow.Mode == "" {
		t.Fatalf("unexpected status payload: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", w.Code)
	}
}
