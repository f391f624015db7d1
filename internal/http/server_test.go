package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
	"DistMR/internal/types"
)

func newCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	coord, err := coordinator.New(coordinator.Config{
		Files:   []string{"a.txt", "b.txt"},
		NReduce: 3,
		Logger:  logger.NewWithOutput("ERROR", &bytes.Buffer{}),
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	return coord
}

func TestStatusReportsProgress(t *testing.T) {
	coord := newCoordinator(t)
	task, _ := coord.GetMapTask()
	coord.CompleteMapTask(task.ID)
	coord.GetMapTask()

	srv := NewServer(ServerOpts{ID: "coordinator", Workers: func() int { return 2 }}, coord)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/status", nil))

	if rec.Code != nethttp.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	want := types.Progress{Ready: 0, Running: 1, Done: 1}
	if resp.Progress.Map != want {
		t.Fatalf("map progress = %+v, want %+v", resp.Progress.Map, want)
	}
	if resp.Progress.Reduce.Ready != 3 || resp.NReduce != 3 {
		t.Fatalf("unexpected reduce view %+v n_reduce=%d", resp.Progress.Reduce, resp.NReduce)
	}
	if resp.MapDone || resp.Done {
		t.Fatalf("job should not be done")
	}
	if resp.Workers == nil || *resp.Workers != 2 {
		t.Fatalf("expected worker count 2, got %v", resp.Workers)
	}
	if resp.Journal != nil {
		t.Fatalf("no journal configured, got %+v", resp.Journal)
	}
}

func TestStatusIncludesJournalStats(t *testing.T) {
	srv := NewServer(ServerOpts{
		ID: "coordinator",
		JournalStats: func() map[string]string {
			return map[string]string{"state": "Leader", "last_log_index": "7", "applied_index": "7", "term": "1"}
		},
	}, newCoordinator(t))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/status", nil))
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := JournalStatus{State: "Leader", LastLogIndex: "7", AppliedIndex: "7"}
	if resp.Journal == nil || *resp.Journal != want {
		t.Fatalf("journal status = %+v, want %+v", resp.Journal, want)
	}
}

func TestTasksAndMethodCheck(t *testing.T) {
	coord := newCoordinator(t)
	srv := NewServer(ServerOpts{ID: "coordinator"}, coord)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/tasks", nil))
	var resp TasksResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.MapTasks) != 2 || resp.MapTasks[1].Name != "b.txt" || len(resp.ReduceTasks) != 3 {
		t.Fatalf("unexpected tasks %+v", resp)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodPost, "/status", nil))
	if rec.Code != nethttp.StatusMethodNotAllowed {
		t.Fatalf("POST should be rejected, got %d", rec.Code)
	}
	if coord.Progress().Map.Running != 0 {
		t.Fatalf("status routes must not assign tasks")
	}
}

func TestServeOverTCP(t *testing.T) {
	srv := NewServer(ServerOpts{ID: "coordinator", BindAddr: "127.0.0.1"}, newCoordinator(t))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := nethttp.Get("http://" + srv.Addr() + "/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	t.Logf("✓ status served on %s", srv.Addr())
}
