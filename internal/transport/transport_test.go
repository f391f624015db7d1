package transport

import (
	"bytes"
	"errors"
	"testing"

	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
)

func startServer(t *testing.T, files []string, nReduce int) (*coordinator.Coordinator, *Server) {
	t.Helper()
	lg := logger.NewWithOutput("ERROR", &bytes.Buffer{})

	coord, err := coordinator.New(coordinator.Config{Files: files, NReduce: nReduce, Logger: lg})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	srv, err := NewServer(ServerOpts{ID: "test", BindAddr: "127.0.0.1", Port: 0, Logger: lg}, coord)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown() })
	return coord, srv
}

func TestClientRoundTrip(t *testing.T) {
	_, srv := startServer(t, []string{"a.txt", "b.txt"}, 3)

	client, err := Dial(srv.Addr(), "worker-test")
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer client.Close()

	n, err := client.NumReduce()
	if err != nil || n != 3 {
		t.Fatalf("NumReduce = %d, %v", n, err)
	}

	for want := 0; want < 2; want++ {
		task, found, err := client.GetMapTask()
		if err != nil || !found || task.ID != want {
			t.Fatalf("GetMapTask = %+v found=%v err=%v, want id %d", task, found, err, want)
		}
	}
	if _, found, err := client.GetMapTask(); err != nil || found {
		t.Fatalf("expected empty poll, got found=%v err=%v", found, err)
	}

	done, err := client.MapDone()
	if err != nil || done {
		t.Fatalf("MapDone = %v, %v", done, err)
	}
	client.CompleteMapTask(0)
	client.CompleteMapTask(1)
	if done, _ := client.MapDone(); !done {
		t.Fatalf("expected map phase done")
	}

	for p := 0; p < 3; p++ {
		task, found, err := client.GetReduceTask()
		if err != nil || !found || task.Partition != p {
			t.Fatalf("GetReduceTask = %+v found=%v err=%v", task, found, err)
		}
		if err := client.CompleteReduceTask(p); err != nil {
			t.Fatalf("CompleteReduceTask(%d) failed: %v", p, err)
		}
	}
	if done, _ := client.ReduceDone(); !done {
		t.Fatalf("expected reduce phase done")
	}
}

func TestNotFoundCrossesTheWire(t *testing.T) {
	_, srv := startServer(t, []string{"a.txt"}, 1)

	client, err := Dial(srv.Addr(), "worker-test")
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer client.Close()

	if err := client.CompleteMapTask(42); !errors.Is(err, coordinator.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := client.CompleteReduceTask(9); !errors.Is(err, coordinator.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The connection stays usable after a rejected call.
	if _, err := client.NumReduce(); err != nil {
		t.Fatalf("NumReduce after NotFound failed: %v", err)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	_, srv := startServer(t, []string{"a.txt"}, 1)

	client, err := Dial(srv.Addr(), "worker-test")
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer client.Close()

	if _, err := client.MapDone(); err != nil {
		t.Fatalf("MapDone failed: %v", err)
	}

	addr := srv.Addr()
	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got %v", err)
	}

	if _, err := client.MapDone(); err == nil {
		t.Fatalf("expected error after shutdown")
	}
	if _, err := Dial(addr, "worker-late"); err == nil {
		t.Fatalf("expected dial to fail after shutdown")
	}
	if err := srv.Start(); err == nil {
		t.Fatalf("restarting a shut down server should fail")
	}
}
