package discovery

import (
	"bytes"
	"testing"
	"time"

	"DistMR/internal/logger"
)

func newMember(t *testing.T, id string, join []string) *Membership {
	t.Helper()
	m, err := New(Config{
		NodeID:    id,
		BindAddr:  "127.0.0.1",
		BindPort:  0,
		JoinAddrs: join,
		Logger:    logger.NewWithOutput("ERROR", &bytes.Buffer{}),
	})
	if err != nil {
		t.Fatalf("Failed to create member %s: %v", id, err)
	}
	t.Cleanup(func() { m.Shutdown() })
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkersJoinAndLeave(t *testing.T) {
	coord := newMember(t, "coordinator", nil)
	if coord.NumWorkers() != 0 {
		t.Fatalf("coordinator alone should count no workers")
	}

	joined := make(chan string, 4)
	coord.OnJoin(func(nodeID, address string) { joined <- nodeID })
	left := make(chan string, 4)
	coord.OnLeave(func(nodeID string) { left <- nodeID })

	w1 := newMember(t, "worker-aaaa", []string{coord.LocalAddr()})
	newMember(t, "worker-bbbb", []string{coord.LocalAddr()})

	waitFor(t, "two workers", func() bool { return coord.NumWorkers() == 2 })

	select {
	case id := <-joined:
		if id != "worker-aaaa" && id != "worker-bbbb" {
			t.Fatalf("unexpected join callback for %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("join callback never fired")
	}

	if _, ok := coord.Address("worker-bbbb"); !ok {
		t.Fatalf("worker-bbbb should have a gossip address")
	}

	members := coord.Members()
	if len(members) != 3 || members[0] != "coordinator" {
		t.Fatalf("unexpected members %v", members)
	}

	if err := w1.Leave(time.Second); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	waitFor(t, "worker to leave", func() bool { return coord.NumWorkers() == 1 })
	select {
	case id := <-left:
		if id != "worker-aaaa" {
			t.Fatalf("unexpected leave callback for %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("leave callback never fired")
	}
	t.Logf("✓ membership tracked: %v", coord.Members())
}

func TestJoinFailureIsNotFatal(t *testing.T) {
	m := newMember(t, "worker-lonely", []string{"127.0.0.1:1"})
	if got := m.Members(); len(got) != 1 || got[0] != "worker-lonely" {
		t.Fatalf("expected a single local member, got %v", got)
	}
}
