package raft

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
	"DistMR/internal/types"

	hraft "github.com/hashicorp/raft"
)

func quietLogger() *logger.Logger {
	return logger.NewWithOutput("ERROR", &bytes.Buffer{})
}

func openJournal(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(Config{
		NodeID:   "coordinator",
		BindAddr: "127.0.0.1",
		BindPort: 0,
		DataDir:  dir,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	return j
}

func applyEntry(t *testing.T, f *FSM, entryType, op string, payload interface{}) interface{} {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(types.LogEntry{Type: entryType, Operation: op, Data: data, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}
	return f.Apply(&hraft.Log{Index: 1, Data: raw})
}

func TestFSMTransitionsOnlyAdvance(t *testing.T) {
	f := NewFSM(quietLogger())

	if res := applyEntry(t, f, types.EntryJob, types.OpSeed, types.JobSeed{Files: []string{"a.txt"}, NReduce: 2}); res != nil {
		t.Fatalf("seed failed: %v", res)
	}
	if res := applyEntry(t, f, types.EntryJob, types.OpSeed, types.JobSeed{Files: []string{"b.txt"}, NReduce: 3}); res == nil {
		t.Fatalf("second seed should be rejected")
	}

	tr := func(status types.Status) types.TaskTransition {
		return types.TaskTransition{Kind: types.KindMap, ID: 0, Status: status}
	}
	applyEntry(t, f, types.EntryTask, types.OpTransition, tr(types.StatusDone))
	applyEntry(t, f, types.EntryTask, types.OpTransition, tr(types.StatusRunning))

	state := f.GetState()
	if state.MapTasks[0] != types.StatusDone {
		t.Fatalf("late RUNNING must not undo DONE, got %s", state.MapTasks[0])
	}
	if state.Files[0] != "a.txt" || state.NReduce != 2 {
		t.Fatalf("seed was overwritten: %+v", state)
	}

	if res := applyEntry(t, f, types.EntryTask, types.OpTransition, types.TaskTransition{Kind: "shuffle", ID: 0, Status: types.StatusDone}); res == nil {
		t.Fatalf("unknown task kind should be rejected")
	}
	if res := applyEntry(t, f, types.EntryTask, types.OpTransition, types.TaskTransition{Kind: types.KindReduce, ID: 0, Status: "lost"}); res == nil {
		t.Fatalf("unknown status should be rejected")
	}
}

type memSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memSink) ID() string    { return "mem" }
func (s *memSink) Cancel() error { s.cancelled = true; return nil }
func (s *memSink) Close() error  { return nil }

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

func TestFSMSnapshotRestore(t *testing.T) {
	f := NewFSM(quietLogger())
	applyEntry(t, f, types.EntryJob, types.OpSeed, types.JobSeed{Files: []string{"a.txt", "b.txt"}, NReduce: 1})
	applyEntry(t, f, types.EntryTask, types.OpTransition, types.TaskTransition{Kind: types.KindMap, ID: 1, Status: types.StatusDone})
	applyEntry(t, f, types.EntryTask, types.OpTransition, types.TaskTransition{Kind: types.KindReduce, ID: 0, Status: types.StatusRunning})

	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	sink := &memSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	restored := NewFSM(quietLogger())
	if err := restored.Restore(nopCloser{bytes.NewReader(sink.Bytes())}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	state := restored.GetState()
	if len(state.Files) != 2 || state.MapTasks[1] != types.StatusDone || state.ReduceTasks[0] != types.StatusRunning {
		t.Fatalf("unexpected restored state %+v", state)
	}
	t.Logf("✓ snapshot restored: version=%d", state.Version)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j := openJournal(t, dir)
	if !j.IsLeader() {
		t.Fatalf("single-node journal should lead after Open")
	}
	if state := j.Stats()["state"]; state != "Leader" {
		t.Fatalf("raft stats report state %q", state)
	}
	if j.State().Seeded() {
		t.Fatalf("fresh journal should be empty")
	}
	if err := j.Seed([]string{"a.txt", "b.txt"}, 2); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := j.Seed([]string{"a.txt"}, 1); err == nil {
		t.Fatalf("second Seed should fail")
	}
	if err := j.Record(types.KindMap, 0, types.StatusRunning); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Record(types.KindMap, 0, types.StatusDone); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Record(types.KindMap, 1, types.StatusRunning); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	j = openJournal(t, dir)
	defer j.Close()

	state := j.State()
	if state.NReduce != 2 || len(state.Files) != 2 {
		t.Fatalf("job definition lost: %+v", state)
	}
	if state.MapTasks[0] != types.StatusDone || state.MapTasks[1] != types.StatusRunning {
		t.Fatalf("task statuses lost: %+v", state.MapTasks)
	}
	t.Logf("✓ journal replayed after reopen: %+v", state.MapTasks)
}

func TestCoordinatorResumesFromJournal(t *testing.T) {
	dir := t.TempDir()
	files := []string{"a.txt", "b.txt", "c.txt"}

	j := openJournal(t, dir)
	coord, err := coordinator.New(coordinator.Config{Files: files, NReduce: 2, Journal: j, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	first, _ := coord.GetMapTask()
	if err := coord.CompleteMapTask(first.ID); err != nil {
		t.Fatalf("CompleteMapTask failed: %v", err)
	}
	second, _ := coord.GetMapTask()
	j.Close()

	j = openJournal(t, dir)
	defer j.Close()

	if _, err := coordinator.New(coordinator.Config{Files: files[:2], NReduce: 2, Journal: j, Logger: quietLogger()}); err == nil {
		t.Fatalf("a different job must not resume from this journal")
	}

	coord, err = coordinator.New(coordinator.Config{Files: files, NReduce: 2, Journal: j, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("Failed to resume coordinator: %v", err)
	}

	tasks := coord.MapTasks()
	if tasks[first.ID].Status != types.StatusDone {
		t.Fatalf("completed task should stay done, got %s", tasks[first.ID].Status)
	}
	if tasks[second.ID].Status != types.StatusRunning {
		t.Fatalf("in-flight task is restored as running, got %s", tasks[second.ID].Status)
	}

	next, ok := coord.GetMapTask()
	if !ok || next.ID != 2 {
		t.Fatalf("expected map task 2 to be handed out next, got %+v ok=%v", next, ok)
	}
}
