package raft

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"DistMR/internal/logger"
	"DistMR/internal/types"

	raft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
)

const (
	applyTimeout  = 5 * time.Second
	leaderTimeout = 10 * time.Second
)

// Journal is a single-node Raft log that records the coordinator's task
// transitions. Reopening the same DataDir replays the log into the FSM,
// so a restarted coordinator resumes where it stopped.
type Journal struct {
	nodeID        string
	raft          *raft.Raft
	fsm           *FSM
	logStore      *raftboltdb.BoltStore
	stableStore   *raftboltdb.BoltStore
	snapshotStore raft.SnapshotStore
	transport     *raft.NetworkTransport
	logger        *logger.Logger
}

// Config for opening a journal
type Config struct {
	NodeID   string // Unique node identifier
	BindAddr string // Address to bind Raft transport
	BindPort int    // Port for Raft transport, 0 picks a free one
	DataDir  string // Directory for log store and snapshots
	Logger   *logger.Logger
}

// Open starts the journal, bootstrapping a fresh log when DataDir holds
// no state, and blocks until the node leads and has applied every entry.
func Open(cfg Config) (*Journal, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("NodeID cannot be empty")
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("DataDir cannot be empty")
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1"
	}

	lg := cfg.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}
	lg = lg.Named("journal")
	lg.Info("Opening task journal: node_id=%s bind_addr=%s:%d data_dir=%s", cfg.NodeID, cfg.BindAddr, cfg.BindPort, cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		lg.Error("Failed to create data directory: %v", err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	j := &Journal{
		nodeID: cfg.NodeID,
		fsm:    NewFSM(lg),
		logger: lg,
	}
	logOutput := lg.Writer(logger.DEBUG)

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-logs.db"))
	if err != nil {
		lg.Error("Failed to create log store: %v", err)
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}
	j.logStore = logStore

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		lg.Error("Failed to create stable store: %v", err)
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}
	j.stableStore = stableStore

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, logOutput)
	if err != nil {
		j.closeStores()
		lg.Error("Failed to create snapshot store: %v", err)
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	j.snapshotStore = snapshotStore

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(cfg.BindAddr, fmt.Sprint(cfg.BindPort)))
	if err != nil {
		j.closeStores()
		lg.Error("Failed to resolve address: %v", err)
		return nil, fmt.Errorf("failed to resolve address: %w", err)
	}

	transport, err := raft.NewTCPTransport(addr.String(), nil, 3, 10*time.Second, logOutput)
	if err != nil {
		j.closeStores()
		lg.Error("Failed to create transport: %v", err)
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	j.transport = transport

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 200 * time.Millisecond
	raftCfg.ElectionTimeout = 200 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 100 * time.Millisecond
	raftCfg.SnapshotInterval = 2 * time.Second
	raftCfg.SnapshotThreshold = 64
	raftCfg.LogOutput = lg.Writer(logger.WARN)
	raftCfg.LogLevel = "WARN"
	if lg.Level() == logger.DEBUG {
		raftCfg.LogLevel = "DEBUG"
		raftCfg.LogOutput = logOutput
	}

	existing, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
	if err != nil {
		j.closeAll()
		return nil, fmt.Errorf("failed to inspect journal state: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, j.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		j.closeAll()
		lg.Error("Failed to create raft instance: %v", err)
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}
	j.raft = r

	if !existing {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					Suffrage: raft.Voter,
					ID:       raft.ServerID(cfg.NodeID),
					Address:  transport.LocalAddr(),
				},
			},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			j.Close()
			lg.Error("Failed to bootstrap journal: %v", err)
			return nil, fmt.Errorf("failed to bootstrap journal: %w", err)
		}
		lg.Info("Journal bootstrapped: addr=%s", transport.LocalAddr())
	}

	if err := j.waitForLeader(leaderTimeout); err != nil {
		j.Close()
		return nil, err
	}
	// Barrier returns once every entry already in the log has reached the FSM.
	if err := r.Barrier(applyTimeout).Error(); err != nil {
		j.Close()
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}

	state := j.fsm.GetState()
	lg.Info("Journal ready: restored=%v version=%d map_entries=%d reduce_entries=%d",
		existing, state.Version, len(state.MapTasks), len(state.ReduceTasks))
	return j, nil
}

func (j *Journal) waitForLeader(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if j.IsLeader() {
			return nil
		}
		select {
		case <-deadline:
			return fmt.Errorf("journal did not elect itself leader within %v", timeout)
		case <-ticker.C:
		}
	}
}

// IsLeader returns true if this node is the current leader
func (j *Journal) IsLeader() bool {
	return j.raft.State() == raft.Leader
}

// apply commits a log entry and returns the FSM's error, if any
func (j *Journal) apply(entryType, operation string, payload interface{}) error {
	if !j.IsLeader() {
		return fmt.Errorf("journal is not the leader: state=%s", j.raft.State())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", entryType, err)
	}
	entry := types.LogEntry{
		Type:      entryType,
		Operation: operation,
		Data:      data,
		Timestamp: time.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	f := j.raft.Apply(raw, applyTimeout)
	if err := f.Error(); err != nil {
		return fmt.Errorf("failed to apply log: %w", err)
	}
	if err, ok := f.Response().(error); ok && err != nil {
		return err
	}
	return nil
}

// Seed records the job definition. It fails if the journal already holds
// a job.
func (j *Journal) Seed(files []string, nReduce int) error {
	return j.apply(types.EntryJob, types.OpSeed, types.JobSeed{Files: files, NReduce: nReduce})
}

// Record appends one task status transition.
func (j *Journal) Record(kind types.TaskKind, id int, status types.Status) error {
	return j.apply(types.EntryTask, types.OpTransition, types.TaskTransition{Kind: kind, ID: id, Status: status})
}

// State returns a copy of the journaled job.
func (j *Journal) State() *types.JobState {
	return j.fsm.GetState()
}

// Stats returns the Raft statistics
func (j *Journal) Stats() map[string]string {
	return j.raft.Stats()
}

// Close shuts the Raft node down and releases the stores.
func (j *Journal) Close() error {
	var firstErr error
	if j.raft != nil {
		if err := j.raft.Shutdown().Error(); err != nil {
			firstErr = err
		}
	}
	if err := j.closeAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (j *Journal) closeAll() error {
	var firstErr error
	if j.transport != nil {
		if err := j.transport.Close(); err != nil {
			firstErr = err
		}
		j.transport = nil
	}
	if err := j.closeStores(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (j *Journal) closeStores() error {
	var firstErr error
	if j.logStore != nil {
		if err := j.logStore.Close(); err != nil {
			firstErr = err
		}
		j.logStore = nil
	}
	if j.stableStore != nil {
		if err := j.stableStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		j.stableStore = nil
	}
	return firstErr
}
