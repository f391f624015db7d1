package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"DistMR/internal/coordinator"
	"DistMR/internal/discovery"
	httpserver "DistMR/internal/http"
	"DistMR/internal/jobs"
	"DistMR/internal/logger"
	"DistMR/internal/mapreduce"
	"DistMR/internal/raft"
	"DistMR/internal/transport"
	"DistMR/internal/worker"
)

type options struct {
	mode     string
	logLevel string

	// coordinator
	bindAddr      string
	port          int
	files         string
	nReduce       int
	checkInterval time.Duration
	journalDir    string
	journalPort   int
	gossipPort    int
	statusPort    int

	// worker
	job             string
	coordinatorAddr string
	grepPattern     string
	gossipJoin      string
	minBackoff      time.Duration
	maxBackoff      time.Duration

	// shared storage
	dataDir         string
	intermediateDir string
	outputDir       string

	// local
	workers int
}

func main() {
	var opts options
	flag.StringVar(&opts.mode, "mode", "local", "Mode: 'coordinator', 'worker', or 'local' to run a coordinator with in-process workers")
	flag.StringVar(&opts.logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR")

	flag.StringVar(&opts.bindAddr, "bind", "127.0.0.1", "Coordinator bind address")
	flag.IntVar(&opts.port, "port", 1234, "Coordinator RPC port")
	flag.StringVar(&opts.files, "files", "", "Comma-separated input files or directories under -data (default: all of -data)")
	flag.IntVar(&opts.nReduce, "nreduce", 10, "Number of reduce partitions")
	flag.DurationVar(&opts.checkInterval, "check-interval", coordinator.DefaultCheckInterval, "How often the coordinator checks for job completion")
	flag.StringVar(&opts.journalDir, "journal-dir", "", "Directory for the raft task journal (disabled when empty)")
	flag.IntVar(&opts.journalPort, "journal-port", 0, "Raft journal transport port (0 picks a free port)")
	flag.IntVar(&opts.gossipPort, "gossip-port", 0, "Gossip port for worker membership (0 disables it on the coordinator, picks a free port on workers)")

	flag.IntVar(&opts.statusPort, "status-port", 0, "HTTP port for the read-only /status and /tasks views (0 disables it)")

	flag.StringVar(&opts.job, "job", "wordcount", "Job to run: wordcount, indexer, grep")
	flag.StringVar(&opts.coordinatorAddr, "coordinator", "127.0.0.1:1234", "Coordinator RPC address")
	flag.StringVar(&opts.grepPattern, "grep-pattern", "", "Regular expression for the grep job")
	flag.StringVar(&opts.gossipJoin, "gossip-join", "", "Comma-separated gossip addresses to join")
	flag.DurationVar(&opts.minBackoff, "min-backoff", worker.DefaultInitialBackoff, "Initial wait after an empty poll")
	flag.DurationVar(&opts.maxBackoff, "max-backoff", worker.DefaultMaxBackoff, "Maximum wait between polls")

	flag.StringVar(&opts.dataDir, "data", "data", "Shared input directory")
	flag.StringVar(&opts.intermediateDir, "intermediate", "mr-tmp", "Shared intermediate directory")
	flag.StringVar(&opts.outputDir, "output", "mr-out", "Shared output directory")

	flag.IntVar(&opts.workers, "workers", 3, "Number of in-process workers in local mode")
	flag.Parse()

	lg := logger.New(opts.logLevel)

	var err error
	switch opts.mode {
	case "coordinator":
		err = runCoordinator(opts, lg)
	case "worker":
		err = runWorker(opts, lg)
	case "local":
		err = runLocal(opts, lg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode: %s\n", opts.mode)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("[%s] %v", opts.mode, err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// coordinatorNode bundles everything the coordinator process runs.
type coordinatorNode struct {
	coord   *coordinator.Coordinator
	server  *transport.Server
	sup     *coordinator.Supervisor
	journal *raft.Journal
	gossip  *discovery.Membership
	status  *httpserver.Server
	logger  *logger.Logger
}

func startCoordinator(opts options, lg *logger.Logger) (*coordinatorNode, error) {
	files, err := mapreduce.CollectInputs(opts.dataDir, splitList(opts.files))
	if err != nil {
		return nil, err
	}
	lg.Info("Collected %d input files from %s", len(files), opts.dataDir)

	node := &coordinatorNode{logger: lg}

	cfg := coordinator.Config{Files: files, NReduce: opts.nReduce, Logger: lg}
	if opts.journalDir != "" {
		j, err := raft.Open(raft.Config{
			NodeID:   "coordinator",
			BindAddr: opts.bindAddr,
			BindPort: opts.journalPort,
			DataDir:  opts.journalDir,
			Logger:   lg,
		})
		if err != nil {
			return nil, err
		}
		node.journal = j
		cfg.Journal = j
	}

	coord, err := coordinator.New(cfg)
	if err != nil {
		node.close()
		return nil, err
	}
	node.coord = coord

	srv, err := transport.NewServer(transport.ServerOpts{
		ID:       "coordinator",
		BindAddr: opts.bindAddr,
		Port:     opts.port,
		Logger:   lg,
	}, coord)
	if err != nil {
		node.close()
		return nil, err
	}
	if err := srv.Start(); err != nil {
		node.close()
		return nil, err
	}
	node.server = srv

	supCfg := coordinator.SupervisorConfig{
		Interval: opts.checkInterval,
		Shutdown: srv.Shutdown,
		Logger:   lg,
	}
	if opts.mode == "coordinator" && opts.gossipPort > 0 {
		m, err := discovery.New(discovery.Config{
			NodeID:   "coordinator",
			BindAddr: opts.bindAddr,
			BindPort: opts.gossipPort,
			Logger:   lg,
		})
		if err != nil {
			node.close()
			return nil, err
		}
		node.gossip = m
		supCfg.Workers = m.NumWorkers
		m.OnLeave(func(nodeID string) {
			if strings.HasPrefix(nodeID, discovery.WorkerPrefix) {
				lg.Warn("Worker left the pool: node_id=%s (tasks it was running stay running)", nodeID)
			}
		})
		lg.Info("Gossip membership listening on %s", m.LocalAddr())
	}

	if opts.statusPort > 0 {
		statusOpts := httpserver.ServerOpts{
			ID:       "coordinator",
			BindAddr: opts.bindAddr,
			Port:     opts.statusPort,
			Workers:  supCfg.Workers,
			Logger:   lg,
		}
		if node.journal != nil {
			statusOpts.JournalStats = node.journal.Stats
		}
		status := httpserver.NewServer(statusOpts, coord)
		if err := status.Start(); err != nil {
			node.close()
			return nil, err
		}
		node.status = status
	}

	node.sup = coordinator.NewSupervisor(coord, supCfg)
	node.sup.Start()

	lg.Info("Coordinator serving on %s: map_tasks=%d n_reduce=%d", srv.Addr(), len(files), opts.nReduce)
	return node, nil
}

func (n *coordinatorNode) close() {
	if n.sup != nil {
		n.sup.Stop()
	}
	if n.server != nil {
		if err := n.server.Shutdown(); err != nil {
			n.logger.Warn("RPC shutdown failed: %v", err)
		}
	}
	if n.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := n.status.Shutdown(ctx); err != nil {
			n.logger.Warn("Status server shutdown failed: %v", err)
		}
		cancel()
	}
	if n.gossip != nil {
		if err := n.gossip.Leave(time.Second); err != nil {
			n.logger.Warn("Gossip leave failed: %v", err)
		}
		n.gossip.Shutdown()
	}
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			n.logger.Warn("Journal close failed: %v", err)
		}
	}
}

func runCoordinator(opts options, lg *logger.Logger) error {
	node, err := startCoordinator(opts, lg)
	if err != nil {
		return err
	}
	defer node.close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-node.sup.Done():
		lg.Info("Job complete")
	case sig := <-sigCh:
		lg.Warn("Received %s, stopping before the job finished", sig)
	}
	return nil
}

// newWorker resolves the job and builds a worker bound to coord.
func newWorker(opts options, id string, coord worker.Coordinator, lg *logger.Logger) (*worker.Worker, error) {
	registry := jobs.Default()
	if opts.grepPattern != "" {
		if err := jobs.RegisterGrep(registry, opts.grepPattern); err != nil {
			return nil, err
		}
	}
	job, err := registry.Lookup(opts.job)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(registry.Names(), ", "))
	}

	return worker.New(worker.Config{
		ID:              id,
		JobName:         opts.job,
		Job:             job,
		DataDir:         opts.dataDir,
		IntermediateDir: opts.intermediateDir,
		OutputDir:       opts.outputDir,
		InitialBackoff:  opts.minBackoff,
		MaxBackoff:      opts.maxBackoff,
		Logger:          lg,
	}, coord)
}

func runWorker(opts options, lg *logger.Logger) error {
	id := worker.NewID()

	client, err := transport.Dial(opts.coordinatorAddr, id)
	if err != nil {
		return err
	}
	defer client.Close()

	w, err := newWorker(opts, id, client, lg)
	if err != nil {
		return err
	}

	if join := splitList(opts.gossipJoin); len(join) > 0 {
		m, err := discovery.New(discovery.Config{
			NodeID:    id,
			BindAddr:  opts.bindAddr,
			BindPort:  opts.gossipPort,
			JoinAddrs: join,
			Logger:    lg,
		})
		if err != nil {
			return err
		}
		defer func() {
			m.Leave(time.Second)
			m.Shutdown()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		return err
	}
	stats := w.Stats()
	lg.Info("Worker %s finished: map_tasks=%d reduce_tasks=%d", w.ID(), stats.MapTasks, stats.ReduceTasks)
	return nil
}

// runLocal starts a coordinator and opts.workers workers in one process,
// talking over loopback RPC.
func runLocal(opts options, lg *logger.Logger) error {
	opts.port = 0
	if wait := worker.LongestWait(opts.maxBackoff); wait >= opts.checkInterval {
		lg.Warn("Worker waits of up to %v reach the %v check interval; idle workers may miss completion", wait, opts.checkInterval)
	}

	node, err := startCoordinator(opts, lg)
	if err != nil {
		return err
	}
	defer node.close()

	addr := node.server.Addr()
	log.Printf("Starting %d local workers against %s...", opts.workers, addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errs := make(chan error, opts.workers)
	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := worker.NewID()

			client, err := transport.Dial(addr, id)
			if err != nil {
				errs <- err
				return
			}
			defer client.Close()

			w, err := newWorker(opts, id, client, lg)
			if err != nil {
				errs <- err
				return
			}
			errs <- w.Run(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	var runErr error
	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	select {
	case <-node.sup.Done():
	case <-ctx.Done():
		return nil
	}
	log.Printf("Job %s complete, output in %s", opts.job, opts.outputDir)
	return nil
}
