package discovery

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	cmap "github.com/orcaman/concurrent-map"

	"DistMR/internal/logger"
)

// WorkerPrefix marks gossip members that are workers.
const WorkerPrefix = "worker-"

// eventDelegate implements memberlist.EventDelegate for handling membership changes
type eventDelegate struct {
	m *Membership
}

func (ed *eventDelegate) NotifyJoin(node *memberlist.Node) {
	ed.m.handleJoin(node)
}

func (ed *eventDelegate) NotifyLeave(node *memberlist.Node) {
	ed.m.handleLeave(node)
}

func (ed *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	ed.m.handleUpdate(node)
}

// Membership tracks which workers are alive through gossip. It is
// observational only: the coordinator logs the counts but never acts on
// them.
type Membership struct {
	memberlist *memberlist.Memberlist
	logger     *logger.Logger

	mu      sync.RWMutex // guards the callbacks
	onJoin  func(nodeID, address string)
	onLeave func(nodeID string)

	members     cmap.ConcurrentMap // nodeID -> address:port
	localNodeID string
}

// Config for gossip membership
type Config struct {
	NodeID    string   // Unique node identifier
	BindAddr  string   // Address to bind to
	BindPort  int      // Port to bind to, 0 picks a free one
	JoinAddrs []string // Addresses to join (format: "host:port")
	Logger    *logger.Logger
}

// New creates the local member and joins JoinAddrs when given. A failed
// join is logged and the node continues alone.
func New(cfg Config) (*Membership, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("NodeID cannot be empty")
	}
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1"
	}

	lg := cfg.Logger
	if lg == nil {
		lg = logger.New("INFO")
	}
	lg = lg.Named("gossip")
	lg.Info("Initializing membership: node_id=%s addr=%s:%d", cfg.NodeID, cfg.BindAddr, cfg.BindPort)

	m := &Membership{
		logger:      lg,
		localNodeID: cfg.NodeID,
		members:     cmap.New(),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.RetransmitMult = 3
	mlConfig.ProbeInterval = 1 * time.Second
	mlConfig.ProbeTimeout = 500 * time.Millisecond
	mlConfig.GossipInterval = 200 * time.Millisecond
	mlConfig.GossipNodes = 3
	mlConfig.Events = &eventDelegate{m: m}
	mlConfig.LogOutput = lg.Writer(logger.DEBUG)

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		lg.Error("Failed to create memberlist: %v", err)
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	m.memberlist = ml

	if len(cfg.JoinAddrs) > 0 {
		n, err := ml.Join(cfg.JoinAddrs)
		if err != nil {
			lg.Warn("Failed to join %v: %v (continuing as single node)", cfg.JoinAddrs, err)
		} else {
			lg.Info("Joined gossip cluster: contacted=%d members=%d", n, ml.NumMembers())
		}
	}

	return m, nil
}

// Address returns the gossip address last seen for nodeID.
func (m *Membership) Address(nodeID string) (string, bool) {
	v, ok := m.members.Get(nodeID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// LocalAddr returns the address other nodes can join through.
func (m *Membership) LocalAddr() string {
	node := m.memberlist.LocalNode()
	return net.JoinHostPort(node.Addr.String(), fmt.Sprint(node.Port))
}

// OnJoin registers a callback for when nodes join
func (m *Membership) OnJoin(callback func(nodeID, address string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onJoin = callback
}

// OnLeave registers a callback for when nodes leave
func (m *Membership) OnLeave(callback func(nodeID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLeave = callback
}

func (m *Membership) handleJoin(node *memberlist.Node) {
	address := net.JoinHostPort(node.Addr.String(), fmt.Sprint(node.Port))

	m.members.Set(node.Name, address)
	m.mu.RLock()
	callback := m.onJoin
	m.mu.RUnlock()

	if node.Name != m.localNodeID {
		m.logger.Info("Node joined: node_id=%s address=%s", node.Name, address)
	}
	if callback != nil {
		callback(node.Name, address)
	}
}

func (m *Membership) handleLeave(node *memberlist.Node) {
	m.members.Remove(node.Name)
	m.mu.RLock()
	callback := m.onLeave
	m.mu.RUnlock()

	m.logger.Info("Node left: node_id=%s", node.Name)
	if callback != nil {
		callback(node.Name)
	}
}

func (m *Membership) handleUpdate(node *memberlist.Node) {
	address := net.JoinHostPort(node.Addr.String(), fmt.Sprint(node.Port))

	m.members.Set(node.Name, address)

	m.logger.Debug("Node updated: node_id=%s address=%s", node.Name, address)
}

// Members returns the live node ids, sorted.
func (m *Membership) Members() []string {
	ids := m.members.Keys()
	sort.Strings(ids)
	return ids
}

// NumWorkers counts live members whose id carries WorkerPrefix.
func (m *Membership) NumWorkers() int {
	n := 0
	for _, id := range m.members.Keys() {
		if strings.HasPrefix(id, WorkerPrefix) {
			n++
		}
	}
	return n
}

// Leave gracefully leaves the cluster
func (m *Membership) Leave(timeout time.Duration) error {
	return m.memberlist.Leave(timeout)
}

// Shutdown stops gossiping without notifying peers
func (m *Membership) Shutdown() error {
	return m.memberlist.Shutdown()
}
