// Package it runs whole binas deployments in one process: station nodes and
// a binas server talking real gRPC over in-memory listeners.
package it

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"binas/internal/binas"
	"binas/internal/directory"
	"binas/internal/register"
	"binas/internal/resolver"
	"binas/internal/rpc"
	"binas/internal/station"
	"binas/internal/users"
)

const (
	bufSize     = 1 << 20
	binasTarget = "binas"
)

// Config describes a test cluster.
type Config struct {
	Template       string
	Stations       int
	Capacity       int
	ReturnPrize    int
	ReplicaTimeout time.Duration
	ProbeTimeout   time.Duration
	ReadRepair     bool
	Logger         *slog.Logger
}

// DefaultConfig returns a three station cluster with short timeouts.
func DefaultConfig() Config {
	return Config{
		Template:       "A46_Station",
		Stations:       3,
		Capacity:       10,
		ReturnPrize:    1,
		ReplicaTimeout: 300 * time.Millisecond,
		ProbeTimeout:   200 * time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Cluster is a running deployment.
type Cluster struct {
	cfg Config

	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
	nodes     map[string]*Node

	dir     *directory.Static
	clients *station.ClientManager

	manager     *binas.Manager
	binasServer *grpc.Server
	binasConn   *grpc.ClientConn
	binasClient *binas.Client
}

// Node is one station of the cluster.
type Node struct {
	ID     string
	Addr   string
	node   *station.Node
	client *station.Client
}

// Station returns the station served by the node.
func (n *Node) Station() *station.Station {
	return n.node.Station()
}

// Client returns a gRPC client for the node.
func (n *Node) Client() *station.Client {
	return n.client
}

// SetSilent makes the node stop answering without closing connections.
func (n *Node) SetSilent(silent bool) {
	n.node.SetSilent(silent)
}

// NewCluster creates an empty cluster.
func NewCluster(cfg Config) *Cluster {
	c := &Cluster{
		cfg:       cfg,
		listeners: make(map[string]*bufconn.Listener),
		nodes:     make(map[string]*Node),
		dir:       directory.NewStatic(),
	}
	c.clients = station.NewClientManager(grpc.WithContextDialer(c.dial))
	return c
}

// StartCluster starts every station and the binas server.
func (c *Cluster) StartCluster(ctx context.Context) error {
	for i := 1; i <= c.cfg.Stations; i++ {
		if err := c.StartNode(ctx, fmt.Sprintf("%s%d", c.cfg.Template, i)); err != nil {
			c.Stop()
			return err
		}
	}
	if err := c.startBinas(); err != nil {
		c.Stop()
		return err
	}
	return nil
}

// StartNode starts a fresh station and publishes it in the directory.
func (c *Cluster) StartNode(ctx context.Context, id string) error {
	st, err := station.New(id, station.InitRequest{Capacity: c.cfg.Capacity, ReturnPrize: c.cfg.ReturnPrize})
	if err != nil {
		return fmt.Errorf("failed to create station %s: %w", id, err)
	}

	var (
		lis  = bufconn.Listen(bufSize)
		addr = "passthrough:///" + id
		node = station.NewNode(st, id, station.WithNodeLogger(c.cfg.Logger.With("station", id)))
	)

	c.mu.Lock()
	c.listeners[id] = lis
	c.mu.Unlock()

	go func() { _ = node.Serve(lis) }()

	client, err := c.clients.Get(addr)
	if err != nil {
		node.Kill()
		return fmt.Errorf("failed to dial station %s: %w", id, err)
	}

	n := &Node{ID: id, Addr: addr, node: node, client: client}
	if err := c.waitForReady(ctx, n, 5*time.Second); err != nil {
		node.Kill()
		return fmt.Errorf("station %s failed to become ready: %w", id, err)
	}

	c.mu.Lock()
	c.nodes[id] = n
	c.mu.Unlock()

	return c.dir.Publish(ctx, directory.Record{Name: id, Addr: addr})
}

// waitForReady waits until the node answers GetInfo.
func (c *Cluster) waitForReady(ctx context.Context, node *Node, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for station %s to be ready", node.ID)
			}

			infoCtx, cancel := context.WithTimeout(ctx, time.Second)
			_, err := node.client.Info(infoCtx)
			cancel()

			if err == nil {
				return nil
			}
		}
	}
}

func (c *Cluster) startBinas() error {
	replicas, err := register.NewReplicaSet(c.cfg.Template, c.cfg.Stations)
	if err != nil {
		return err
	}

	var regOpts = []register.Option{
		register.WithReplicaTimeout(c.cfg.ReplicaTimeout),
		register.WithLogger(c.cfg.Logger.With("component", "register")),
	}
	if c.cfg.ReadRepair {
		regOpts = append(regOpts, register.WithReadRepair())
	}

	var (
		res = resolver.New(c.dir, c.clients.Endpoint, c.cfg.Template,
			resolver.WithProbeTimeout(c.cfg.ProbeTimeout),
			resolver.WithLogger(c.cfg.Logger.With("component", "resolver")))
		reg = register.New(replicas, res.Locator(), regOpts...)
		lis = bufconn.Listen(bufSize)
	)

	c.manager = binas.NewManager(users.NewMemoryStore(), reg, res, binas.WithLogger(c.cfg.Logger.With("component", "binas")))
	c.binasServer = binas.NewGRPCServer(c.manager, c.cfg.Logger.With("component", "server"))

	c.mu.Lock()
	c.listeners[binasTarget] = lis
	c.mu.Unlock()

	go func() { _ = c.binasServer.Serve(lis) }()

	conn, err := rpc.Dial("passthrough:///"+binasTarget, grpc.WithContextDialer(c.dial))
	if err != nil {
		return fmt.Errorf("failed to dial binas: %w", err)
	}
	c.binasConn = conn
	c.binasClient = binas.NewClient(conn)
	return nil
}

func (c *Cluster) dial(ctx context.Context, addr string) (net.Conn, error) {
	c.mu.Lock()
	lis, ok := c.listeners[addr]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no listener for %s", addr)
	}
	return lis.DialContext(ctx)
}

// Binas returns a client of the binas server.
func (c *Cluster) Binas() *binas.Client {
	return c.binasClient
}

// Manager returns the manager behind the binas server.
func (c *Cluster) Manager() *binas.Manager {
	return c.manager
}

// GetNode returns a station by id.
func (c *Cluster) GetNode(id string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id]
}

// KillNode stops a station abruptly. It stays in the directory.
func (c *Cluster) KillNode(id string) error {
	c.mu.Lock()
	node, ok := c.nodes[id]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("station %s not found", id)
	}
	node.node.Kill()
	return nil
}

// RestartNode replaces a killed station with a fresh one under the same id.
// The new station has lost every balance.
func (c *Cluster) RestartNode(ctx context.Context, id string) error {
	if err := c.KillNode(id); err != nil {
		return err
	}
	return c.StartNode(ctx, id)
}

// Stop stops every station and the binas server.
func (c *Cluster) Stop() {
	if c.binasConn != nil {
		_ = c.binasConn.Close()
	}
	if c.binasServer != nil {
		c.binasServer.Stop()
	}
	_ = c.clients.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, node := range c.nodes {
		node.node.Kill()
	}
	c.nodes = make(map[string]*Node)
}
