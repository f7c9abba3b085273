package station

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"binas/internal/rpc"
)

// Node runs one station behind a gRPC server.
type Node struct {
	station    *Station
	listenAddr string
	logger     *slog.Logger

	mu         sync.Mutex
	grpcServer *grpc.Server
	listener   net.Listener

	// silent makes every call hang until its caller gives up, which is how
	// a partitioned station looks from the outside.
	silent atomic.Bool
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithNodeLogger sets the node's logger.
func WithNodeLogger(logger *slog.Logger) NodeOption {
	return func(n *Node) {
		n.logger = logger
	}
}

// NewNode creates a node serving st on listenAddr.
func NewNode(st *Station, listenAddr string, opts ...NodeOption) *Node {
	n := &Node{
		station:    st,
		listenAddr: listenAddr,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Station returns the served station.
func (n *Node) Station() *Station {
	return n.station
}

// Addr returns the bound address once the node is serving, or the configured
// listen address before that.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener != nil {
		return n.listener.Addr().String()
	}
	return n.listenAddr
}

// SetSilent toggles whether the node stops answering.
func (n *Node) SetSilent(silent bool) {
	n.silent.Store(silent)
	n.logger.Info("station silence changed", "station", n.station.ID(), "silent", silent)
}

// Silent reports whether the node is silenced.
func (n *Node) Silent() bool {
	return n.silent.Load()
}

// Start listens on the configured address and serves until Stop or Kill.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.listenAddr, err)
	}
	return n.Serve(lis)
}

// Serve serves on lis until Stop or Kill.
func (n *Node) Serve(lis net.Listener) error {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(n.silenceInterceptor, rpc.LoggingInterceptor(n.logCall)),
	)
	RegisterStationServer(server, NewServer(n.station, n.logger))

	n.mu.Lock()
	n.grpcServer = server
	n.listener = lis
	n.mu.Unlock()

	n.logger.Info("starting station", "station", n.station.ID(), "addr", lis.Addr().String())

	if err := server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the node.
func (n *Node) Stop() {
	n.mu.Lock()
	server := n.grpcServer
	n.mu.Unlock()

	if server != nil {
		n.logger.Info("stopping station", "station", n.station.ID())
		n.silent.Store(false)
		server.GracefulStop()
	}
}

// Kill stops the node without waiting for in-flight calls.
func (n *Node) Kill() {
	n.mu.Lock()
	server := n.grpcServer
	n.mu.Unlock()

	if server != nil {
		n.logger.Info("killing station", "station", n.station.ID())
		server.Stop()
	}
}

func (n *Node) silenceInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if n.silent.Load() {
		<-ctx.Done()
		return nil, errorTable.ToStatus(ctx.Err())
	}
	return handler(ctx, req)
}

func (n *Node) logCall(method string, elapsed time.Duration, err error) {
	if err != nil {
		n.logger.Debug("call failed", "station", n.station.ID(), "method", method, "elapsed", elapsed, "error", err)
		return
	}
	n.logger.Debug("call served", "station", n.station.ID(), "method", method, "elapsed", elapsed)
}
