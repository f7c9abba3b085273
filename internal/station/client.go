package station

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"binas/internal/register"
	"binas/internal/rpc"
)

// Client is an Endpoint backed by a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection to a station.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

var _ Endpoint = (*Client)(nil)

// Info calls GetInfo.
func (c *Client) Info(ctx context.Context) (Info, error) {
	out, err := invoke[Info](ctx, c.cc, "GetInfo", &emptypb.Empty{})
	if err != nil {
		return Info{}, err
	}
	return *out, nil
}

// GetBalance calls GetBalance.
func (c *Client) GetBalance(ctx context.Context, user string) (register.BalanceView, error) {
	out, err := invoke[register.BalanceView](ctx, c.cc, "GetBalance", &BalanceRequest{User: user})
	if err != nil {
		return register.BalanceView{}, err
	}
	return *out, nil
}

// SetBalance calls SetBalance.
func (c *Client) SetBalance(ctx context.Context, user string, view register.BalanceView) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "SetBalance", &SetBalanceRequest{
		User:  user,
		Tag:   view.Tag,
		Value: view.Value,
	})
	return err
}

// TakeBina calls GetBina.
func (c *Client) TakeBina(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "GetBina", &emptypb.Empty{})
	return err
}

// ReturnBina calls ReturnBina and returns the prize.
func (c *Client) ReturnBina(ctx context.Context) (int, error) {
	out, err := invoke[wrapperspb.Int32Value](ctx, c.cc, "ReturnBina", &emptypb.Empty{})
	if err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// TestInit calls TestInit.
func (c *Client) TestInit(ctx context.Context, req InitRequest) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "TestInit", &req)
	return err
}

// TestClear calls TestClear.
func (c *Client) TestClear(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "TestClear", &emptypb.Empty{})
	return err
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) (*Resp, error) {
	if id := register.RequestID(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
	}
	out, err := rpc.Invoke[Resp](ctx, cc, ServiceName, method, req)
	if err != nil {
		return nil, errorTable.FromStatus(err)
	}
	return out, nil
}

// ClientManager caches one connection per station address.
type ClientManager struct {
	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	clients  map[string]*Client
	dialOpts []grpc.DialOption
}

// NewClientManager creates a client manager. opts are appended to the
// module's default dial options.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		conns:    make(map[string]*grpc.ClientConn),
		clients:  make(map[string]*Client),
		dialOpts: opts,
	}
}

// Get returns a client for addr, creating the connection if needed.
func (cm *ClientManager) Get(addr string) (*Client, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := rpc.Dial(addr, cm.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client = NewClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Endpoint is Get typed as an Endpoint, for use as a dial function.
func (cm *ClientManager) Endpoint(addr string) (Endpoint, error) {
	client, err := cm.Get(addr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Close closes every connection.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	for addr, conn := range cm.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", addr, err)
		}
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]*Client)
	return firstErr
}
