package binas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"binas/internal/rpc"
	"binas/internal/station"
)

// Client calls a binas server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection to a binas server.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateUser(ctx context.Context, email string) (Account, error) {
	out, err := invoke[Account](ctx, c.cc, "CreateUser", &UserRequest{Email: email})
	if err != nil {
		return Account{}, err
	}
	return *out, nil
}

func (c *Client) GetUser(ctx context.Context, email string) (Account, error) {
	out, err := invoke[Account](ctx, c.cc, "GetUser", &UserRequest{Email: email})
	if err != nil {
		return Account{}, err
	}
	return *out, nil
}

func (c *Client) RentBina(ctx context.Context, stationID, email string) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "RentBina", &RentalRequest{StationID: stationID, Email: email})
	return err
}

func (c *Client) ReturnBina(ctx context.Context, stationID, email string) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "ReturnBina", &RentalRequest{StationID: stationID, Email: email})
	return err
}

func (c *Client) GetStation(ctx context.Context, stationID string) (station.Info, error) {
	out, err := invoke[station.Info](ctx, c.cc, "GetStation", &StationRequest{StationID: stationID})
	if err != nil {
		return station.Info{}, err
	}
	return *out, nil
}

func (c *Client) Init(ctx context.Context, initialCredits int) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "Init", wrapperspb.Int32(int32(initialCredits)))
	return err
}

func (c *Client) Reset(ctx context.Context) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "Reset", &emptypb.Empty{})
	return err
}

func (c *Client) TestInitStation(ctx context.Context, stationID string, req station.InitRequest) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "TestInitStation", &TestInitStationRequest{
		StationID:   stationID,
		X:           req.X,
		Y:           req.Y,
		Capacity:    req.Capacity,
		ReturnPrize: req.ReturnPrize,
	})
	return err
}

func (c *Client) Configure(ctx context.Context, req ConfigureRequest) error {
	_, err := invoke[emptypb.Empty](ctx, c.cc, "Configure", &req)
	return err
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) (*Resp, error) {
	out, err := rpc.Invoke[Resp](ctx, cc, ServiceName, method, req)
	if err != nil {
		return nil, errorTable.FromStatus(err)
	}
	return out, nil
}
