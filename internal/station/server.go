package station

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"binas/internal/register"
	"binas/internal/rpc"
)

const (
	// ServiceName is the gRPC service a station registers.
	ServiceName = "binas.Station"
	// RequestIDHeader carries the register's request id to the station.
	RequestIDHeader = "x-request-id"
)

// errorTable carries station sentinels across the wire.
var errorTable = rpc.NewErrorTable().
	Add(ErrNoBinaAvailable, codes.ResourceExhausted).
	Add(ErrNoSlotAvailable, codes.ResourceExhausted).
	Add(ErrBadInit, codes.InvalidArgument)

// BalanceRequest asks for one user's balance.
type BalanceRequest struct {
	User string `json:"user"`
}

// SetBalanceRequest stores a tagged balance for one user.
type SetBalanceRequest struct {
	User  string `json:"user"`
	Tag   int64  `json:"tag"`
	Value int    `json:"value"`
}

// StationServer is the server side of the station service.
type StationServer interface {
	GetInfo(context.Context, *emptypb.Empty) (*Info, error)
	GetBalance(context.Context, *BalanceRequest) (*register.BalanceView, error)
	SetBalance(context.Context, *SetBalanceRequest) (*emptypb.Empty, error)
	GetBina(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ReturnBina(context.Context, *emptypb.Empty) (*wrapperspb.Int32Value, error)
	TestInit(context.Context, *InitRequest) (*emptypb.Empty, error)
	TestClear(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StationServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetInfo", StationServer.GetInfo),
		rpc.Unary(ServiceName, "GetBalance", StationServer.GetBalance),
		rpc.Unary(ServiceName, "SetBalance", StationServer.SetBalance),
		rpc.Unary(ServiceName, "GetBina", StationServer.GetBina),
		rpc.Unary(ServiceName, "ReturnBina", StationServer.ReturnBina),
		rpc.Unary(ServiceName, "TestInit", StationServer.TestInit),
		rpc.Unary(ServiceName, "TestClear", StationServer.TestClear),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterStationServer registers srv on s.
func RegisterStationServer(s grpc.ServiceRegistrar, srv StationServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Server implements StationServer on top of a Station.
type Server struct {
	station *Station
	logger  *slog.Logger
}

// NewServer creates a new station server.
func NewServer(st *Station, logger *slog.Logger) *Server {
	return &Server{
		station: st,
		logger:  logger,
	}
}

// GetInfo reports the station's id and inventory.
func (s *Server) GetInfo(ctx context.Context, _ *emptypb.Empty) (*Info, error) {
	info := s.station.Info()
	return &info, nil
}

// GetBalance handles balance reads from the register.
func (s *Server) GetBalance(ctx context.Context, req *BalanceRequest) (*register.BalanceView, error) {
	if req.User == "" {
		return nil, status.Error(codes.InvalidArgument, "user cannot be empty")
	}

	view := s.station.Balance(req.User)
	s.logger.Debug("get balance",
		"station", s.station.ID(),
		"user", req.User,
		"view", view.String(),
		"request_id", incomingRequestID(ctx))
	return &view, nil
}

// SetBalance handles balance writes from the register. Stale tags are
// acknowledged but not applied.
func (s *Server) SetBalance(ctx context.Context, req *SetBalanceRequest) (*emptypb.Empty, error) {
	if req.User == "" {
		return nil, status.Error(codes.InvalidArgument, "user cannot be empty")
	}

	var (
		view    = register.BalanceView{Tag: req.Tag, Value: req.Value}
		applied = s.station.SetBalance(req.User, view)
	)
	s.logger.Debug("set balance",
		"station", s.station.ID(),
		"user", req.User,
		"view", view.String(),
		"applied", applied,
		"request_id", incomingRequestID(ctx))
	return &emptypb.Empty{}, nil
}

// GetBina hands out one bina.
func (s *Server) GetBina(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.station.TakeBina(); err != nil {
		return nil, errorTable.ToStatus(err)
	}
	s.logger.Info("bina rented", "station", s.station.ID())
	return &emptypb.Empty{}, nil
}

// ReturnBina docks one bina and answers with the prize.
func (s *Server) ReturnBina(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int32Value, error) {
	prize, err := s.station.ReturnBina()
	if err != nil {
		return nil, errorTable.ToStatus(err)
	}
	s.logger.Info("bina returned", "station", s.station.ID(), "prize", prize)
	return wrapperspb.Int32(int32(prize)), nil
}

// TestInit reconfigures the station.
func (s *Server) TestInit(ctx context.Context, req *InitRequest) (*emptypb.Empty, error) {
	if err := s.station.Init(*req); err != nil {
		return nil, errorTable.ToStatus(err)
	}
	s.logger.Info("station initialized",
		"station", s.station.ID(),
		"x", req.X,
		"y", req.Y,
		"capacity", req.Capacity,
		"prize", req.ReturnPrize)
	return &emptypb.Empty{}, nil
}

// TestClear resets the station and drops its balances.
func (s *Server) TestClear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.station.Clear()
	s.logger.Info("station cleared", "station", s.station.ID())
	return &emptypb.Empty{}, nil
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if ids := md.Get(RequestIDHeader); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
