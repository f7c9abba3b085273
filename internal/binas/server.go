package binas

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"binas/internal/register"
	"binas/internal/resolver"
	"binas/internal/rpc"
	"binas/internal/station"
	"binas/internal/users"
)

// ServiceName is the gRPC service the binas server registers.
const ServiceName = "binas.Binas"

var errorTable = rpc.NewErrorTable().
	Add(users.ErrUserNotFound, codes.NotFound).
	Add(resolver.ErrStationNotFound, codes.NotFound).
	Add(users.ErrUserAlreadyExists, codes.AlreadyExists).
	Add(users.ErrInvalidEmail, codes.InvalidArgument).
	Add(ErrUserAlreadyHasBina, codes.FailedPrecondition).
	Add(ErrUserHasNoBina, codes.FailedPrecondition).
	Add(ErrInsufficientCredits, codes.FailedPrecondition).
	Add(station.ErrNoBinaAvailable, codes.ResourceExhausted).
	Add(station.ErrNoSlotAvailable, codes.ResourceExhausted).
	Add(register.ErrQuorumUnreachable, codes.Unavailable).
	Add(ErrBadInit, codes.InvalidArgument).
	Add(station.ErrBadInit, codes.InvalidArgument).
	Add(register.ErrInvalidReplicaCount, codes.InvalidArgument)

// UserRequest names a user.
type UserRequest struct {
	Email string `json:"email"`
}

// RentalRequest names a user and a station.
type RentalRequest struct {
	StationID string `json:"station_id"`
	Email     string `json:"email"`
}

// StationRequest names a station.
type StationRequest struct {
	StationID string `json:"station_id"`
}

// TestInitStationRequest reconfigures a station.
type TestInitStationRequest struct {
	StationID   string `json:"station_id"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Capacity    int    `json:"capacity"`
	ReturnPrize int    `json:"return_prize"`
}

// ConfigureRequest changes the station fleet. Zero fields are left as is.
type ConfigureRequest struct {
	Stations int    `json:"stations,omitempty"`
	Template string `json:"template,omitempty"`
}

// BinasServer is the server side of the binas service.
type BinasServer interface {
	CreateUser(context.Context, *UserRequest) (*Account, error)
	GetUser(context.Context, *UserRequest) (*Account, error)
	RentBina(context.Context, *RentalRequest) (*emptypb.Empty, error)
	ReturnBina(context.Context, *RentalRequest) (*emptypb.Empty, error)
	GetStation(context.Context, *StationRequest) (*station.Info, error)
	Init(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error)
	Reset(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	TestInitStation(context.Context, *TestInitStationRequest) (*emptypb.Empty, error)
	Configure(context.Context, *ConfigureRequest) (*emptypb.Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BinasServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "CreateUser", BinasServer.CreateUser),
		rpc.Unary(ServiceName, "GetUser", BinasServer.GetUser),
		rpc.Unary(ServiceName, "RentBina", BinasServer.RentBina),
		rpc.Unary(ServiceName, "ReturnBina", BinasServer.ReturnBina),
		rpc.Unary(ServiceName, "GetStation", BinasServer.GetStation),
		rpc.Unary(ServiceName, "Init", BinasServer.Init),
		rpc.Unary(ServiceName, "Reset", BinasServer.Reset),
		rpc.Unary(ServiceName, "TestInitStation", BinasServer.TestInitStation),
		rpc.Unary(ServiceName, "Configure", BinasServer.Configure),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterBinasServer registers srv on s.
func RegisterBinasServer(s grpc.ServiceRegistrar, srv BinasServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Server exposes a Manager over gRPC.
type Server struct {
	manager *Manager
	logger  *slog.Logger
}

// NewServer creates a new binas server.
func NewServer(m *Manager, logger *slog.Logger) *Server {
	return &Server{
		manager: m,
		logger:  logger,
	}
}

// NewGRPCServer creates a gRPC server with the binas service registered and
// every call logged.
func NewGRPCServer(m *Manager, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(rpc.LoggingInterceptor(func(method string, elapsed time.Duration, err error) {
		if err != nil {
			logger.Info("call failed", "method", method, "elapsed", elapsed, "error", err)
			return
		}
		logger.Debug("call served", "method", method, "elapsed", elapsed)
	})))

	server := grpc.NewServer(opts...)
	RegisterBinasServer(server, NewServer(m, logger))
	return server
}

func (s *Server) CreateUser(ctx context.Context, req *UserRequest) (*Account, error) {
	account, err := s.manager.CreateUser(ctx, req.Email)
	if err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &account, nil
}

func (s *Server) GetUser(ctx context.Context, req *UserRequest) (*Account, error) {
	account, err := s.manager.Account(ctx, req.Email)
	if err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &account, nil
}

func (s *Server) RentBina(ctx context.Context, req *RentalRequest) (*emptypb.Empty, error) {
	if err := s.manager.RentBina(ctx, req.StationID, req.Email); err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) ReturnBina(ctx context.Context, req *RentalRequest) (*emptypb.Empty, error) {
	if err := s.manager.ReturnBina(ctx, req.StationID, req.Email); err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) GetStation(ctx context.Context, req *StationRequest) (*station.Info, error) {
	info, err := s.manager.ResolveStation(ctx, req.StationID)
	if err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &info, nil
}

func (s *Server) Init(ctx context.Context, req *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	if err := s.manager.Init(int(req.GetValue())); err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.manager.Reset(ctx); err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) TestInitStation(ctx context.Context, req *TestInitStationRequest) (*emptypb.Empty, error) {
	err := s.manager.TestInitStation(ctx, req.StationID, station.InitRequest{
		X:           req.X,
		Y:           req.Y,
		Capacity:    req.Capacity,
		ReturnPrize: req.ReturnPrize,
	})
	if err != nil {
		return nil, errorTable.ToStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Configure(ctx context.Context, req *ConfigureRequest) (*emptypb.Empty, error) {
	if req.Template != "" {
		if err := s.manager.SetStationTemplate(req.Template); err != nil {
			return nil, errorTable.ToStatus(err)
		}
	}
	if req.Stations != 0 {
		if err := s.manager.SetStationCount(req.Stations); err != nil {
			return nil, errorTable.ToStatus(err)
		}
	}
	return &emptypb.Empty{}, nil
}
