package station

import (
	"context"

	"binas/internal/register"
)

// Endpoint is a callable handle on one station. GetBalance and SetBalance
// make every Endpoint a register.Replica.
type Endpoint interface {
	register.Replica

	Info(ctx context.Context) (Info, error)
	TakeBina(ctx context.Context) error
	ReturnBina(ctx context.Context) (int, error)
	TestInit(ctx context.Context, req InitRequest) error
	TestClear(ctx context.Context) error
}
