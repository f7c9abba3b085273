package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorEntry struct {
	err  error
	code codes.Code
}

// ErrorTable maps sentinel errors to status codes and back. A sentinel is
// recognized on the client by code and message, so errors.Is keeps working
// after the hop.
type ErrorTable struct {
	entries []errorEntry
}

// NewErrorTable creates an empty table.
func NewErrorTable() *ErrorTable {
	return &ErrorTable{}
}

// Add registers err under code and returns the table.
func (t *ErrorTable) Add(err error, code codes.Code) *ErrorTable {
	t.entries = append(t.entries, errorEntry{err: err, code: code})
	return t
}

// ToStatus converts err into a status error. Registered sentinels keep their
// message; context errors become Canceled or DeadlineExceeded; anything else
// is Internal.
func (t *ErrorTable) ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, e := range t.entries {
		if errors.Is(err, e.err) {
			return status.Error(e.code, e.err.Error())
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus converts a status error back into the registered sentinel, or
// returns err unchanged.
func (t *ErrorTable) FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, e := range t.entries {
		if st.Code() == e.code && st.Message() == e.err.Error() {
			return e.err
		}
	}
	return err
}
