package register

import (
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultPerReplicaTimeout bounds every call made to a single replica.
	DefaultPerReplicaTimeout = 2 * time.Second
)

type options struct {
	replicaTimeout time.Duration
	readRepair     bool
	globalLock     bool
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		replicaTimeout: DefaultPerReplicaTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option configures a Register.
type Option func(*options)

// WithReplicaTimeout sets the deadline of each replica call. Calls still
// running when an operation returns keep this deadline.
func WithReplicaTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.replicaTimeout = timeout
		}
	}
}

// WithReadRepair makes reads push the winning view to replicas that answered
// with an older tag.
func WithReadRepair() Option {
	return func(o *options) {
		o.readRepair = true
	}
}

// WithGlobalLock serializes every register operation in the process instead
// of serializing per user. Throughput drops to one operation at a time.
func WithGlobalLock() Option {
	return func(o *options) {
		o.globalLock = true
	}
}

// WithLogger sets the logger. A nil logger discards output.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}
		o.logger = logger
	}
}
