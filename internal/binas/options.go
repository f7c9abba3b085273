package binas

import (
	"io"
	"log/slog"
)

const (
	// RentCost is debited from the balance on every rent.
	RentCost = 1
	// DefaultInitialCredits is the balance a new user starts with.
	DefaultInitialCredits = 10
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	initialCredits int
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		initialCredits: DefaultInitialCredits,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithInitialCredits sets the balance new users start with.
func WithInitialCredits(credits int) Option {
	return func(o *options) {
		o.initialCredits = credits
	}
}

// WithLogger sets the manager's logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		o.logger = logger
	}
}
