// Package resolver finds the live endpoint of a station by listing the
// directory records of a deployment and asking each station for its id.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"binas/internal/directory"
	"binas/internal/register"
	"binas/internal/station"
)

// ErrStationNotFound is returned when no listed station reports the
// requested id.
var ErrStationNotFound = errors.New("station not found")

// DefaultProbeTimeout bounds each Info probe.
const DefaultProbeTimeout = 2 * time.Second

// DialFunc turns a directory address into a callable endpoint.
type DialFunc func(addr string) (station.Endpoint, error)

// Resolver maps station ids to endpoints.
type Resolver struct {
	dir  directory.Directory
	dial DialFunc

	mu       sync.RWMutex
	template string

	probeTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProbeTimeout sets the timeout of each Info probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.probeTimeout = d
	}
}

// WithLogger sets the resolver's logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		r.logger = logger
	}
}

// New creates a resolver listing names that start with template.
func New(dir directory.Directory, dial DialFunc, template string, opts ...Option) *Resolver {
	r := &Resolver{
		dir:          dir,
		dial:         dial,
		template:     template,
		probeTimeout: DefaultProbeTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Template returns the station name template.
func (r *Resolver) Template() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.template
}

// SetTemplate changes the station name template.
func (r *Resolver) SetTemplate(template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.template = template
}

// Resolve returns the endpoint of the first listed station whose reported id
// equals stationID. Stations that cannot be dialed or probed are skipped.
func (r *Resolver) Resolve(ctx context.Context, stationID string) (station.Endpoint, error) {
	var pattern = r.Template() + "%"

	records, err := r.dir.List(ctx, pattern)
	if err != nil {
		r.logger.Warn("directory lookup failed", "pattern", pattern, "error", err)
		records = nil
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", stationID, err)
		}

		ep, err := r.dial(rec.Addr)
		if err != nil {
			r.logger.Debug("skipping station", "station", rec.Name, "addr", rec.Addr, "error", err)
			continue
		}

		info, err := r.probe(ctx, ep)
		if err != nil {
			r.logger.Debug("skipping station", "station", rec.Name, "addr", rec.Addr, "error", err)
			continue
		}
		if info.ID == stationID {
			return ep, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
}

// Locator adapts the resolver to locate register replicas by station id.
func (r *Resolver) Locator() register.Locator {
	return register.LocatorFunc(func(ctx context.Context, replicaID string) (register.Replica, error) {
		ep, err := r.Resolve(ctx, replicaID)
		if err != nil {
			return nil, err
		}
		return ep, nil
	})
}

func (r *Resolver) probe(ctx context.Context, ep station.Endpoint) (station.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	return ep.Info(ctx)
}
