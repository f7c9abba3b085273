// Package stationtest provides in-memory station endpoints whose failures
// can be scripted, for tests of code that talks to stations.
package stationtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"binas/internal/directory"
	"binas/internal/register"
	"binas/internal/station"
)

// ErrUnreachable is returned by a downed endpoint and by Fleet.Dial for
// unknown addresses.
var ErrUnreachable = errors.New("station unreachable")

// Endpoint is a station.Endpoint served directly by a *station.Station.
type Endpoint struct {
	st *station.Station

	down   atomic.Bool
	silent atomic.Bool
	delay  atomic.Int64

	balanceCalls atomic.Int64

	hookMu sync.Mutex
	onTake func()
}

var _ station.Endpoint = (*Endpoint)(nil)

// NewEndpoint wraps st.
func NewEndpoint(st *station.Station) *Endpoint {
	return &Endpoint{st: st}
}

// Station returns the wrapped station.
func (e *Endpoint) Station() *station.Station {
	return e.st
}

// SetDown makes every call fail immediately with ErrUnreachable.
func (e *Endpoint) SetDown(down bool) {
	e.down.Store(down)
}

// SetSilent makes every call block until its context is done.
func (e *Endpoint) SetSilent(silent bool) {
	e.silent.Store(silent)
}

// SetDelay makes every call wait d before it is served.
func (e *Endpoint) SetDelay(d time.Duration) {
	e.delay.Store(int64(d))
}

// OnTakeBina registers fn to run after every successful TakeBina.
func (e *Endpoint) OnTakeBina(fn func()) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onTake = fn
}

// BalanceCalls returns how many GetBalance and SetBalance calls reached the
// endpoint.
func (e *Endpoint) BalanceCalls() int64 {
	return e.balanceCalls.Load()
}

func (e *Endpoint) Info(ctx context.Context) (station.Info, error) {
	if err := e.gate(ctx); err != nil {
		return station.Info{}, err
	}
	return e.st.Info(), nil
}

func (e *Endpoint) GetBalance(ctx context.Context, user string) (register.BalanceView, error) {
	e.balanceCalls.Add(1)
	if err := e.gate(ctx); err != nil {
		return register.BalanceView{}, err
	}
	return e.st.Balance(user), nil
}

func (e *Endpoint) SetBalance(ctx context.Context, user string, view register.BalanceView) error {
	e.balanceCalls.Add(1)
	if err := e.gate(ctx); err != nil {
		return err
	}
	e.st.SetBalance(user, view)
	return nil
}

func (e *Endpoint) TakeBina(ctx context.Context) error {
	if err := e.gate(ctx); err != nil {
		return err
	}
	if err := e.st.TakeBina(); err != nil {
		return err
	}

	e.hookMu.Lock()
	fn := e.onTake
	e.hookMu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (e *Endpoint) ReturnBina(ctx context.Context) (int, error) {
	if err := e.gate(ctx); err != nil {
		return 0, err
	}
	return e.st.ReturnBina()
}

func (e *Endpoint) TestInit(ctx context.Context, req station.InitRequest) error {
	if err := e.gate(ctx); err != nil {
		return err
	}
	return e.st.Init(req)
}

func (e *Endpoint) TestClear(ctx context.Context) error {
	if err := e.gate(ctx); err != nil {
		return err
	}
	e.st.Clear()
	return nil
}

func (e *Endpoint) gate(ctx context.Context) error {
	if e.down.Load() {
		return fmt.Errorf("%s: %w", e.st.ID(), ErrUnreachable)
	}
	if e.silent.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	if d := time.Duration(e.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Fleet is a set of in-memory stations named template1..templateN, each
// published in a static directory under the address "mem://<name>".
type Fleet struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	order     []string
	dir       *directory.Static
}

// NewFleet creates n stations. Every station starts with capacity docks full
// and the given return prize.
func NewFleet(template string, n, capacity, prize int) (*Fleet, error) {
	f := &Fleet{
		endpoints: make(map[string]*Endpoint, n),
		dir:       directory.NewStatic(),
	}
	for i := 1; i <= n; i++ {
		if _, err := f.Add(fmt.Sprintf("%s%d", template, i), capacity, prize); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add creates and publishes one more station.
func (f *Fleet) Add(name string, capacity, prize int) (*Endpoint, error) {
	st, err := station.New(name, station.InitRequest{Capacity: capacity, ReturnPrize: prize})
	if err != nil {
		return nil, err
	}

	var (
		ep   = NewEndpoint(st)
		addr = Addr(name)
	)

	f.mu.Lock()
	f.endpoints[addr] = ep
	f.order = append(f.order, name)
	f.mu.Unlock()

	if err := f.dir.Publish(context.Background(), directory.Record{Name: name, Addr: addr}); err != nil {
		return nil, err
	}
	return ep, nil
}

// Addr returns the address a fleet station is published under.
func Addr(name string) string {
	return "mem://" + name
}

// Directory returns the directory the fleet is published in.
func (f *Fleet) Directory() *directory.Static {
	return f.dir
}

// Endpoint returns the named station's endpoint, or nil.
func (f *Fleet) Endpoint(name string) *Endpoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.endpoints[Addr(name)]
}

// Names returns station names in creation order.
func (f *Fleet) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.order...)
}

// Dial resolves an address published by the fleet.
func (f *Fleet) Dial(addr string) (station.Endpoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ep, ok := f.endpoints[addr]
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, ErrUnreachable)
	}
	return ep, nil
}

// Balance returns the named station's stored view of user's balance.
func (f *Fleet) Balance(name, user string) register.BalanceView {
	return f.Endpoint(name).Station().Balance(user)
}
