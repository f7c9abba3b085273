package station

import (
	"errors"
	"fmt"
	"sync"

	"binas/internal/register"
)

var (
	// ErrNoBinaAvailable is returned when every dock is empty.
	ErrNoBinaAvailable = errors.New("no bina available")
	// ErrNoSlotAvailable is returned when every dock is occupied.
	ErrNoSlotAvailable = errors.New("no slot available")
	// ErrBadInit is returned for negative coordinates, capacity or prize.
	ErrBadInit = errors.New("bad station init")
)

const (
	DefaultCapacity    = 20
	DefaultReturnPrize = 0
)

// Info is the self-reported state of a station.
type Info struct {
	ID             string `json:"id"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	Capacity       int    `json:"capacity"`
	FreeDocks      int    `json:"free_docks"`
	AvailableBinas int    `json:"available_binas"`
	ReturnPrize    int    `json:"return_prize"`
	TotalGets      int    `json:"total_gets"`
	TotalReturns   int    `json:"total_returns"`
}

// InitRequest sets a station's location, capacity and return prize.
type InitRequest struct {
	X           int `json:"x"`
	Y           int `json:"y"`
	Capacity    int `json:"capacity"`
	ReturnPrize int `json:"return_prize"`
}

// Validate reports ErrBadInit for negative fields.
func (r InitRequest) Validate() error {
	if r.X < 0 || r.Y < 0 || r.Capacity < 0 || r.ReturnPrize < 0 {
		return fmt.Errorf("%w: x=%d y=%d capacity=%d prize=%d", ErrBadInit, r.X, r.Y, r.Capacity, r.ReturnPrize)
	}
	return nil
}

// Station is a bina dock plus a balance replica. It starts with every dock
// holding a bina.
type Station struct {
	id       string
	balances *BalanceStore

	mu           sync.Mutex
	x, y         int
	capacity     int
	freeDocks    int
	returnPrize  int
	totalGets    int
	totalReturns int
}

// New creates a station.
func New(id string, req InitRequest) (*Station, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s := &Station{
		id:       id,
		balances: NewBalanceStore(),
	}
	s.reset(req)
	return s, nil
}

// ID returns the station id.
func (s *Station) ID() string {
	return s.id
}

// Info returns a snapshot of the station.
func (s *Station) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:             s.id,
		X:              s.x,
		Y:              s.y,
		Capacity:       s.capacity,
		FreeDocks:      s.freeDocks,
		AvailableBinas: s.capacity - s.freeDocks,
		ReturnPrize:    s.returnPrize,
		TotalGets:      s.totalGets,
		TotalReturns:   s.totalReturns,
	}
}

// TakeBina removes one bina from the docks.
func (s *Station) TakeBina() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freeDocks == s.capacity {
		return ErrNoBinaAvailable
	}
	s.freeDocks++
	s.totalGets++
	return nil
}

// ReturnBina docks one bina and returns the station's prize.
func (s *Station) ReturnBina() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freeDocks == 0 {
		return 0, ErrNoSlotAvailable
	}
	s.freeDocks--
	s.totalReturns++
	return s.returnPrize, nil
}

// Init reconfigures the station and refills every dock. Balances are kept.
func (s *Station) Init(req InitRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(req)
	return nil
}

// Clear refills the docks with the default configuration and drops every
// balance.
func (s *Station) Clear() {
	s.mu.Lock()
	s.reset(InitRequest{Capacity: DefaultCapacity, ReturnPrize: DefaultReturnPrize})
	s.mu.Unlock()

	s.balances.Clear()
}

// Balance returns the replica's view of user's balance.
func (s *Station) Balance(user string) register.BalanceView {
	view, _ := s.balances.Get(user)
	return view
}

// SetBalance stores view if it carries a newer tag and reports whether it did.
func (s *Station) SetBalance(user string, view register.BalanceView) bool {
	return s.balances.Apply(user, view)
}

// reset must be called with s.mu held.
func (s *Station) reset(req InitRequest) {
	s.x = req.X
	s.y = req.Y
	s.capacity = req.Capacity
	s.returnPrize = req.ReturnPrize
	s.freeDocks = 0
	s.totalGets = 0
	s.totalReturns = 0
}
