package binas

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"binas/internal/keymutex"
	"binas/internal/register"
	"binas/internal/resolver"
	"binas/internal/station"
	"binas/internal/users"
)

// Account is a user together with their current credit.
type Account struct {
	Email   string `json:"email"`
	HasBina bool   `json:"has_bina"`
	Credit  int    `json:"credit"`
}

// Manager runs binas operations against a user store, the balance register
// and the station fleet.
type Manager struct {
	users    users.Store
	register *register.Register
	resolver *resolver.Resolver
	locks    *keymutex.KeyedMutex

	initialCredits atomic.Int64
	options        options
}

// NewManager creates a manager.
func NewManager(store users.Store, reg *register.Register, res *resolver.Resolver, opts ...Option) *Manager {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	m := &Manager{
		users:    store,
		register: reg,
		resolver: res,
		locks:    keymutex.New(),
		options:  options,
	}
	m.initialCredits.Store(int64(options.initialCredits))
	return m
}

// CreateUser registers email and seeds its balance with the initial credit.
// The record is removed again if the balance cannot be seeded.
func (m *Manager) CreateUser(ctx context.Context, email string) (Account, error) {
	if err := users.ValidateEmail(email); err != nil {
		return Account{}, err
	}
	defer m.locks.Lock(email)()

	user, err := m.users.Create(ctx, email)
	if err != nil {
		return Account{}, err
	}

	credits := int(m.initialCredits.Load())
	view, err := m.register.Store(ctx, email, credits)
	if err != nil {
		if delErr := m.users.Delete(context.WithoutCancel(ctx), email); delErr != nil {
			m.options.logger.Error("failed to roll back user", "user", email, "error", delErr)
		}
		return Account{}, fmt.Errorf("create user %s: seed balance: %w", email, err)
	}

	m.options.logger.Info("user created", "user", email, "credit", view.Value)
	return Account{Email: user.Email, HasBina: user.HasBina, Credit: view.Value}, nil
}

// GetUser returns the local user record.
func (m *Manager) GetUser(ctx context.Context, email string) (users.User, error) {
	return m.users.Get(ctx, email)
}

// Balance reads the user's credit from a quorum of stations.
func (m *Manager) Balance(ctx context.Context, email string) (int, error) {
	if _, err := m.users.Get(ctx, email); err != nil {
		return 0, err
	}
	view, err := m.register.Read(ctx, email)
	if err != nil {
		return 0, err
	}
	return view.Value, nil
}

// Account returns the user record and its credit.
func (m *Manager) Account(ctx context.Context, email string) (Account, error) {
	user, err := m.users.Get(ctx, email)
	if err != nil {
		return Account{}, err
	}
	view, err := m.register.Read(ctx, email)
	if err != nil {
		return Account{}, err
	}
	return Account{Email: user.Email, HasBina: user.HasBina, Credit: view.Value}, nil
}

// RentBina takes a bina from stationID for email and debits RentCost.
//
// Nothing changes if any step before the debit fails. If the debit itself
// fails the bina has already left the station; that is logged and returned,
// and the user is not marked as holding it.
func (m *Manager) RentBina(ctx context.Context, stationID, email string) error {
	defer m.locks.Lock(email)()

	user, err := m.users.Get(ctx, email)
	if err != nil {
		return err
	}
	if user.HasBina {
		return fmt.Errorf("%w: %s", ErrUserAlreadyHasBina, email)
	}

	view, err := m.register.Read(ctx, email)
	if err != nil {
		return fmt.Errorf("rent %s: read balance: %w", email, err)
	}
	if view.Value < RentCost {
		return fmt.Errorf("%w: %s has %d", ErrInsufficientCredits, email, view.Value)
	}

	ep, err := m.resolver.Resolve(ctx, stationID)
	if err != nil {
		return err
	}
	if err := ep.TakeBina(ctx); err != nil {
		return fmt.Errorf("rent %s at %s: %w", email, stationID, err)
	}

	if _, err := m.register.Write(ctx, email, -RentCost); err != nil {
		m.options.logger.Error("bina taken but balance not debited",
			"user", email,
			"station", stationID,
			"error", err)
		return fmt.Errorf("rent %s at %s: debit: %w", email, stationID, err)
	}

	if err := m.users.SetHasBina(ctx, email, true); err != nil {
		return fmt.Errorf("rent %s at %s: commit: %w", email, stationID, err)
	}

	m.options.logger.Info("bina rented", "user", email, "station", stationID)
	return nil
}

// ReturnBina docks the user's bina at stationID and credits the station's
// prize. Failure semantics mirror RentBina.
func (m *Manager) ReturnBina(ctx context.Context, stationID, email string) error {
	defer m.locks.Lock(email)()

	user, err := m.users.Get(ctx, email)
	if err != nil {
		return err
	}
	if !user.HasBina {
		return fmt.Errorf("%w: %s", ErrUserHasNoBina, email)
	}

	ep, err := m.resolver.Resolve(ctx, stationID)
	if err != nil {
		return err
	}
	prize, err := ep.ReturnBina(ctx)
	if err != nil {
		return fmt.Errorf("return %s at %s: %w", email, stationID, err)
	}

	if _, err := m.register.Write(ctx, email, prize); err != nil {
		m.options.logger.Error("bina returned but balance not credited",
			"user", email,
			"station", stationID,
			"prize", prize,
			"error", err)
		return fmt.Errorf("return %s at %s: credit: %w", email, stationID, err)
	}

	if err := m.users.SetHasBina(ctx, email, false); err != nil {
		return fmt.Errorf("return %s at %s: commit: %w", email, stationID, err)
	}

	m.options.logger.Info("bina returned", "user", email, "station", stationID, "prize", prize)
	return nil
}

// ResolveStation returns the info of a live station.
func (m *Manager) ResolveStation(ctx context.Context, stationID string) (station.Info, error) {
	ep, err := m.resolver.Resolve(ctx, stationID)
	if err != nil {
		return station.Info{}, err
	}
	return ep.Info(ctx)
}

// Reset drops every user. Station balances are left for TestClear.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.users.Reset(ctx); err != nil {
		return err
	}
	m.options.logger.Info("users reset")
	return nil
}

// Init sets the credit future users start with.
func (m *Manager) Init(initialCredits int) error {
	if initialCredits < 0 {
		return fmt.Errorf("%w: initial credits %d", ErrBadInit, initialCredits)
	}
	m.initialCredits.Store(int64(initialCredits))
	m.options.logger.Info("initial credits set", "credits", initialCredits)
	return nil
}

// InitialCredits returns the credit new users start with.
func (m *Manager) InitialCredits() int {
	return int(m.initialCredits.Load())
}

// TestInitStation reconfigures a live station.
func (m *Manager) TestInitStation(ctx context.Context, stationID string, req station.InitRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	ep, err := m.resolver.Resolve(ctx, stationID)
	if err != nil {
		return err
	}
	return ep.TestInit(ctx, req)
}

// SetStationCount changes how many stations replicate balances.
func (m *Manager) SetStationCount(n int) error {
	if err := m.register.Replicas().SetSize(n); err != nil {
		return err
	}
	m.options.logger.Info("station count set", "stations", n, "quorum", register.QuorumSize(n))
	return nil
}

// SetStationTemplate changes the naming template of stations and replicas.
func (m *Manager) SetStationTemplate(template string) error {
	if template == "" {
		return errors.New("station template cannot be empty")
	}
	m.register.Replicas().SetTemplate(template)
	m.resolver.SetTemplate(template)
	m.options.logger.Info("station template set", "template", template)
	return nil
}
