package binas

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binas/internal/register"
	"binas/internal/resolver"
	"binas/internal/station"
	"binas/internal/station/stationtest"
	"binas/internal/users"
)

const (
	testTemplate = "A46_Station"
	testUser     = "alice@example.com"
)

type fixture struct {
	fleet   *stationtest.Fleet
	users   *users.MemoryStore
	manager *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	fleet, err := stationtest.NewFleet(testTemplate, 3, 10, 1)
	require.NoError(t, err)

	replicas, err := register.NewReplicaSet(testTemplate, 3)
	require.NoError(t, err)

	var (
		res   = resolver.New(fleet.Directory(), fleet.Dial, testTemplate, resolver.WithProbeTimeout(100*time.Millisecond))
		reg   = register.New(replicas, res.Locator(), register.WithReplicaTimeout(200*time.Millisecond))
		store = users.NewMemoryStore()
	)

	return &fixture{
		fleet:   fleet,
		users:   store,
		manager: NewManager(store, reg, res, opts...),
	}
}

func newCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManager_CreateUser(t *testing.T) {
	t.Run("should seed the initial credit on every station", func(t *testing.T) {
		// Arrange
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)

		// Act
		account, err := f.manager.CreateUser(ctx, testUser)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, Account{Email: testUser, Credit: DefaultInitialCredits}, account)
		assert.Eventually(t, func() bool {
			for _, name := range f.fleet.Names() {
				if f.fleet.Balance(name, testUser) != (register.BalanceView{Tag: 1, Value: DefaultInitialCredits}) {
					return false
				}
			}
			return true
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("should use the configured initial credit", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t, WithInitialCredits(3))
		)

		account, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, 3, account.Credit)

		require.NoError(t, f.manager.Init(7))
		account, err = f.manager.CreateUser(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, 7, account.Credit)
	})

	t.Run("should refuse invalid and taken emails", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)

		_, err := f.manager.CreateUser(ctx, "alice")
		assert.ErrorIs(t, err, users.ErrInvalidEmail)

		_, err = f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		_, err = f.manager.CreateUser(ctx, testUser)
		assert.ErrorIs(t, err, users.ErrUserAlreadyExists)
	})

	t.Run("should roll back the user when the balance cannot be seeded", func(t *testing.T) {
		// Arrange
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		f.fleet.Endpoint("A46_Station2").SetDown(true)
		f.fleet.Endpoint("A46_Station3").SetDown(true)

		// Act
		_, err := f.manager.CreateUser(ctx, testUser)

		// Assert
		assert.ErrorIs(t, err, register.ErrQuorumUnreachable)
		_, err = f.manager.GetUser(ctx, testUser)
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})
}

func TestManager_NilLogger(t *testing.T) {
	t.Run("should log through a discarding logger when given nil", func(t *testing.T) {
		// Arrange
		var (
			ctx = newCtx(t)
			f   = newFixture(t, WithLogger(nil))
		)

		// Act & Assert
		assert.NotPanics(t, func() {
			_, err := f.manager.CreateUser(ctx, testUser)
			assert.NoError(t, err)
		})
	})
}

func TestManager_RentBina(t *testing.T) {
	setup := func(t *testing.T) (context.Context, *fixture) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		return ctx, f
	}

	t.Run("should take a bina and debit one credit", func(t *testing.T) {
		// Arrange
		ctx, f := setup(t)

		// Act
		err := f.manager.RentBina(ctx, "A46_Station1", testUser)

		// Assert
		require.NoError(t, err)
		account, err := f.manager.Account(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, Account{Email: testUser, HasBina: true, Credit: DefaultInitialCredits - RentCost}, account)
		assert.Equal(t, 9, f.fleet.Endpoint("A46_Station1").Station().Info().AvailableBinas)
	})

	t.Run("should refuse a second rental", func(t *testing.T) {
		ctx, f := setup(t)
		require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))

		err := f.manager.RentBina(ctx, "A46_Station2", testUser)

		assert.ErrorIs(t, err, ErrUserAlreadyHasBina)
		assert.Equal(t, 10, f.fleet.Endpoint("A46_Station2").Station().Info().AvailableBinas)
	})

	t.Run("should refuse unknown users", func(t *testing.T) {
		ctx, f := setup(t)

		err := f.manager.RentBina(ctx, "A46_Station1", "nobody@example.com")

		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})

	t.Run("should refuse a rental without credit", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t, WithInitialCredits(0))
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)

		err = f.manager.RentBina(ctx, "A46_Station1", testUser)

		assert.ErrorIs(t, err, ErrInsufficientCredits)
		assert.Equal(t, 10, f.fleet.Endpoint("A46_Station1").Station().Info().AvailableBinas)
	})

	t.Run("should report unknown stations", func(t *testing.T) {
		ctx, f := setup(t)

		err := f.manager.RentBina(ctx, "A46_Station9", testUser)

		assert.ErrorIs(t, err, resolver.ErrStationNotFound)
		credit, err := f.manager.Balance(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, DefaultInitialCredits, credit)
	})

	t.Run("should leave the balance alone when the station is empty", func(t *testing.T) {
		ctx, f := setup(t)
		require.NoError(t, f.manager.TestInitStation(ctx, "A46_Station1", station.InitRequest{Capacity: 0}))

		err := f.manager.RentBina(ctx, "A46_Station1", testUser)

		assert.ErrorIs(t, err, station.ErrNoBinaAvailable)
		account, err := f.manager.Account(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, Account{Email: testUser, Credit: DefaultInitialCredits}, account)
	})

	t.Run("should not take a bina when the balance cannot be read", func(t *testing.T) {
		ctx, f := setup(t)
		f.fleet.Endpoint("A46_Station2").SetDown(true)
		f.fleet.Endpoint("A46_Station3").SetDown(true)

		err := f.manager.RentBina(ctx, "A46_Station1", testUser)

		assert.ErrorIs(t, err, register.ErrQuorumUnreachable)
		assert.Equal(t, 10, f.fleet.Endpoint("A46_Station1").Station().Info().AvailableBinas)
	})

	t.Run("should surface a failed debit after the bina left the station", func(t *testing.T) {
		// Arrange
		ctx, f := setup(t)
		f.fleet.Endpoint("A46_Station1").OnTakeBina(func() {
			f.fleet.Endpoint("A46_Station2").SetDown(true)
			f.fleet.Endpoint("A46_Station3").SetDown(true)
		})

		// Act
		err := f.manager.RentBina(ctx, "A46_Station1", testUser)

		// Assert
		assert.ErrorIs(t, err, register.ErrQuorumUnreachable)
		assert.Equal(t, 9, f.fleet.Endpoint("A46_Station1").Station().Info().AvailableBinas)
		user, err := f.manager.GetUser(ctx, testUser)
		require.NoError(t, err)
		assert.False(t, user.HasBina)
	})

	t.Run("should let exactly one concurrent rental of a user win", func(t *testing.T) {
		// Arrange
		var (
			ctx, f = setup(t)
			wg     sync.WaitGroup
			errs   = make(chan error, 10)
		)

		// Act
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- f.manager.RentBina(ctx, fmt.Sprintf("A46_Station%d", i%3+1), testUser)
			}(i)
		}
		wg.Wait()
		close(errs)

		// Assert
		var wins int
		for err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, ErrUserAlreadyHasBina)
		}
		assert.Equal(t, 1, wins)

		credit, err := f.manager.Balance(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, DefaultInitialCredits-RentCost, credit)
	})

	t.Run("should rent to different users concurrently", func(t *testing.T) {
		var (
			ctx    = newCtx(t)
			f      = newFixture(t)
			emails = []string{"a@x.pt", "b@x.pt", "c@x.pt", "d@x.pt", "e@x.pt"}
			wg     sync.WaitGroup
		)
		for _, email := range emails {
			_, err := f.manager.CreateUser(ctx, email)
			require.NoError(t, err)
		}

		for _, email := range emails {
			wg.Add(1)
			go func(email string) {
				defer wg.Done()
				assert.NoError(t, f.manager.RentBina(ctx, "A46_Station1", email))
			}(email)
		}
		wg.Wait()

		assert.Equal(t, 5, f.fleet.Endpoint("A46_Station1").Station().Info().AvailableBinas)
		for _, email := range emails {
			credit, err := f.manager.Balance(ctx, email)
			require.NoError(t, err)
			assert.Equal(t, DefaultInitialCredits-RentCost, credit, email)
		}
	})
}

func TestManager_ReturnBina(t *testing.T) {
	setup := func(t *testing.T) (context.Context, *fixture) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		return ctx, f
	}

	t.Run("should dock the bina and credit the prize", func(t *testing.T) {
		// Arrange
		ctx, f := setup(t)
		require.NoError(t, f.manager.TestInitStation(ctx, "A46_Station2", station.InitRequest{Capacity: 10, ReturnPrize: 4}))
		require.NoError(t, f.fleet.Endpoint("A46_Station2").Station().TakeBina())
		require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))

		// Act
		err := f.manager.ReturnBina(ctx, "A46_Station2", testUser)

		// Assert
		require.NoError(t, err)
		account, err := f.manager.Account(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, Account{Email: testUser, Credit: DefaultInitialCredits - RentCost + 4}, account)
		assert.Equal(t, 10, f.fleet.Endpoint("A46_Station2").Station().Info().AvailableBinas)
	})

	t.Run("should refuse a return without a bina", func(t *testing.T) {
		ctx, f := setup(t)

		err := f.manager.ReturnBina(ctx, "A46_Station1", testUser)

		assert.ErrorIs(t, err, ErrUserHasNoBina)
	})

	t.Run("should leave the balance alone when the station is full", func(t *testing.T) {
		// Arrange
		ctx, f := setup(t)
		require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))

		// Act
		err := f.manager.ReturnBina(ctx, "A46_Station2", testUser)

		// Assert
		assert.ErrorIs(t, err, station.ErrNoSlotAvailable)
		account, err := f.manager.Account(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, Account{Email: testUser, HasBina: true, Credit: DefaultInitialCredits - RentCost}, account)
	})

	t.Run("should report unknown stations", func(t *testing.T) {
		ctx, f := setup(t)
		require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))

		err := f.manager.ReturnBina(ctx, "B12_Station1", testUser)

		assert.ErrorIs(t, err, resolver.ErrStationNotFound)
	})

	t.Run("should run rent and return cycles without losing credit", func(t *testing.T) {
		ctx, f := setup(t)

		for i := 0; i < 3; i++ {
			require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))
			require.NoError(t, f.manager.ReturnBina(ctx, "A46_Station1", testUser))
		}

		credit, err := f.manager.Balance(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, DefaultInitialCredits-3*RentCost+3, credit)
	})
}

func TestManager_Admin(t *testing.T) {
	t.Run("should reject a negative initial credit", func(t *testing.T) {
		f := newFixture(t)

		err := f.manager.Init(-1)

		assert.ErrorIs(t, err, ErrBadInit)
		assert.Equal(t, DefaultInitialCredits, f.manager.InitialCredits())
	})

	t.Run("should drop every user on reset", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)

		require.NoError(t, f.manager.Reset(ctx))

		_, err = f.manager.GetUser(ctx, testUser)
		assert.ErrorIs(t, err, users.ErrUserNotFound)
	})

	t.Run("should resolve station info", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)

		info, err := f.manager.ResolveStation(ctx, "A46_Station3")

		require.NoError(t, err)
		assert.Equal(t, "A46_Station3", info.ID)
		assert.Equal(t, 10, info.Capacity)
	})

	t.Run("should reject a bad station init", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)

		err := f.manager.TestInitStation(ctx, "A46_Station1", station.InitRequest{Capacity: -3})

		assert.ErrorIs(t, err, station.ErrBadInit)
	})

	t.Run("should resize the replica set", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)

		assert.ErrorIs(t, f.manager.SetStationCount(0), register.ErrInvalidReplicaCount)

		// Five replicas need three answers; only three stations exist.
		require.NoError(t, f.manager.SetStationCount(5))
		_, err = f.manager.Balance(ctx, testUser)
		require.NoError(t, err)

		f.fleet.Endpoint("A46_Station3").SetDown(true)
		_, err = f.manager.Balance(ctx, testUser)
		assert.ErrorIs(t, err, register.ErrQuorumUnreachable)
	})

	t.Run("should switch the station template", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.fleet.Add("B12_Station1", 4, 0)
		require.NoError(t, err)

		require.Error(t, f.manager.SetStationTemplate(""))
		require.NoError(t, f.manager.SetStationTemplate("B12_Station"))
		require.NoError(t, f.manager.SetStationCount(1))

		account, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, DefaultInitialCredits, account.Credit)
		assert.Equal(t, register.BalanceView{Tag: 1, Value: DefaultInitialCredits}, f.fleet.Balance("B12_Station1", testUser))
		assert.Equal(t, register.BalanceView{}, f.fleet.Balance("A46_Station1", testUser))
	})
}

func TestManager_QuorumScenarios(t *testing.T) {
	t.Run("should keep renting with one station down", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		f.fleet.Endpoint("A46_Station3").SetDown(true)

		require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))

		credit, err := f.manager.Balance(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, DefaultInitialCredits-RentCost, credit)
	})

	t.Run("should keep renting with one station silent", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		f.fleet.Endpoint("A46_Station2").SetSilent(true)

		start := time.Now()
		require.NoError(t, f.manager.RentBina(ctx, "A46_Station1", testUser))

		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("should read the latest credit after a station comes back", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			f   = newFixture(t)
		)
		_, err := f.manager.CreateUser(ctx, testUser)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return f.fleet.Balance("A46_Station1", testUser).Tag == 1
		}, time.Second, 10*time.Millisecond)

		f.fleet.Endpoint("A46_Station1").SetDown(true)
		require.NoError(t, f.manager.RentBina(ctx, "A46_Station2", testUser))
		f.fleet.Endpoint("A46_Station1").SetDown(false)
		f.fleet.Endpoint("A46_Station3").SetDown(true)

		credit, err := f.manager.Balance(ctx, testUser)

		require.NoError(t, err)
		assert.Equal(t, DefaultInitialCredits-RentCost, credit)
		assert.Equal(t, register.BalanceView{Tag: 1, Value: DefaultInitialCredits}, f.fleet.Balance("A46_Station1", testUser))
	})
}
