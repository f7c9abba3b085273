package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binas/internal/directory"
	"binas/internal/register"
	"binas/internal/station"
	"binas/internal/station/stationtest"
)

type failingDirectory struct{}

func (failingDirectory) List(context.Context, string) ([]directory.Record, error) {
	return nil, errors.New("directory down")
}

func TestResolver(t *testing.T) {
	var (
		newCtx = func(t *testing.T) context.Context {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			t.Cleanup(cancel)
			return ctx
		}
		newFleet = func(t *testing.T) *stationtest.Fleet {
			fleet, err := stationtest.NewFleet("A46_Station", 3, 10, 1)
			require.NoError(t, err)
			return fleet
		}
	)

	t.Run("should resolve a station by its reported id", func(t *testing.T) {
		// Arrange
		var (
			ctx   = newCtx(t)
			fleet = newFleet(t)
			sut   = New(fleet.Directory(), fleet.Dial, "A46_Station")
		)

		// Act
		ep, err := sut.Resolve(ctx, "A46_Station2")

		// Assert
		require.NoError(t, err)
		info, err := ep.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, "A46_Station2", info.ID)
	})

	t.Run("should report unknown stations", func(t *testing.T) {
		var (
			ctx   = newCtx(t)
			fleet = newFleet(t)
			sut   = New(fleet.Directory(), fleet.Dial, "A46_Station")
		)

		_, err := sut.Resolve(ctx, "A46_Station9")

		assert.ErrorIs(t, err, ErrStationNotFound)
	})

	t.Run("should skip stations that do not answer", func(t *testing.T) {
		var (
			ctx   = newCtx(t)
			fleet = newFleet(t)
			sut   = New(fleet.Directory(), fleet.Dial, "A46_Station", WithProbeTimeout(50*time.Millisecond))
		)
		fleet.Endpoint("A46_Station1").SetSilent(true)
		fleet.Endpoint("A46_Station2").SetDown(true)

		_, err := sut.Resolve(ctx, "A46_Station2")
		assert.ErrorIs(t, err, ErrStationNotFound)

		ep, err := sut.Resolve(ctx, "A46_Station3")
		require.NoError(t, err)
		assert.Same(t, fleet.Endpoint("A46_Station3"), ep)
	})

	t.Run("should skip addresses that cannot be dialed", func(t *testing.T) {
		var (
			ctx   = newCtx(t)
			fleet = newFleet(t)
			dir   = directory.NewStatic(
				directory.Record{Name: "A46_Station0", Addr: "nowhere"},
				directory.Record{Name: "A46_Station1", Addr: stationtest.Addr("A46_Station1")},
			)
			sut = New(dir, fleet.Dial, "A46_Station")
		)

		ep, err := sut.Resolve(ctx, "A46_Station1")

		require.NoError(t, err)
		assert.Same(t, fleet.Endpoint("A46_Station1"), ep)
	})

	t.Run("should treat a failing directory as empty", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			sut = New(failingDirectory{}, func(string) (station.Endpoint, error) {
				return nil, errors.New("unused")
			}, "A46_Station")
		)

		_, err := sut.Resolve(ctx, "A46_Station1")

		assert.ErrorIs(t, err, ErrStationNotFound)
	})

	t.Run("should fall back to a discarding logger when given nil", func(t *testing.T) {
		var (
			ctx = newCtx(t)
			sut = New(failingDirectory{}, func(string) (station.Endpoint, error) {
				return nil, errors.New("unused")
			}, "A46_Station", WithLogger(nil))
		)

		assert.NotPanics(t, func() {
			_, err := sut.Resolve(ctx, "A46_Station1")
			assert.ErrorIs(t, err, ErrStationNotFound)
		})
	})

	t.Run("should only list names under the current template", func(t *testing.T) {
		var (
			ctx   = newCtx(t)
			fleet = newFleet(t)
			sut   = New(fleet.Directory(), fleet.Dial, "A46_Station")
		)
		_, err := fleet.Add("B12_Station1", 5, 0)
		require.NoError(t, err)

		_, err = sut.Resolve(ctx, "B12_Station1")
		assert.ErrorIs(t, err, ErrStationNotFound)

		sut.SetTemplate("B12_Station")
		assert.Equal(t, "B12_Station", sut.Template())
		_, err = sut.Resolve(ctx, "B12_Station1")
		assert.NoError(t, err)
	})

	t.Run("should locate register replicas", func(t *testing.T) {
		var (
			ctx   = newCtx(t)
			fleet = newFleet(t)
			sut   = New(fleet.Directory(), fleet.Dial, "A46_Station")
		)
		require.True(t, fleet.Endpoint("A46_Station3").Station().SetBalance("u@x", register.BalanceView{Tag: 1, Value: 4}))

		replica, err := sut.Locator().Locate(ctx, "A46_Station3")
		require.NoError(t, err)
		view, err := replica.GetBalance(ctx, "u@x")

		require.NoError(t, err)
		assert.Equal(t, register.BalanceView{Tag: 1, Value: 4}, view)
	})
}
