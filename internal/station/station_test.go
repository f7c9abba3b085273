package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binas/internal/register"
)

func TestStation(t *testing.T) {
	newStation := func(t *testing.T, capacity, prize int) *Station {
		st, err := New("A46_Station1", InitRequest{X: 22, Y: 7, Capacity: capacity, ReturnPrize: prize})
		require.NoError(t, err)
		return st
	}

	t.Run("should start with every dock holding a bina", func(t *testing.T) {
		sut := newStation(t, 6, 2)

		info := sut.Info()

		assert.Equal(t, Info{
			ID:             "A46_Station1",
			X:              22,
			Y:              7,
			Capacity:       6,
			FreeDocks:      0,
			AvailableBinas: 6,
			ReturnPrize:    2,
		}, info)
	})

	t.Run("should hand out binas until the docks are empty", func(t *testing.T) {
		sut := newStation(t, 2, 0)

		require.NoError(t, sut.TakeBina())
		require.NoError(t, sut.TakeBina())
		err := sut.TakeBina()

		assert.ErrorIs(t, err, ErrNoBinaAvailable)
		info := sut.Info()
		assert.Equal(t, 2, info.FreeDocks)
		assert.Equal(t, 2, info.TotalGets)
	})

	t.Run("should refuse a return when every dock is occupied", func(t *testing.T) {
		sut := newStation(t, 2, 3)

		_, err := sut.ReturnBina()

		assert.ErrorIs(t, err, ErrNoSlotAvailable)
	})

	t.Run("should pay the prize on return", func(t *testing.T) {
		sut := newStation(t, 2, 3)
		require.NoError(t, sut.TakeBina())

		prize, err := sut.ReturnBina()

		require.NoError(t, err)
		assert.Equal(t, 3, prize)
		assert.Equal(t, 1, sut.Info().TotalReturns)
	})

	t.Run("should reject a negative init", func(t *testing.T) {
		sut := newStation(t, 2, 0)

		err := sut.Init(InitRequest{X: -1, Capacity: 2})

		assert.ErrorIs(t, err, ErrBadInit)
		assert.Equal(t, 22, sut.Info().X)
	})

	t.Run("should keep balances across init and drop them on clear", func(t *testing.T) {
		var (
			sut  = newStation(t, 2, 0)
			view = register.BalanceView{Tag: 1, Value: 10}
		)
		require.True(t, sut.SetBalance("alice@example.com", view))

		require.NoError(t, sut.Init(InitRequest{Capacity: 5}))
		assert.Equal(t, view, sut.Balance("alice@example.com"))

		sut.Clear()
		assert.Equal(t, register.BalanceView{}, sut.Balance("alice@example.com"))
		assert.Equal(t, DefaultCapacity, sut.Info().Capacity)
	})
}

func TestBalanceStore(t *testing.T) {
	t.Run("should only move forward in tag order", func(t *testing.T) {
		sut := NewBalanceStore()

		assert.True(t, sut.Apply("u", register.BalanceView{Tag: 2, Value: 8}))
		assert.False(t, sut.Apply("u", register.BalanceView{Tag: 2, Value: 99}))
		assert.False(t, sut.Apply("u", register.BalanceView{Tag: 1, Value: 99}))
		assert.True(t, sut.Apply("u", register.BalanceView{Tag: 3, Value: 7}))

		view, ok := sut.Get("u")
		assert.True(t, ok)
		assert.Equal(t, register.BalanceView{Tag: 3, Value: 7}, view)
	})

	t.Run("should read an unknown user as the zero view", func(t *testing.T) {
		sut := NewBalanceStore()

		view, ok := sut.Get("nobody")

		assert.False(t, ok)
		assert.Equal(t, register.BalanceView{}, view)
		assert.Equal(t, 0, sut.Len())
	})
}
