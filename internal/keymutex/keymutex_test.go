package keymutex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("should serialize holders of the same key", func(t *testing.T) {
		var (
			sut     = New()
			wg      sync.WaitGroup
			inside  atomic.Int32
			overlap atomic.Bool
		)

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := sut.Lock("alice@example.com")
				defer unlock()

				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
			}()
		}
		wg.Wait()

		assert.False(t, overlap.Load(), "two holders of the same key overlapped")
		assert.Equal(t, 0, sut.Len())
	})

	t.Run("should let different keys proceed concurrently", func(t *testing.T) {
		var (
			sut     = New()
			unlockA = sut.Lock("a")
			done    = make(chan struct{})
		)
		defer unlockA()

		go func() {
			unlock := sut.Lock("b")
			unlock()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on key b blocked behind key a")
		}
	})

	t.Run("should tolerate double unlock", func(t *testing.T) {
		var (
			sut    = New()
			unlock = sut.Lock("k")
		)

		unlock()
		unlock()

		require.Equal(t, 0, sut.Len())
		again := sut.Lock("k")
		again()
	})
}
