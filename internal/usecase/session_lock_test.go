package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocker_ReleasesKeyOnUnlock(t *testing.T) {
	sl := NewSessionLocker()

	unlock, err := sl.Lock(context.Background(), "1:main")
	require.NoError(t, err)
	assert.Equal(t, 1, sl.ActiveCount())

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, sl.ActiveCount())

	again, err := sl.Lock(context.Background(), "1:main")
	require.NoError(t, err)
	again()
}

func TestSessionLocker_SerializesSameKey(t *testing.T) {
	sl := NewSessionLocker()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			unlock, err := sl.Lock(context.Background(), "shared")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Zero(t, sl.ActiveCount())
}

func TestSessionLocker_IndependentKeys(t *testing.T) {
	sl := NewSessionLocker()
	held, err := sl.Lock(context.Background(), "1:a")
	require.NoError(t, err)
	defer held()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := sl.Lock(ctx, "1:b")
	require.NoError(t, err, "a different key must not wait")
	other()
	assert.Equal(t, 1, sl.ActiveCount())
}

func TestSessionLocker_WaiterGivesUpOnContext(t *testing.T) {
	sl := NewSessionLocker()
	held, err := sl.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sl.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), `session lock "k"`)
	assert.Equal(t, 1, sl.ActiveCount(), "the holder keeps the key alive")

	held()
	assert.Zero(t, sl.ActiveCount())
}
