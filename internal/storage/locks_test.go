package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocksSerializeSameKey(t *testing.T) {
	locks := NewLocks()
	ctx := context.Background()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, "t1")
			require.NoError(t, err)
			defer release()

			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), peak.Load())
	require.Zero(t, locks.Len())
}

func TestLocksDifferentKeysDoNotBlock(t *testing.T) {
	locks := NewLocks()
	ctx := context.Background()

	releaseA, err := locks.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release, err := locks.Acquire(ctx, "b")
		require.NoError(t, err)
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestLocksAcquireHonorsContext(t *testing.T) {
	locks := NewLocks()

	release, err := locks.Acquire(context.Background(), "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "t1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	require.Zero(t, locks.Len())
}
