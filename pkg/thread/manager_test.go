package thread

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager()
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		tid := fmt.Sprintf("thread-%d", i)
		err := mgr.WithLock(ctx, tid, func(context.Context) error { return nil })
		require.NoError(t, err)
	}

	// Entries must be reference-counted away, not leaked.
	assert.Equal(t, 0, mgr.Active(), "locks leaked after release")
}

func TestManager_SerializesSameThread(t *testing.T) {
	mgr := NewManager()
	ctx := context.Background()

	var mu sync.Mutex
	var running int
	var maxRunning int
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = mgr.WithLock(ctx, "T1", func(context.Context) error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				order = append(order, i)
				mu.Unlock()

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxRunning, "turns on the same thread must never overlap")
	assert.Len(t, order, 16)
}

func TestManager_IndependentThreadsDoNotBlock(t *testing.T) {
	mgr := NewManager()
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = mgr.WithLock(ctx, "T1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held

	// A different thread must proceed while T1 is held.
	done := make(chan struct{})
	go func() {
		_ = mgr.WithLock(ctx, "T2", func(context.Context) error { return nil })
		close(done)
	}()

	<-done
	close(release)
}
