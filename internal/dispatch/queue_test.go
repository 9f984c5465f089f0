package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsJobsInOrder(t *testing.T) {
	q := NewQueue(16, nil)
	q.Start()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		require.True(t, q.Enqueue(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	q.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_SingleConsumer(t *testing.T) {
	q := NewQueue(16, nil)
	q.Start()

	var concurrent, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		q.Enqueue(func(context.Context) {
			defer wg.Done()
			now := concurrent.Add(1)
			if now > peak.Load() {
				peak.Store(now)
			}
			time.Sleep(2 * time.Millisecond)
			concurrent.Add(-1)
		})
	}
	wg.Wait()
	q.Close()

	assert.Equal(t, int32(1), peak.Load(), "jobs must never overlap")
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(1, nil)
	// consumer not started, so the channel fills up

	assert.True(t, q.Enqueue(func(context.Context) {}))
	assert.False(t, q.Enqueue(func(context.Context) {}))
	assert.False(t, q.Enqueue(func(context.Context) {}))
	assert.Equal(t, int64(2), q.Dropped())
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_CloseDrains(t *testing.T) {
	q := NewQueue(16, nil)
	q.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		q.Enqueue(func(context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		})
	}
	q.Close()

	assert.Equal(t, int32(10), ran.Load(), "pending jobs finish before Close returns")
	assert.False(t, q.Enqueue(func(context.Context) {}), "closed queue rejects new jobs")
}

func TestQueue_CloseWithoutStart(t *testing.T) {
	q := NewQueue(1, nil)
	q.Enqueue(func(context.Context) {})

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a queue that was never started")
	}
}

func TestQueue_PanicDoesNotKillConsumer(t *testing.T) {
	q := NewQueue(16, nil)
	q.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	q.Enqueue(func(context.Context) { panic("boom") })
	var ran atomic.Bool
	q.Enqueue(func(context.Context) {
		defer wg.Done()
		ran.Store(true)
	})
	wg.Wait()
	q.Close()

	assert.True(t, ran.Load())
}
