package effects_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ordesk/ordesk/pkg/effects"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := effects.NewPool(2, 8)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		ok := p.Submit("notify-crm", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		assert.True(t, ok)
	}

	p.Close()
	assert.Equal(t, int32(5), ran.Load())
}

func TestPool_TaskFailureIsSwallowed(t *testing.T) {
	p := effects.NewPool(1, 4)

	var after atomic.Bool
	p.Submit("create-order", func(ctx context.Context) error {
		return errors.New("crm unavailable")
	})
	p.Submit("next", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})

	p.Close()
	assert.True(t, after.Load(), "a failing task must not stall the pool")
}

func TestPool_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	p := effects.NewPool(1, 1)
	defer p.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit("slow", func(ctx context.Context) error {
		defer wg.Done()
		<-release
		return nil
	})

	// Wait until the worker picked up the slow task, then fill the queue.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, p.Submit("queued", func(ctx context.Context) error { return nil }))

	start := time.Now()
	ok := p.Submit("dropped", func(ctx context.Context) error { return nil })
	assert.False(t, ok, "full queue must drop, not block")
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(release)
	wg.Wait()
}

func TestPool_SubmitAfterCloseIsSafe(t *testing.T) {
	p := effects.NewPool(1, 1)
	p.Close()

	ok := p.Submit("late", func(ctx context.Context) error { return nil })
	assert.False(t, ok)
}
