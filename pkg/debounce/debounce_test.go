package debounce_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordesk/ordesk/pkg/debounce"
	"github.com/ordesk/ordesk/pkg/domain"
)

func frag(text string) domain.BufferedFragment {
	return domain.BufferedFragment{Text: text, ArrivedAt: time.Now()}
}

func TestDebouncer_SingleFragment(t *testing.T) {
	d := debounce.New(50 * time.Millisecond)

	turn, err := d.Submit(context.Background(), "user-1", frag("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", turn.Text)
	assert.Equal(t, uint64(1), turn.Generation)
	assert.False(t, d.Pending("user-1"))
}

func TestDebouncer_CoalescesTwoFragments(t *testing.T) {
	d := debounce.New(100 * time.Millisecond)
	ctx := context.Background()

	type outcome struct {
		turn domain.AggregatedTurn
		err  error
	}
	results := make(chan outcome, 2)

	go func() {
		turn, err := d.Submit(ctx, "user-1", frag("one"))
		results <- outcome{turn, err}
	}()
	time.Sleep(30 * time.Millisecond)
	go func() {
		turn, err := d.Submit(ctx, "user-1", frag("two"))
		results <- outcome{turn, err}
	}()

	var winners, superseded int
	for i := 0; i < 2; i++ {
		res := <-results
		switch {
		case res.err == nil:
			winners++
			assert.Equal(t, "one\ntwo", res.turn.Text)
			assert.Equal(t, uint64(2), res.turn.Generation)
		case errors.Is(res.err, domain.ErrSuperseded):
			superseded++
		default:
			t.Fatalf("unexpected error: %v", res.err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one call receives the merged turn")
	assert.Equal(t, 1, superseded)
}

func TestDebouncer_ExactlyOneWinnerUnderBurst(t *testing.T) {
	d := debounce.New(150 * time.Millisecond)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners int
	var winnerText string

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn, err := d.Submit(ctx, "burst-user", frag("part"))
			if err == nil {
				mu.Lock()
				winners++
				winnerText = turn.Text
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrSuperseded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Len(t, strings.Split(winnerText, "\n"), n, "all fragments merged into the winning turn")
}

func TestDebouncer_ImageOverwriteRules(t *testing.T) {
	d := debounce.New(80 * time.Millisecond)
	ctx := context.Background()

	go d.Submit(ctx, "user-1", domain.BufferedFragment{
		Text: "look at this", HasImage: true, ImageURL: "https://cdn/img-1.jpg",
	})
	time.Sleep(20 * time.Millisecond)

	// A fragment without image data must not clear the buffered image.
	turn, err := d.Submit(ctx, "user-1", frag("in size M"))
	require.NoError(t, err)
	assert.True(t, turn.HasImage)
	assert.Equal(t, "https://cdn/img-1.jpg", turn.ImageURL)
	assert.Equal(t, "look at this\nin size M", turn.Text)
}

func TestDebouncer_EmptyFragmentResetsTimer(t *testing.T) {
	d := debounce.New(100 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()

	first := make(chan error, 1)
	go func() {
		_, err := d.Submit(ctx, "user-1", frag("content"))
		first <- err
	}()
	time.Sleep(60 * time.Millisecond)

	// Empty body, no image: still a live turn that extends the window.
	turn, err := d.Submit(ctx, "user-1", domain.BufferedFragment{ArrivedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "content", turn.Text, "empty fragment contributes no text")
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "timer was reset by the empty fragment")

	assert.ErrorIs(t, <-first, domain.ErrSuperseded)
}

func TestDebouncer_TimeoutDistinguishableFromSuperseded(t *testing.T) {
	d := debounce.New(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Submit(ctx, "user-1", frag("hi"))
	require.Error(t, err)

	var timeoutErr *domain.AggregationTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.NotErrorIs(t, err, domain.ErrSuperseded)
	assert.False(t, d.Pending("user-1"), "abandoned window is discarded")
}

func TestDebouncer_Clear(t *testing.T) {
	d := debounce.New(1 * time.Second)
	ctx := context.Background()

	pending := make(chan error, 1)
	go func() {
		_, err := d.Submit(ctx, "user-1", frag("never released"))
		pending <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.True(t, d.Pending("user-1"))

	d.Clear("user-1")
	assert.ErrorIs(t, <-pending, domain.ErrSuperseded)
	assert.False(t, d.Pending("user-1"))

	// Idempotent.
	d.Clear("user-1")
}

func TestDebouncer_UsersAreIndependent(t *testing.T) {
	d := debounce.New(60 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			turn, err := d.Submit(ctx, u, frag("msg from "+u))
			assert.NoError(t, err)
			assert.Equal(t, "msg from "+u, turn.Text)
		}(user)
	}
	wg.Wait()
}

func TestDebouncer_HooksFire(t *testing.T) {
	var mu sync.Mutex
	var released, superseded int

	d := debounce.New(60*time.Millisecond, debounce.WithHooks(debounce.Hooks{
		OnRelease: func(string, uint64) {
			mu.Lock()
			released++
			mu.Unlock()
		},
		OnSupersede: func(string) {
			mu.Lock()
			superseded++
			mu.Unlock()
		},
	}))
	ctx := context.Background()

	go d.Submit(ctx, "user-1", frag("a"))
	time.Sleep(20 * time.Millisecond)
	_, err := d.Submit(ctx, "user-1", frag("b"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, superseded)
}
