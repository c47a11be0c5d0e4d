package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobpilot/orchestrator/internal/domain"
	"github.com/jobpilot/orchestrator/internal/usecase"
)

type countingRefiller struct {
	mu     sync.Mutex
	cycles int
	done   chan struct{}
}

func (r *countingRefiller) Refill(domain.Context) (int, error) {
	r.mu.Lock()
	r.cycles++
	n := r.cycles
	r.mu.Unlock()
	if r.done != nil && n == 2 {
		close(r.done)
	}
	return 0, nil
}

func (r *countingRefiller) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles
}

func TestRefillLoop_RunsInitialCycleAndKicks(t *testing.T) {
	refiller := &countingRefiller{done: make(chan struct{})}
	loop := usecase.NewRefillLoop(refiller, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	loop.Kick()
	select {
	case <-refiller.done:
	case <-time.After(2 * time.Second):
		t.Fatal("kick never triggered a cycle")
	}
	cancel()
	wg.Wait()

	// Initial cycle plus the kicked one; the hour-long ticker never fired.
	assert.Equal(t, 2, refiller.count())
}

func TestRefillLoop_KicksCoalesceWhileIdle(t *testing.T) {
	loop := usecase.NewRefillLoop(&countingRefiller{}, time.Hour)

	// Without a running loop, repeated kicks fill the one-slot buffer and
	// never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			loop.Kick()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Kick blocked")
	}
}

func TestRefillLoop_HandleNotificationKicks(t *testing.T) {
	refiller := &countingRefiller{done: make(chan struct{})}
	loop := usecase.NewRefillLoop(refiller, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	require.NoError(t, loop.HandleNotification(ctx, []byte(`{"user_id":42}`)))
	select {
	case <-refiller.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never triggered a cycle")
	}
	cancel()
	wg.Wait()
}
