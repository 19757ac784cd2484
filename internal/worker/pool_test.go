package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesSubmittedJobs(t *testing.T) {
	var sum atomic.Int64
	p := NewPool("sum", 3, 16, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	}, zerolog.Nop())
	p.Start()

	for i := 1; i <= 10; i++ {
		require.True(t, p.Submit(i))
	}
	p.Stop(context.Background())

	assert.Equal(t, int64(55), sum.Load())
}

func TestPoolHandlerErrorsDoNotStopWorkers(t *testing.T) {
	var calls atomic.Int32
	p := NewPool("flaky", 1, 4, func(context.Context, string) error {
		calls.Add(1)
		return errors.New("nope")
	}, zerolog.Nop())
	p.Start()

	p.Submit("a")
	p.Submit("b")
	p.Stop(context.Background())

	assert.Equal(t, int32(2), calls.Load())
}

func TestSubmitNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	p := NewPool("blocked", 1, 1, func(context.Context, int) error {
		<-release
		return nil
	}, zerolog.Nop())
	p.Start()

	accepted := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			if p.Submit(i) {
				accepted++
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked")
	}
	assert.LessOrEqual(t, accepted, 2)

	close(release)
	p.Stop(context.Background())
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool("stopped", 1, 1, func(context.Context, int) error { return nil }, zerolog.Nop())
	p.Start()
	p.Stop(context.Background())
	p.Stop(context.Background())

	assert.False(t, p.Submit(1))
}

func TestStopCancelsHandlersOnDeadline(t *testing.T) {
	p := NewPool("slow", 1, 1, func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}, zerolog.Nop())
	p.Start()
	require.True(t, p.Submit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		p.Stop(ctx)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after its deadline")
	}
}
