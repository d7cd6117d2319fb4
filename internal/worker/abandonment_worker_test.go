package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeAbandoner struct {
	mu      sync.Mutex
	batches []int
	calls   int
	err     error
	limits  []int
	ages    []time.Duration
}

func (f *fakeAbandoner) AbandonStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	f.ages = append(f.ages, olderThan)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeAbandoner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAbandonmentWorker_SweepDrainsFullBatches(t *testing.T) {
	abandoner := &fakeAbandoner{batches: []int{10, 10, 3}}
	w := NewAbandonmentWorker(abandoner, 30*time.Minute, 10, time.Minute, discardLogger())

	total := w.sweep(context.Background())

	assert.Equal(t, 23, total)
	assert.Equal(t, 3, abandoner.Calls())
	assert.Equal(t, []int{10, 10, 10}, abandoner.limits)
	assert.Equal(t, 30*time.Minute, abandoner.ages[0])
}

func TestAbandonmentWorker_SweepStopsOnError(t *testing.T) {
	abandoner := &fakeAbandoner{err: errors.New("db down")}
	w := NewAbandonmentWorker(abandoner, time.Minute, 10, time.Minute, discardLogger())

	assert.Equal(t, 0, w.sweep(context.Background()))
	assert.Equal(t, 1, abandoner.Calls())
}

func TestAbandonmentWorker_StartRunsImmediatelyAndStops(t *testing.T) {
	abandoner := &fakeAbandoner{}
	w := NewAbandonmentWorker(abandoner, time.Minute, 10, 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return abandoner.Calls() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
