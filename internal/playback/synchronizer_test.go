package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIndexFor(t *testing.T) {
	tests := []struct {
		name       string
		t          float64
		duration   float64
		frameCount int
		want       int
	}{
		{"start", 0, 2.0, 4, 0},
		{"quarter", 0.5, 2.0, 4, 1},
		{"three quarters maps to last", 1.5, 2.0, 4, 3},
		{"end clamps in bounds", 2.0, 2.0, 4, 3},
		{"past end clamps", 5.0, 2.0, 4, 3},
		{"negative clamps to first", -1.0, 2.0, 4, 0},
		{"zero duration", 1.0, 0, 4, 0},
		{"no frames", 1.0, 2.0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IndexFor(tt.t, tt.duration, tt.frameCount))
		})
	}
}

// fakeClock drives the synchronizer with explicit frame events.
type fakeClock struct {
	mu       sync.Mutex
	now      float64
	duration float64
	frames   chan struct{}
}

func newFakeClock(duration float64) *fakeClock {
	return &fakeClock{duration: duration, frames: make(chan struct{})}
}

func (c *fakeClock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Duration() float64 { return c.duration }

func (c *fakeClock) Frames() <-chan struct{} { return c.frames }

func (c *fakeClock) advance(to float64) {
	c.mu.Lock()
	c.now = to
	c.mu.Unlock()
	c.frames <- struct{}{}
}

func TestSynchronizerSwapsOnlyOnChange(t *testing.T) {
	clock := newFakeClock(2.0)

	var mu sync.Mutex
	var shown []int
	display := func(idx int) {
		mu.Lock()
		shown = append(shown, idx)
		mu.Unlock()
	}

	s := NewSynchronizer(clock, 4, display, zap.NewNop())
	s.Start(context.Background())

	clock.advance(0.1) // still frame 0
	clock.advance(0.6) // frame 1
	clock.advance(0.7) // still frame 1
	clock.advance(1.5) // frame 3
	s.Stop()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("synchronizer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	// The initial evaluation shows frame 0; later ticks only fire on change.
	assert.Equal(t, []int{0, 1, 3}, shown)
}

func TestSynchronizerStopIdempotent(t *testing.T) {
	clock := newFakeClock(1.0)
	s := NewSynchronizer(clock, 2, func(int) {}, zap.NewNop())
	s.Start(context.Background())

	s.Stop()
	s.Stop() // must not panic

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("synchronizer did not stop")
	}
}

func TestSynchronizerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock(1.0)
	s := NewSynchronizer(clock, 2, func(int) {}, zap.NewNop())
	s.Start(ctx)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("synchronizer did not observe cancellation")
	}
}

func TestSynchronizerFallsBackToPolling(t *testing.T) {
	// A clock without frame events must still drive the display via the
	// polling ticker.
	var got int
	var once sync.Once
	fired := make(chan struct{})

	s := NewSynchronizer(plainClockFunc{t: func() float64 { return 0.9 }, d: 1.0}, 10, func(idx int) {
		once.Do(func() {
			got = idx
			close(fired)
		})
	}, zap.NewNop())
	s.interval = time.Millisecond
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("polling fallback never evaluated")
	}
	require.Equal(t, 9, got)
}

type plainClockFunc struct {
	t func() float64
	d float64
}

func (p plainClockFunc) CurrentTime() float64 { return p.t() }
func (p plainClockFunc) Duration() float64    { return p.d }
