// Package playback keeps a precomputed overlay sequence in step with a live
// playing reference video.
package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval paces the fallback polling loop when the clock cannot
// report decoded-frame events (roughly one evaluation per 30fps frame).
const DefaultPollInterval = 33 * time.Millisecond

// Clock reports the reference video's playback position.
type Clock interface {
	CurrentTime() float64
	Duration() float64
}

// FrameNotifier is an optional refinement of Clock: clocks that can signal
// every decoded frame expose a channel that fires per rendered picture, so
// overlay swaps track actual frames instead of wall time.
type FrameNotifier interface {
	Frames() <-chan struct{}
}

// IndexFor maps a playback position to an overlay frame index. The result is
// always within [0, frameCount); a position at or past the end maps to the
// last frame, never out of bounds.
func IndexFor(currentTime, duration float64, frameCount int) int {
	if frameCount <= 0 {
		return 0
	}
	progress := 0.0
	if duration > 0 {
		progress = currentTime / duration
	}
	progress = math.Max(0, math.Min(1, progress))

	idx := int(math.Floor(progress * float64(frameCount)))
	if idx >= frameCount {
		idx = frameCount - 1
	}
	return idx
}

// Synchronizer re-evaluates the overlay index on every tick of its clock and
// invokes the display callback only when the index changes. It is an
// explicit cancellable task: Stop (or context cancellation) ends the loop,
// and Stop is idempotent.
type Synchronizer struct {
	clock      Clock
	frameCount int
	display    func(index int)
	interval   time.Duration
	logger     *zap.Logger

	current  int
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSynchronizer(clock Clock, frameCount int, display func(int), logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		clock:      clock,
		frameCount: frameCount,
		display:    display,
		interval:   DefaultPollInterval,
		logger:     logger,
		current:    -1,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the sync loop. It returns immediately; the loop runs until
// Stop is called or ctx is cancelled.
func (s *Synchronizer) Start(ctx context.Context) {
	var frames <-chan struct{}
	if fn, ok := s.clock.(FrameNotifier); ok {
		frames = fn.Frames()
	}

	go func() {
		defer close(s.doneCh)

		var tick <-chan time.Time
		if frames == nil {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
			s.logger.Debug("clock reports no frame events, polling at fixed rate",
				zap.Duration("interval", s.interval))
		}

		s.evaluate()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case _, ok := <-frames:
				if !ok {
					return
				}
				s.evaluate()
			case <-tick:
				s.evaluate()
			}
		}
	}()
}

func (s *Synchronizer) evaluate() {
	idx := IndexFor(s.clock.CurrentTime(), s.clock.Duration(), s.frameCount)
	if idx == s.current {
		return
	}
	s.current = idx
	s.display(idx)
}

// Stop cancels the loop. Safe to call more than once and before Start.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed once the loop has exited.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.doneCh
}
