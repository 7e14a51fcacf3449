// Package overlaysync serves the live viewing phase: a websocket endpoint
// that keeps a client's playback position in step with the overlay frame
// sequence retained from a finished render.
package overlaysync

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/reelmask/reelmask-render-service/internal/infra/metrics"
	"github.com/reelmask/reelmask-render-service/internal/playback"
	"go.uber.org/zap"
)

// Sequence describes one job's retained overlay frames.
type Sequence struct {
	FrameCount    int
	Duration      float64
	OverlayPrefix string
}

// TimeUpdate is the client-to-server message: the reference video's playback
// position, sent on every rendered frame.
type TimeUpdate struct {
	CurrentTime float64 `json:"current_time"`
}

// OverlaySwap is the server-to-client message, sent only when the overlay
// index changes.
type OverlaySwap struct {
	FrameIndex int    `json:"frame_index"`
	OverlayKey string `json:"overlay_key"`
}

type Server struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu        sync.RWMutex
	sequences map[string]Sequence
}

func NewServer(logger *zap.Logger) *Server {
	return &Server{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:    logger,
		sequences: make(map[string]Sequence),
	}
}

// Register exposes a finished job's overlay sequence to sync clients.
func (s *Server) Register(jobID string, seq Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[jobID] = seq
}

// RegisterOverlays implements the registry the render pipeline publishes to.
func (s *Server) RegisterOverlays(jobID string, frameCount int, duration float64, overlayPrefix string) {
	s.Register(jobID, Sequence{
		FrameCount:    frameCount,
		Duration:      duration,
		OverlayPrefix: overlayPrefix,
	})
}

// Handler serves GET /sync?job=<id> websocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleSync)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job")
	s.mu.RLock()
	seq, ok := s.sequences[jobID]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.SyncSessionsActive.Inc()
	defer metrics.SyncSessionsActive.Dec()

	log := s.logger.With(zap.String("job_id", jobID))
	log.Info("sync session opened", zap.Int("frame_count", seq.FrameCount))

	clock := &wsClock{duration: seq.Duration, frames: make(chan struct{})}

	// Writes happen only from the synchronizer's goroutine.
	display := func(idx int) {
		swap := OverlaySwap{
			FrameIndex: idx,
			OverlayKey: fmt.Sprintf("%s/frame_%04d.png", seq.OverlayPrefix, idx),
		}
		if err := conn.WriteJSON(swap); err != nil {
			log.Debug("sync write failed", zap.Error(err))
		}
	}

	syncer := playback.NewSynchronizer(clock, seq.FrameCount, display, log)
	syncer.Start(r.Context())
	// The session is bound to the connection's lifetime: once the read
	// loop ends the synchronizer must be cancelled, never leaked.
	defer func() {
		syncer.Stop()
		<-syncer.Done()
	}()

	for {
		var update TimeUpdate
		if err := conn.ReadJSON(&update); err != nil {
			log.Info("sync session closed", zap.Error(err))
			return
		}
		clock.tick(r.Context(), update.CurrentTime, syncer.Done())
	}
}

// wsClock adapts incoming playback-time updates to the synchronizer's clock.
// Every update counts as one rendered frame, so no update is skipped.
type wsClock struct {
	mu       sync.Mutex
	now      float64
	duration float64
	frames   chan struct{}
}

func (c *wsClock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *wsClock) Duration() float64 { return c.duration }

func (c *wsClock) Frames() <-chan struct{} { return c.frames }

func (c *wsClock) tick(ctx context.Context, now float64, done <-chan struct{}) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	select {
	case c.frames <- struct{}{}:
	case <-done:
	case <-ctx.Done():
	}
}
