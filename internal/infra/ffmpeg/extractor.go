package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"sort"
	"time"

	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"github.com/reelmask/reelmask-render-service/internal/infra/metrics"
	"go.uber.org/zap"
)

// DefaultSeekTimeout bounds each individual seek+capture.
const DefaultSeekTimeout = 5 * time.Second

// Extractor captures still frames from a source video by seeking its shared
// handle. Indices are processed strictly ascending; each seek+capture is
// bounded by a timeout, and a frame that times out or fails to decode is
// dropped while extraction continues.
type Extractor struct {
	handle      *Handle
	seekTimeout time.Duration
	logger      *zap.Logger
}

func NewExtractor(handle *Handle, seekTimeout time.Duration, logger *zap.Logger) *Extractor {
	if seekTimeout <= 0 {
		seekTimeout = DefaultSeekTimeout
	}
	return &Extractor{handle: handle, seekTimeout: seekTimeout, logger: logger}
}

// ExtractFrames converts each index to a source timestamp (index/sampledRate,
// clamped to the video's duration), seeks there and captures one picture.
// Indices whose timestamp lies past the end of the video are skipped. The
// result holds only the indices that succeeded, ascending; the error return
// covers the shared handle and context only, never a single frame.
func (e *Extractor) ExtractFrames(ctx context.Context, indices []int, sampledRate int) ([]port.ExtractedFrame, error) {
	if sampledRate < 1 {
		return nil, fmt.Errorf("sampled rate must be positive, got %d", sampledRate)
	}

	if err := e.handle.Acquire("extract"); err != nil {
		return nil, err
	}
	defer e.handle.Release("extract")

	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	duration := e.handle.Meta().Duration
	frames := make([]port.ExtractedFrame, 0, len(sorted))
	for _, index := range sorted {
		if err := ctx.Err(); err != nil {
			return frames, err
		}

		t := float64(index) / float64(sampledRate)
		if duration > 0 && t > duration {
			e.logger.Warn("frame timestamp past end of video, skipping",
				zap.Int("index", index),
				zap.Float64("time", t),
				zap.Float64("duration", duration),
			)
			metrics.FramesSkippedTotal.WithLabelValues("past_end").Inc()
			continue
		}
		if t < 0 {
			t = 0
		}

		img, err := e.captureAt(ctx, t)
		if err != nil {
			reason := "capture_error"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "seek_timeout"
			}
			e.logger.Warn("frame capture failed, skipping",
				zap.Int("index", index),
				zap.Float64("time", t),
				zap.String("reason", reason),
				zap.Error(err),
			)
			metrics.FramesSkippedTotal.WithLabelValues(reason).Inc()
			continue
		}

		frames = append(frames, port.ExtractedFrame{Index: index, Image: img})
		metrics.FramesExtractedTotal.Inc()
	}

	return frames, nil
}

// captureAt seeks to the timestamp and decodes the displayed picture as one
// PNG read from ffmpeg's stdout.
func (e *Extractor) captureAt(ctx context.Context, t float64) (image.Image, error) {
	seekCtx, cancel := context.WithTimeout(ctx, e.seekTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(seekCtx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.6f", t),
		"-i", e.handle.Path(),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := seekCtx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ffmpeg seek: %w, stderr: %s", err, stderr.String())
	}

	img, err := png.Decode(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("decode captured frame: %w", err)
	}
	return img, nil
}
