package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"go.uber.org/zap"
)

// DefaultTrimFPS is the capture rate for trimming.
const DefaultTrimFPS = 6

// Trimmer re-encodes the span of a source video between two timestamps. It
// plays the source through a decode child at the capture rate and feeds each
// decoded picture straight into an Assembler session, so trimming and still
// assembly share one encode mechanism.
type Trimmer struct {
	handle     *Handle
	assembler  *Assembler
	captureFPS int
	logger     *zap.Logger
}

func NewTrimmer(handle *Handle, assembler *Assembler, captureFPS int, logger *zap.Logger) *Trimmer {
	if captureFPS < 1 {
		captureFPS = DefaultTrimFPS
	}
	return &Trimmer{handle: handle, assembler: assembler, captureFPS: captureFPS, logger: logger}
}

// Trim captures playback between start and end seconds. progress, when
// non-nil, receives (currentTime-start)/(end-start) clamped to [0,1] as
// frames arrive. Any decode or encode failure aborts the whole trim.
func (t *Trimmer) Trim(ctx context.Context, start, end float64, progress func(float64)) (*port.EncodedVideo, error) {
	meta := t.handle.Meta()
	if meta.Duration > 0 && end > meta.Duration {
		end = meta.Duration
	}
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, fmt.Errorf("invalid trim window [%.3f, %.3f]", start, end)
	}

	if err := t.handle.Acquire("trim"); err != nil {
		return nil, err
	}
	defer t.handle.Release("trim")

	var stderr bytes.Buffer
	decode := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.6f", start),
		"-to", fmt.Sprintf("%.6f", end),
		"-i", t.handle.Path(),
		"-vf", fmt.Sprintf("fps=%d", t.captureFPS),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an",
		"-",
	)
	decode.Stderr = &stderr

	stdout, err := decode.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open decode stdout: %w", err)
	}
	if err := decode.Start(); err != nil {
		return nil, fmt.Errorf("start decode: %w", err)
	}
	defer func() {
		if decode.ProcessState == nil {
			decode.Process.Kill()
			decode.Wait()
		}
	}()

	session, err := t.assembler.Begin(ctx, meta.Width, meta.Height, t.captureFPS)
	if err != nil {
		return nil, err
	}

	window := end - start
	frameBytes := meta.Width * meta.Height * 4
	buf := make([]byte, frameBytes)
	for {
		_, err := io.ReadFull(stdout, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			session.Abort()
			return nil, fmt.Errorf("decode ended mid-frame, stderr: %s", stderr.String())
		}
		if err != nil {
			session.Abort()
			return nil, fmt.Errorf("read decoded frame: %w", err)
		}

		if err := session.WriteRaw(buf); err != nil {
			session.Abort()
			return nil, err
		}

		if progress != nil {
			current := start + float64(session.FrameCount())/float64(t.captureFPS)
			p := (current - start) / window
			if p < 0 {
				p = 0
			}
			if p > 1 {
				p = 1
			}
			progress(p)
		}
	}

	if err := decode.Wait(); err != nil {
		session.Abort()
		return nil, fmt.Errorf("decode failed: %w, stderr: %s", err, stderr.String())
	}

	video, err := session.Close()
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(1)
	}
	t.logger.Info("trim complete",
		zap.Float64("start", start),
		zap.Float64("end", end),
		zap.Int("frames", session.FrameCount()),
	)
	return video, nil
}
