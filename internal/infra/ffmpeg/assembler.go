package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"go.uber.org/zap"
)

// codecProfile is one encoder choice plus the container it implies.
type codecProfile struct {
	encoder     string // ffmpeg encoder name; empty picks the container default
	ext         string
	contentType string
	args        []string
}

// Preference order: a modern efficient codec first, a generic widely decoded
// one second, the runtime default last.
var codecPreference = []codecProfile{
	{
		encoder:     "libvpx-vp9",
		ext:         "webm",
		contentType: "video/webm",
		args:        []string{"-c:v", "libvpx-vp9", "-b:v", "1M", "-pix_fmt", "yuv420p"},
	},
	{
		encoder:     "libx264",
		ext:         "mp4",
		contentType: "video/mp4",
		args:        []string{"-c:v", "libx264", "-pix_fmt", "yuv420p", "-movflags", "+faststart"},
	},
}

var fallbackProfile = codecProfile{
	ext:         "mp4",
	contentType: "video/mp4",
	args:        []string{"-pix_fmt", "yuv420p"},
}

// Assembler re-encodes raster frames into a playable video: it feeds raw
// RGBA frames to an ffmpeg child at the target input rate, so N frames at
// rate R come out as an N/R second clip. Assembly is all-or-nothing; any
// write or encode failure aborts with a single error.
type Assembler struct {
	tempDir string
	logger  *zap.Logger

	codecOnce sync.Once
	codec     codecProfile
}

func NewAssembler(tempDir string, logger *zap.Logger) *Assembler {
	return &Assembler{tempDir: tempDir, logger: logger}
}

// Assemble encodes an ordered sequence of equally sized images at the target
// pacing rate.
func (a *Assembler) Assemble(ctx context.Context, frames []image.Image, fps int) (*port.EncodedVideo, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to assemble")
	}

	bounds := frames[0].Bounds()
	session, err := a.Begin(ctx, bounds.Dx(), bounds.Dy(), fps)
	if err != nil {
		return nil, err
	}

	for i, frame := range frames {
		if err := session.WriteFrame(frame); err != nil {
			session.Abort()
			return nil, fmt.Errorf("encode frame %d: %w", i, err)
		}
	}
	return session.Close()
}

// Begin opens a streaming encode session. The caller must finish it with
// Close or Abort.
func (a *Assembler) Begin(ctx context.Context, width, height, fps int) (*Session, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if fps < 1 {
		return nil, fmt.Errorf("invalid pacing rate %d", fps)
	}

	codec := a.selectCodec(ctx)
	outPath := filepath.Join(a.tempDir, fmt.Sprintf("assemble_%s.%s", uuid.NewString(), codec.ext))

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", "-",
		// yuv420p needs even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
	}
	args = append(args, codec.args...)
	args = append(args, "-r", fmt.Sprintf("%d", fps), "-y", outPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	a.logger.Debug("encode session opened",
		zap.String("codec", codec.encoder),
		zap.Int("width", width), zap.Int("height", height), zap.Int("fps", fps),
	)

	return &Session{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  &stderr,
		outPath: outPath,
		width:   width,
		height:  height,
		fps:     fps,
		codec:   codec,
	}, nil
}

// selectCodec probes the installed encoders once and picks the first
// preferred one that is available.
func (a *Assembler) selectCodec(ctx context.Context) codecProfile {
	a.codecOnce.Do(func() {
		a.codec = fallbackProfile
		out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").Output()
		if err != nil {
			a.logger.Warn("could not list encoders, using container default", zap.Error(err))
			return
		}
		listing := string(out)
		for _, profile := range codecPreference {
			if strings.Contains(listing, " "+profile.encoder+" ") {
				a.codec = profile
				return
			}
		}
		a.logger.Warn("no preferred encoder available, using container default")
	})
	return a.codec
}

// Session is one in-flight encode. Frames go in via WriteFrame (raster) or
// WriteRaw (pre-packed RGBA, used by the trim pipeline which feeds the
// encoder straight from live decode).
type Session struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	outPath string
	width   int
	height  int
	fps     int
	codec   codecProfile
	frames  int

	buf []byte
}

// WriteFrame draws one image into the encoder stream. The image must match
// the session's frame size.
func (s *Session) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("frame size %dx%d does not match session %dx%d",
			b.Dx(), b.Dy(), s.width, s.height)
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == s.width*4 && b.Min == (image.Point{}) {
		return s.WriteRaw(rgba.Pix)
	}

	if s.buf == nil {
		s.buf = make([]byte, s.width*s.height*4)
	}
	tmp := &image.RGBA{Pix: s.buf, Stride: s.width * 4, Rect: image.Rect(0, 0, s.width, s.height)}
	draw.Draw(tmp, tmp.Rect, img, b.Min, draw.Src)
	return s.WriteRaw(s.buf)
}

// WriteRaw writes one frame of packed RGBA bytes.
func (s *Session) WriteRaw(pix []byte) error {
	if len(pix) != s.width*s.height*4 {
		return fmt.Errorf("raw frame is %d bytes, want %d", len(pix), s.width*s.height*4)
	}
	if _, err := s.stdin.Write(pix); err != nil {
		return fmt.Errorf("write to encoder: %w (stderr: %s)", err, s.stderr.String())
	}
	s.frames++
	return nil
}

// FrameCount reports how many frames have been written so far.
func (s *Session) FrameCount() int { return s.frames }

// Close stops the encoder, waits for it to flush, and returns the finished
// video.
func (s *Session) Close() (*port.EncodedVideo, error) {
	defer os.Remove(s.outPath)

	if err := s.stdin.Close(); err != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
		return nil, fmt.Errorf("close encoder stdin: %w", err)
	}
	if err := s.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("encoder failed: %w, stderr: %s", err, s.stderr.String())
	}
	if s.frames == 0 {
		return nil, fmt.Errorf("no frames were encoded")
	}

	data, err := os.ReadFile(s.outPath)
	if err != nil {
		return nil, fmt.Errorf("read encoded output: %w", err)
	}

	return &port.EncodedVideo{
		Data:        data,
		ContentType: s.codec.contentType,
		Extension:   s.codec.ext,
		FPS:         s.fps,
	}, nil
}

// Abort tears the session down without collecting output.
func (s *Session) Abort() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	os.Remove(s.outPath)
}
