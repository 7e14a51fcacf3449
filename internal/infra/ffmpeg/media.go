package ffmpeg

import (
	"context"
	"image"
	"time"

	"github.com/reelmask/reelmask-render-service/internal/domain/port"
	"go.uber.org/zap"
)

// Media is the ffmpeg-backed implementation of port.Media. Open probes the
// container and hands back a source whose extractor, assembler and trimmer
// all share the video's single seek cursor.
type Media struct {
	seekTimeout time.Duration
	trimFPS     int
	tempDir     string
	logger      *zap.Logger
}

func NewMedia(seekTimeout time.Duration, trimFPS int, tempDir string, logger *zap.Logger) *Media {
	return &Media{
		seekTimeout: seekTimeout,
		trimFPS:     trimFPS,
		tempDir:     tempDir,
		logger:      logger,
	}
}

func (m *Media) Open(ctx context.Context, path string) (port.MediaSource, error) {
	meta, err := Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	handle := NewHandle(path, meta)
	assembler := NewAssembler(m.tempDir, m.logger)
	return &Source{
		handle:    handle,
		extractor: NewExtractor(handle, m.seekTimeout, m.logger),
		assembler: assembler,
		trimmer:   NewTrimmer(handle, assembler, m.trimFPS, m.logger),
	}, nil
}

// Source is one opened video.
type Source struct {
	handle    *Handle
	extractor *Extractor
	assembler *Assembler
	trimmer   *Trimmer
}

func (s *Source) Meta() port.MediaMeta {
	meta := s.handle.Meta()
	return port.MediaMeta{
		Duration: meta.Duration,
		Width:    meta.Width,
		Height:   meta.Height,
		FPS:      meta.FPS,
	}
}

func (s *Source) ExtractFrames(ctx context.Context, indices []int, sampledRate int) ([]port.ExtractedFrame, error) {
	return s.extractor.ExtractFrames(ctx, indices, sampledRate)
}

func (s *Source) Assemble(ctx context.Context, frames []image.Image, fps int) (*port.EncodedVideo, error) {
	return s.assembler.Assemble(ctx, frames, fps)
}

func (s *Source) Trim(ctx context.Context, start, end float64, progress func(float64)) (*port.EncodedVideo, error) {
	return s.trimmer.Trim(ctx, start, end, progress)
}
