package port

import (
	"context"
	"image"
)

// ExtractedFrame is one raster captured from the source video at a model
// frame index.
type ExtractedFrame struct {
	Index int
	Image image.Image
}

// EncodedVideo is an assembled video byte stream plus its declared container
// and pacing rate.
type EncodedVideo struct {
	Data        []byte
	ContentType string
	Extension   string
	FPS         int
}

// MediaMeta is the container metadata a pipeline run needs.
type MediaMeta struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
}

// Media opens downloaded source videos for processing.
type Media interface {
	Open(ctx context.Context, path string) (MediaSource, error)
}

// MediaSource is one opened source video: its metadata plus the three
// operations the pipelines drive. Implementations own the video's single
// seek cursor; extraction and trimming are mutually exclusive on it.
//
// ExtractFrames seeks to each requested index and captures a still image.
// Indices must be ascending and distinct; indices that time out or fall past
// the end of the video are absent from the result, not errors. Assemble is
// all-or-nothing: any draw or encode failure aborts with a single error and
// no partial output. Trim re-encodes the span between start and end seconds,
// reporting fractional progress in [0,1] as decoding advances.
type MediaSource interface {
	Meta() MediaMeta
	ExtractFrames(ctx context.Context, indices []int, sampledRate int) ([]ExtractedFrame, error)
	Assemble(ctx context.Context, frames []image.Image, fps int) (*EncodedVideo, error)
	Trim(ctx context.Context, start, end float64, progress func(float64)) (*EncodedVideo, error)
}

// OverlayRegistry receives finished overlay sequences for the live viewing
// phase.
type OverlayRegistry interface {
	RegisterOverlays(jobID string, frameCount int, duration float64, overlayPrefix string)
}
