package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is the container metadata the pipeline needs from a source video.
// FPS is 0 when the container does not report a usable frame rate.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
}

// Probe reads duration, dimensions and frame rate from the first video
// stream via ffprobe.
func Probe(ctx context.Context, videoPath string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe: %w", err)
	}

	meta := Metadata{}
	for _, line := range strings.Split(string(output), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "duration":
			meta.Duration, _ = strconv.ParseFloat(value, 64)
		case "width":
			meta.Width, _ = strconv.Atoi(value)
		case "height":
			meta.Height, _ = strconv.Atoi(value)
		case "r_frame_rate":
			meta.FPS = parseRate(value)
		}
	}

	if meta.Width <= 0 || meta.Height <= 0 {
		return meta, fmt.Errorf("source reports no video stream dimensions")
	}
	return meta, nil
}

// parseRate converts ffprobe's fractional rate ("30000/1001", "25/1") to
// frames per second. Returns 0 on anything unusable.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
