// Package rate reconciles the frame rate the tracking model actually sampled
// against the source video's true playback rate. The model sub-samples long
// or high-rate sources, so the sparse sampled rate cannot be used directly to
// pace the reconstructed video.
package rate

import "math"

// DefaultSampledRate is assumed when the source duration is unknown.
const DefaultSampledRate = 30

// Estimate holds both rates in frames per second. SampledRate converts model
// frame indices to source timestamps; SourceRate paces the reconstructed
// output.
type Estimate struct {
	SampledRate int
	SourceRate  int
}

// Reconcile derives both rates from the source duration (seconds), the
// highest frame index the model returned, and the frame rate probed from the
// container metadata (0 when unavailable).
//
// The sampled rate is (maxIndex+1)/duration rounded, floored at 1. When the
// container reports a real frame rate that is used as the source rate
// directly; otherwise the source rate falls back to a multiplier table that
// approximates how aggressively the model sub-sampled: x5 up to 10 fps, x2 up
// to 15 fps, x1 above.
func Reconcile(duration float64, maxIndex int, probedFPS float64) Estimate {
	sampled := DefaultSampledRate
	if duration > 0 && !math.IsInf(duration, 0) && !math.IsNaN(duration) {
		sampled = int(math.Round(float64(maxIndex+1) / duration))
		if sampled < 1 {
			sampled = 1
		}
	}

	source := sampled * multiplier(sampled)
	if probedFPS > 0 && !math.IsInf(probedFPS, 0) && !math.IsNaN(probedFPS) {
		source = int(math.Round(probedFPS))
		if source < 1 {
			source = 1
		}
	}

	return Estimate{SampledRate: sampled, SourceRate: source}
}

func multiplier(sampled int) int {
	switch {
	case sampled <= 10:
		return 5
	case sampled <= 15:
		return 2
	default:
		return 1
	}
}
