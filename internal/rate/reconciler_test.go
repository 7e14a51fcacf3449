package rate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiplierBoundaries(t *testing.T) {
	tests := []struct {
		sampled    int
		wantSource int
	}{
		{10, 50},
		{11, 22},
		{15, 30},
		{16, 16},
	}
	for _, tt := range tests {
		// duration 1s and maxIndex sampled-1 yields exactly tt.sampled.
		est := Reconcile(1.0, tt.sampled-1, 0)
		assert.Equal(t, tt.sampled, est.SampledRate)
		assert.Equal(t, tt.wantSource, est.SourceRate, "sampled=%d", tt.sampled)
	}
}

func TestReconcileUnknownDuration(t *testing.T) {
	for _, d := range []float64{0, -1, math.Inf(1), math.NaN()} {
		est := Reconcile(d, 100, 0)
		assert.Equal(t, DefaultSampledRate, est.SampledRate)
	}
}

func TestReconcileMinimumRate(t *testing.T) {
	// Two frames over a minute rounds to zero; floor to 1 fps.
	est := Reconcile(60.0, 1, 0)
	assert.Equal(t, 1, est.SampledRate)
	assert.Equal(t, 5, est.SourceRate)
}

func TestReconcilePrefersProbedFPS(t *testing.T) {
	// Container metadata wins over the multiplier heuristic.
	est := Reconcile(1.0, 10, 23.976)
	assert.Equal(t, 11, est.SampledRate)
	assert.Equal(t, 24, est.SourceRate)
}

func TestReconcileSparseIndices(t *testing.T) {
	// Scenario from the render pipeline: model returned indices 0,5,10
	// over a 1s source.
	est := Reconcile(1.0, 10, 0)
	assert.Equal(t, 11, est.SampledRate)
	assert.Equal(t, 22, est.SourceRate)
}
