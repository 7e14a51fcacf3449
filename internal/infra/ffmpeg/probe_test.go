package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25/1", 25},
		{"30000/1001", 29.97002997002997},
		{"30", 30},
		{"0/0", 0},
		{"garbage", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseRate(tt.in), 1e-9, "parseRate(%q)", tt.in)
	}
}
