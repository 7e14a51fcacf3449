package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleExclusiveOwnership(t *testing.T) {
	h := NewHandle("/tmp/video.mp4", Metadata{Duration: 1})

	require.NoError(t, h.Acquire("extract"))
	assert.Error(t, h.Acquire("trim"), "second owner must be rejected, not blocked")

	h.Release("trim") // not the owner; must be a no-op
	assert.Error(t, h.Acquire("trim"))

	h.Release("extract")
	assert.NoError(t, h.Acquire("trim"))
	h.Release("trim")
}
