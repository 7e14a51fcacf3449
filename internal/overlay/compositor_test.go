package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/rle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func grayFrame(w, h int) *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(frame.Pix); i += 4 {
		frame.Pix[i] = 0x80
		frame.Pix[i+1] = 0x80
		frame.Pix[i+2] = 0x80
		frame.Pix[i+3] = 0xFF
	}
	return frame
}

func TestCompositeEmptyMaskListReturnsFrameUnchanged(t *testing.T) {
	c := NewCompositor(DefaultAlpha, nil, zap.NewNop())
	frame := grayFrame(4, 4)

	out := c.Composite(frame, &entity.FramePacket{FrameIndex: 0})
	assert.Same(t, image.Image(frame), out)

	out = c.Composite(frame, nil)
	assert.Same(t, image.Image(frame), out)
}

func TestCompositeDoesNotMutateInput(t *testing.T) {
	c := NewCompositor(DefaultAlpha, nil, zap.NewNop())
	frame := grayFrame(2, 2)
	before := make([]uint8, len(frame.Pix))
	copy(before, frame.Pix)

	pkt := &entity.FramePacket{
		FrameIndex: 0,
		Masks:      []rle.Mask{{Size: [2]int{2, 2}, Counts: []int{0, 4}}},
		ObjectIDs:  []int{0},
	}
	out := c.Composite(frame, pkt)
	assert.NotSame(t, image.Image(frame), out)
	assert.Equal(t, before, frame.Pix, "input frame must stay untouched")
}

func TestCompositeBlendsMaskedPixelsOnly(t *testing.T) {
	c := NewCompositor(DefaultAlpha, nil, zap.NewNop())
	frame := grayFrame(2, 2)

	// Foreground on the second row only.
	pkt := &entity.FramePacket{
		FrameIndex: 0,
		Masks:      []rle.Mask{{Size: [2]int{2, 2}, Counts: []int{2, 2}}},
		ObjectIDs:  []int{0},
	}
	out := c.Composite(frame, pkt).(*image.RGBA)

	top := out.RGBAAt(0, 0)
	bottom := out.RGBAAt(0, 1)
	assert.Equal(t, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}, top,
		"background pixel must keep the original color")
	assert.NotEqual(t, top, bottom, "masked pixel must be tinted")
	// At alpha 0.7 over gray, the blue channel of palette color 0 dominates.
	assert.Greater(t, bottom.B, bottom.R)
}

func TestCompositeUpscalesLowResMask(t *testing.T) {
	c := NewCompositor(DefaultAlpha, nil, zap.NewNop())
	frame := grayFrame(4, 4)

	// 2x2 mask with only the bottom-right quadrant set; nearest-neighbor
	// upscale must tint exactly the frame's bottom-right 2x2 block.
	pkt := &entity.FramePacket{
		FrameIndex: 0,
		Masks:      []rle.Mask{{Size: [2]int{2, 2}, Counts: []int{3, 1}}},
		ObjectIDs:  []int{0},
	}
	out := c.Composite(frame, pkt).(*image.RGBA)

	gray := color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	assert.Equal(t, gray, out.RGBAAt(0, 0))
	assert.Equal(t, gray, out.RGBAAt(3, 1))
	assert.Equal(t, gray, out.RGBAAt(1, 3))
	assert.NotEqual(t, gray, out.RGBAAt(2, 2))
	assert.NotEqual(t, gray, out.RGBAAt(3, 3))
}

func TestCompositeLaterMaskWinsOverlap(t *testing.T) {
	c := NewCompositor(1.0, nil, zap.NewNop())
	frame := grayFrame(2, 1)

	full := rle.Mask{Size: [2]int{1, 2}, Counts: []int{0, 2}}
	pkt := &entity.FramePacket{
		FrameIndex: 0,
		Masks:      []rle.Mask{full, full},
		ObjectIDs:  []int{0, 1},
	}
	out := c.Composite(frame, pkt).(*image.RGBA)

	want := ColorFor(nil, 1)
	got := out.RGBAAt(0, 0)
	assert.Equal(t, want.R, got.R)
	assert.Equal(t, want.G, got.G)
	assert.Equal(t, want.B, got.B)
}

func TestCompositeSkipsMalformedMask(t *testing.T) {
	c := NewCompositor(DefaultAlpha, nil, zap.NewNop())
	frame := grayFrame(2, 2)

	good := rle.Mask{Size: [2]int{2, 2}, Counts: []int{0, 4}}
	bad := rle.Mask{Size: [2]int{2, 2}, Counts: []int{1, 1}} // sum != 4
	pkt := &entity.FramePacket{
		FrameIndex: 3,
		Masks:      []rle.Mask{bad, good},
		ObjectIDs:  []int{0, 1},
	}

	out := c.Composite(frame, pkt).(*image.RGBA)
	require.NotNil(t, out)
	// The good mask still lands.
	assert.NotEqual(t, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}, out.RGBAAt(0, 0))
}

func TestCompositeSkipsMaskWithoutObjectID(t *testing.T) {
	c := NewCompositor(DefaultAlpha, nil, zap.NewNop())
	frame := grayFrame(2, 2)

	full := rle.Mask{Size: [2]int{2, 2}, Counts: []int{0, 4}}
	pkt := &entity.FramePacket{
		FrameIndex: 0,
		Masks:      []rle.Mask{full, full},
		ObjectIDs:  []int{0}, // second mask has no paired id
	}

	out := c.Composite(frame, pkt).(*image.RGBA)
	require.NotNil(t, out)
	// The paired mask still lands.
	assert.NotEqual(t, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}, out.RGBAAt(0, 0))
}

func TestColorForWraps(t *testing.T) {
	assert.Equal(t, DefaultPalette[0], ColorFor(nil, 0))
	assert.Equal(t, DefaultPalette[0], ColorFor(nil, len(DefaultPalette)))
	assert.Equal(t, DefaultPalette[3], ColorFor(nil, 13))
}
