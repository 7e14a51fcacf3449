// Package overlay bakes decoded object masks onto extracted video frames.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/reelmask/reelmask-render-service/internal/domain/entity"
	"github.com/reelmask/reelmask-render-service/internal/rle"
	"go.uber.org/zap"
)

// DefaultAlpha is the overlay opacity applied unless configured otherwise.
const DefaultAlpha = 0.7

// Compositor blends colored masks over frames. Masks are decoded at their
// native resolution, upscaled with nearest-neighbor resampling when they
// disagree with the frame size (a hard mask edge must stay hard), then
// alpha-blended in list order so overlapping masks show the last object's
// color.
type Compositor struct {
	alpha   float64
	palette []color.NRGBA
	logger  *zap.Logger
}

func NewCompositor(alpha float64, palette []color.NRGBA, logger *zap.Logger) *Compositor {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &Compositor{alpha: alpha, palette: palette, logger: logger}
}

// Composite returns the frame with the packet's masks baked in. A packet
// with no masks returns the input image untouched. A single bad mask is
// logged and skipped; the frame is always emitted.
func (c *Compositor) Composite(frame image.Image, pkt *entity.FramePacket) image.Image {
	if pkt == nil || len(pkt.Masks) == 0 {
		return frame
	}

	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, frame, bounds.Min, draw.Src)

	for i, mask := range pkt.Masks {
		if i >= len(pkt.ObjectIDs) {
			c.logger.Warn("skipping mask without an object id",
				zap.Int("frame_index", pkt.FrameIndex),
				zap.Int("mask", i),
			)
			continue
		}
		if err := mask.Validate(); err != nil {
			c.logger.Warn("skipping malformed mask",
				zap.Int("frame_index", pkt.FrameIndex),
				zap.Int("mask", i),
				zap.Error(err),
			)
			continue
		}
		tint := ColorFor(c.palette, pkt.ObjectIDs[i])
		c.blendMask(dst, mask, tint, pkt.FrameIndex)
	}
	return dst
}

func (c *Compositor) blendMask(dst *image.RGBA, mask rle.Mask, tint color.NRGBA, frameIndex int) {
	bitmap := rle.Decode(mask, c.logger)

	layer := c.colorize(bitmap, tint)

	w := dst.Bounds().Dx()
	h := dst.Bounds().Dy()
	if bitmap.Width != w || bitmap.Height != h {
		c.logger.Debug("mask resolution differs from frame, upscaling",
			zap.Int("frame_index", frameIndex),
			zap.Int("mask_w", bitmap.Width), zap.Int("mask_h", bitmap.Height),
			zap.Int("frame_w", w), zap.Int("frame_h", h),
		)
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), layer, layer.Bounds(), xdraw.Over, nil)
		draw.Draw(dst, dst.Bounds(), scaled, image.Point{}, draw.Over)
		return
	}
	draw.Draw(dst, dst.Bounds(), layer, image.Point{}, draw.Over)
}

// colorize turns a decoded bitmap into a translucent single-color layer at
// the mask's native resolution. Unset pixels stay fully transparent.
func (c *Compositor) colorize(bitmap *rle.Bitmap, tint color.NRGBA) *image.RGBA {
	a := uint8(c.alpha*255 + 0.5)
	// image.RGBA is alpha-premultiplied.
	pr := uint8((uint32(tint.R)*uint32(a) + 127) / 255)
	pg := uint8((uint32(tint.G)*uint32(a) + 127) / 255)
	pb := uint8((uint32(tint.B)*uint32(a) + 127) / 255)

	layer := image.NewRGBA(image.Rect(0, 0, bitmap.Width, bitmap.Height))
	for i, set := range bitmap.Pixels {
		if !set {
			continue
		}
		off := i * 4
		layer.Pix[off] = pr
		layer.Pix[off+1] = pg
		layer.Pix[off+2] = pb
		layer.Pix[off+3] = a
	}
	return layer
}
