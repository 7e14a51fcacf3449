// Package rle decodes the run-length encoded binary masks returned by the
// tracking model. A mask is a sequence of run lengths over a row-major pixel
// grid, alternating background/foreground and starting with background.
package rle

import (
	"fmt"

	"go.uber.org/zap"
)

// Mask is one object's encoded mask for one frame, as received from the
// model. Size is (height, width). Well-formed masks satisfy
// sum(Counts) == height*width.
type Mask struct {
	Size   [2]int `json:"size"`
	Counts []int  `json:"counts"`
}

// Height returns the mask's pixel height.
func (m Mask) Height() int { return m.Size[0] }

// Width returns the mask's pixel width.
func (m Mask) Width() int { return m.Size[1] }

// Validate checks the structural invariants of a received mask.
func (m Mask) Validate() error {
	h, w := m.Height(), m.Width()
	if h <= 0 || w <= 0 {
		return fmt.Errorf("invalid mask size %dx%d", h, w)
	}
	total := 0
	for i, c := range m.Counts {
		if c < 0 {
			return fmt.Errorf("negative run length %d at position %d", c, i)
		}
		total += c
	}
	if total != h*w {
		return fmt.Errorf("run lengths sum to %d, want %d (%dx%d)", total, h*w, h, w)
	}
	return nil
}

// Bitmap is a decoded dense per-pixel membership map, row-major.
type Bitmap struct {
	Width  int
	Height int
	Pixels []bool
}

// Set reports whether the pixel at (x, y) belongs to the object.
func (b *Bitmap) Set(x, y int) bool {
	return b.Pixels[y*b.Width+x]
}

// Decode expands a mask into a dense bitmap at the mask's native resolution.
// Decoding is best-effort: a mask whose runs overflow the grid is clipped
// and logged, never rejected. An empty counts list yields an all-background
// bitmap.
func Decode(m Mask, log *zap.Logger) *Bitmap {
	h, w := m.Height(), m.Width()
	if h < 0 {
		h = 0
	}
	if w < 0 {
		w = 0
	}
	out := &Bitmap{Width: w, Height: h, Pixels: make([]bool, w*h)}

	total := len(out.Pixels)
	p := 0
	foreground := false
	for _, count := range m.Counts {
		if foreground {
			end := p + count
			if end > total {
				end = total
			}
			for i := p; i < end; i++ {
				out.Pixels[i] = true
			}
		}
		p += count
		foreground = !foreground
	}
	if p != total && log != nil {
		log.Warn("mask run lengths disagree with declared size, decoded best-effort",
			zap.Int("runs_total", p),
			zap.Int("grid_total", total),
		)
	}
	return out
}

// Encode is Decode's inverse: it re-encodes a bitmap into alternating
// background-first run lengths. sum of the result's Counts always equals
// Width*Height.
func Encode(b *Bitmap) Mask {
	m := Mask{Size: [2]int{b.Height, b.Width}}
	if len(b.Pixels) == 0 {
		return m
	}

	current := false
	run := 0
	for _, px := range b.Pixels {
		if px == current {
			run++
			continue
		}
		m.Counts = append(m.Counts, run)
		current = px
		run = 1
	}
	m.Counts = append(m.Counts, run)
	return m
}
