package overlay

import "image/color"

// DefaultPalette is the fixed set of overlay colors. Object ids map onto it
// by id mod len(palette), so the same object keeps the same color across
// frames.
var DefaultPalette = []color.NRGBA{
	{R: 0x26, G: 0x8C, B: 0xFF, A: 0xFF}, // blue
	{R: 0xFF, G: 0x5A, B: 0x36, A: 0xFF}, // red-orange
	{R: 0x2E, G: 0xCC, B: 0x71, A: 0xFF}, // green
	{R: 0xF3, G: 0xC6, B: 0x23, A: 0xFF}, // yellow
	{R: 0x9B, G: 0x59, B: 0xB6, A: 0xFF}, // purple
	{R: 0x1A, G: 0xBC, B: 0x9C, A: 0xFF}, // teal
	{R: 0xFF, G: 0x7A, B: 0xC4, A: 0xFF}, // pink
	{R: 0xE6, G: 0x73, B: 0x22, A: 0xFF}, // orange
	{R: 0x34, G: 0x98, B: 0xDB, A: 0xFF}, // light blue
	{R: 0xC0, G: 0x39, B: 0x2B, A: 0xFF}, // dark red
}

// ColorFor picks the palette color for an object id.
func ColorFor(palette []color.NRGBA, objectID int) color.NRGBA {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	idx := objectID % len(palette)
	if idx < 0 {
		idx += len(palette)
	}
	return palette[idx]
}
