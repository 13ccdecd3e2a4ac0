// Package colors derives deterministic display colors for category codes.
//
// The mapping is a pure function of the code string: the same code yields the
// same color within a run, across runs, and regardless of the order features
// arrive from the remote service. No state is kept between calls.
package colors

import (
	"crypto/md5"
	"fmt"
	"image/color"
)

// FromCode returns the fill color assigned to a category code.
//
// The first three bytes of an MD5 digest of the code are lifted into the
// pastel range [128, 255] so neighbouring categories stay readable when
// overlaid on imagery. Alpha is always fully opaque; transparency is the
// rasterizer's concern.
func FromCode(code string) color.NRGBA {
	sum := md5.Sum([]byte(code))
	return color.NRGBA{
		R: pastel(sum[0]),
		G: pastel(sum[1]),
		B: pastel(sum[2]),
		A: 255,
	}
}

// pastel maps a digest byte into [128, 255]. The truncating arithmetic is
// part of the color contract; changing it would recolor every category.
func pastel(v byte) uint8 {
	return uint8(128 + int(float64(v)/255.0*127.0))
}

// HexRGB formats c as "#rrggbb" for legend entries and JSON summaries.
func HexRGB(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
