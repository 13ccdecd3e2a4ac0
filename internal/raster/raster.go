// Package raster burns clipped, colored polygons into a georeferenced RGBA
// image.
//
// Coverage follows the pixel-center rule: a pixel is painted when its center
// falls inside the polygon (even-odd). Features are burned in the order they
// are given and later features overwrite earlier ones where they overlap.
// Last write wins is the documented tie-break for overlapping categories,
// so callers must hand features over in a stable order. Pixels no feature
// covers stay fully transparent.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/paddockmaps/landtypes/internal/colors"
	"github.com/paddockmaps/landtypes/internal/geometry"
)

// Transform is the north-up affine mapping between pixel and geographic
// space: the geographic coordinates of pixel (col, row)'s center are
//
//	x = OriginX + (col+0.5)*PixelW
//	y = OriginY - (row+0.5)*PixelH
//
// OriginX/OriginY are the west and north edges of the bounding box.
type Transform struct {
	OriginX float64
	OriginY float64
	PixelW  float64
	PixelH  float64
}

// PixelCenter returns the geographic coordinates of a pixel's center.
func (t Transform) PixelCenter(col, row int) (x, y float64) {
	return t.OriginX + (float64(col)+0.5)*t.PixelW,
		t.OriginY - (float64(row)+0.5)*t.PixelH
}

// ChooseSize computes output dimensions preserving the bound's aspect ratio,
// with the larger dimension equal to maxPx and a floor of one pixel.
func ChooseSize(b orb.Bound, maxPx int) (width, height int) {
	w := math.Max(b.Max[0]-b.Min[0], 1e-9)
	h := math.Max(b.Max[1]-b.Min[1], 1e-9)
	if w >= h {
		width = maxPx
		height = int(math.Round(float64(maxPx) * h / w))
	} else {
		height = maxPx
		width = int(math.Round(float64(maxPx) * w / h))
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// FromBound builds the affine transform registering a width x height grid to
// a geographic bound.
func FromBound(b orb.Bound, width, height int) Transform {
	return Transform{
		OriginX: b.Min[0],
		OriginY: b.Max[1],
		PixelW:  (b.Max[0] - b.Min[0]) / float64(width),
		PixelH:  (b.Max[1] - b.Min[1]) / float64(height),
	}
}

// Burn rasterizes features into an RGBA image registered to bound, with the
// larger dimension capped at maxPx. An empty feature list is a reportable
// no-data condition, never a silently blank image.
func Burn(features []geometry.ClippedFeature, bound orb.Bound, maxPx int) (*image.NRGBA, Transform, error) {
	if len(features) == 0 {
		return nil, Transform{}, fmt.Errorf("no features to rasterize")
	}
	width, height := ChooseSize(bound, maxPx)
	t := FromBound(bound, width, height)

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, f := range features {
		c := colors.FromCode(f.Code)
		for _, poly := range f.Geom {
			fillPolygon(img, t, poly, c)
		}
	}
	return img, t, nil
}

// fillPolygon paints every pixel whose center lies inside poly. Crossings
// are gathered across all rings of the polygon, so holes are left unpainted
// by the even-odd pairing.
func fillPolygon(img *image.NRGBA, t Transform, poly orb.Polygon, c color.NRGBA) {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	b := poly.Bound()

	rowFirst := int(math.Floor((t.OriginY - b.Max[1]) / t.PixelH))
	rowLast := int(math.Ceil((t.OriginY-b.Min[1])/t.PixelH)) - 1
	if rowFirst < 0 {
		rowFirst = 0
	}
	if rowLast > height-1 {
		rowLast = height - 1
	}

	var xs []float64
	for row := rowFirst; row <= rowLast; row++ {
		_, yc := t.PixelCenter(0, row)
		xs = xs[:0]
		for _, ring := range poly {
			n := len(ring)
			if n < 3 {
				continue
			}
			for i := 0; i < n-1; i++ {
				p1, p2 := ring[i], ring[i+1]
				if (p1[1] > yc) != (p2[1] > yc) {
					x := p1[0] + (yc-p1[1])*(p2[0]-p1[0])/(p2[1]-p1[1])
					xs = append(xs, x)
				}
			}
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			// Pixel centers in [xs[i], xs[i+1]).
			first := int(math.Ceil((xs[i]-t.OriginX)/t.PixelW - 0.5))
			last := int(math.Ceil((xs[i+1]-t.OriginX)/t.PixelW-0.5)) - 1
			if first < 0 {
				first = 0
			}
			if last > width-1 {
				last = width - 1
			}
			for col := first; col <= last; col++ {
				img.SetNRGBA(col, row, c)
			}
		}
	}
}
