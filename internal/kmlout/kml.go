// Package kmlout renders clipped features as styled KML documents and
// packages them into KMZ archives.
package kmlout

import (
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-kml/v2"

	"github.com/paddockmaps/landtypes/internal/colors"
	"github.com/paddockmaps/landtypes/internal/geometry"
)

const (
	fillAlpha    = 160
	outlineWidth = 1.2
)

// PointPlacemark is a point of interest rendered as a KML point placemark.
type PointPlacemark struct {
	Name        string
	Description string
	Lon         float64
	Lat         float64
}

// Folder groups features for one logical layer or lot. Folders nest.
type Folder struct {
	Name     string
	Features []geometry.ClippedFeature
	Points   []PointPlacemark
	Sub      []Folder
}

// WriteKML writes a KML document containing the given folders. Each
// distinct feature code gets one shared style, referenced by every
// placemark carrying that code, so identical categories across lots
// render identically.
func WriteKML(w io.Writer, docName string, folders []Folder) error {
	children := []kml.Element{kml.Name(docName)}

	for _, code := range collectCodes(folders) {
		c := colors.FromCode(code)
		children = append(children, kml.SharedStyle(
			styleID(code),
			kml.LineStyle(
				kml.Color(color.NRGBA{R: 0, G: 0, B: 0, A: 255}),
				kml.Width(outlineWidth),
			),
			kml.PolyStyle(
				kml.Color(color.NRGBA{R: c.R, G: c.G, B: c.B, A: fillAlpha}),
			),
		))
	}

	for _, f := range folders {
		children = append(children, folderElement(f))
	}

	doc := kml.KML(kml.Document(children...))
	return doc.WriteIndent(w, "", "  ")
}

func folderElement(f Folder) kml.Element {
	children := []kml.Element{kml.Name(f.Name)}
	for _, feat := range f.Features {
		children = append(children, placemark(feat))
	}
	for _, p := range f.Points {
		pm := []kml.Element{
			kml.Name(p.Name),
			kml.Point(kml.Coordinates(kml.Coordinate{Lon: p.Lon, Lat: p.Lat})),
		}
		if p.Description != "" {
			pm = append(pm, kml.Description(p.Description))
		}
		children = append(children, kml.Placemark(pm...))
	}
	for _, sub := range f.Sub {
		children = append(children, folderElement(sub))
	}
	return kml.Folder(children...)
}

func placemark(feat geometry.ClippedFeature) kml.Element {
	polys := make([]kml.Element, 0, len(feat.Geom))
	for _, poly := range feat.Geom {
		if len(poly) == 0 {
			continue
		}
		rings := []kml.Element{
			kml.OuterBoundaryIs(linearRing(poly[0])),
		}
		for _, hole := range poly[1:] {
			rings = append(rings, kml.InnerBoundaryIs(linearRing(hole)))
		}
		polys = append(polys, kml.Polygon(rings...))
	}

	var geom kml.Element
	if len(polys) == 1 {
		geom = polys[0]
	} else {
		geom = kml.MultiGeometry(polys...)
	}

	return kml.Placemark(
		kml.Name(feat.Name),
		kml.Description(fmt.Sprintf("Code: %s<br/>Area: %.2f ha", feat.Code, feat.AreaHa)),
		kml.StyleURL("#"+styleID(feat.Code)),
		geom,
	)
}

func linearRing(ring orb.Ring) kml.Element {
	coords := make([]kml.Coordinate, len(ring))
	for i, pt := range ring {
		coords[i] = kml.Coordinate{Lon: pt[0], Lat: pt[1]}
	}
	return kml.LinearRing(kml.Coordinates(coords...))
}

// collectCodes returns distinct feature codes across all folders in
// first-seen order.
func collectCodes(folders []Folder) []string {
	seen := make(map[string]bool)
	var codes []string
	var walk func([]Folder)
	walk = func(fs []Folder) {
		for _, f := range fs {
			for _, feat := range f.Features {
				if !seen[feat.Code] {
					seen[feat.Code] = true
					codes = append(codes, feat.Code)
				}
			}
			walk(f.Sub)
		}
	}
	walk(folders)
	return codes
}

// styleID derives a KML style id from a feature code. Codes may carry
// characters that are awkward in URL fragments, so anything outside
// [A-Za-z0-9_-] becomes an underscore.
func styleID(code string) string {
	var b strings.Builder
	b.WriteString("s_")
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
