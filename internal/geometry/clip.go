// Package geometry performs the boundary-exact vector work of the export
// pipeline: building the parcel boundary, computing its web mercator
// envelope, and clipping category features to the boundary.
package geometry

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/paddockmaps/landtypes/internal/arcgis"
	"github.com/paddockmaps/landtypes/internal/logger"
	"github.com/paddockmaps/landtypes/internal/metrics"
)

// ClippedFeature is a category feature confined exactly to a parcel
// boundary. Geom never extends outside the boundary it was clipped against.
// Disjoint intersection pieces are kept as separate members of Geom.
type ClippedFeature struct {
	Geom    orb.MultiPolygon
	Code    string
	Name    string
	AreaHa  float64
	LotPlan string // source lot/plan, used for folder grouping in merged exports
	Layer   string // source layer name ("landtypes", "vegetation")
}

// UnionPolygons merges the polygonal features of a collection into a single
// multipolygon. Used to build a parcel boundary from its cadastre features.
func UnionPolygons(fc *geojson.FeatureCollection) (orb.MultiPolygon, error) {
	var geoms []polygol.Geom
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		mp, ok := asMultiPolygon(f.Geometry)
		if !ok || len(mp) == 0 {
			continue
		}
		geoms = append(geoms, toPolygol(mp))
	}
	if len(geoms) == 0 {
		return nil, nil
	}
	merged, err := polygol.Union(geoms[0], geoms[1:]...)
	if err != nil {
		return nil, fmt.Errorf("union parcel rings: %w", err)
	}
	return fromPolygol(merged), nil
}

// EnvelopeWebMercator projects a WGS-84 bound to an EPSG:3857 envelope
// suitable for a spatial filter on the remote service.
func EnvelopeWebMercator(b orb.Bound) arcgis.Envelope {
	min := project.WGS84.ToMercator(b.Min)
	max := project.WGS84.ToMercator(b.Max)
	return arcgis.Envelope{
		XMin: math.Min(min[0], max[0]),
		YMin: math.Min(min[1], max[1]),
		XMax: math.Max(min[0], max[0]),
		YMax: math.Max(min[1], max[1]),
	}
}

// AreaHectares returns the spherical area of a geometry in hectares.
func AreaHectares(g orb.Geometry) float64 {
	return math.Abs(geo.Area(g)) / 10000.0
}

// candidate wraps a fetched feature for the r-tree pre-filter.
type candidate struct {
	index int
	feat  arcgis.Feature
	rect  rtreego.Rect
}

func (c *candidate) Bounds() rtreego.Rect { return c.rect }

// Clip intersects each candidate feature with the parcel boundary and
// returns the features that genuinely overlap it, dissolved by (code, name).
//
// Candidates come from a bounding-box query and are typically a superset of
// true overlaps; an r-tree over their envelopes discards the cheap misses
// before the exact boolean intersection runs. Results keep first-seen order
// of each (code, name) pair, which is deterministic because paging within a
// layer is serial. Degenerate (zero-area) intersections are dropped. A
// candidate whose geometry the boolean kernel rejects is skipped with a
// warning; partial results are preferred over a failed export.
func Clip(parcel orb.MultiPolygon, feats []arcgis.Feature, lotplan, layer string) []ClippedFeature {
	if len(parcel) == 0 || len(feats) == 0 {
		return nil
	}
	parcelGeom := toPolygol(parcel)

	tree := rtreego.NewTree(2, 8, 16)
	for i := range feats {
		rect, ok := boundRect(feats[i].Geometry.Bound())
		if !ok {
			continue
		}
		tree.Insert(&candidate{index: i, feat: feats[i], rect: rect})
	}
	queryRect, ok := boundRect(parcel.Bound())
	if !ok {
		return nil
	}
	hits := tree.SearchIntersect(queryRect)
	cands := make([]*candidate, 0, len(hits))
	for _, h := range hits {
		cands = append(cands, h.(*candidate))
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].index < cands[j].index })

	var out []ClippedFeature
	byKey := make(map[string]int)
	for _, c := range cands {
		mp, ok := asMultiPolygon(c.feat.Geometry)
		if !ok || len(mp) == 0 {
			skipInvalid(c.feat.Code, layer, "not a polygon geometry")
			continue
		}
		inter, err := polygol.Intersection(toPolygol(mp), parcelGeom)
		if err != nil {
			skipInvalid(c.feat.Code, layer, err.Error())
			continue
		}
		clipped := fromPolygol(inter)
		if len(clipped) == 0 {
			continue
		}
		area := AreaHectares(clipped)
		if area <= 0 {
			continue
		}

		key := c.feat.Code + "\x1f" + c.feat.Name
		if i, seen := byKey[key]; seen {
			merged, err := polygol.Union(toPolygol(out[i].Geom), toPolygol(clipped))
			if err != nil {
				skipInvalid(c.feat.Code, layer, "dissolve: "+err.Error())
				continue
			}
			out[i].Geom = fromPolygol(merged)
			out[i].AreaHa += area
			continue
		}
		byKey[key] = len(out)
		out = append(out, ClippedFeature{
			Geom:    clipped,
			Code:    c.feat.Code,
			Name:    c.feat.Name,
			AreaHa:  area,
			LotPlan: lotplan,
			Layer:   layer,
		})
	}
	return out
}

// Dissolve unions features sharing a (code, name) pair into single
// features, summing areas. Clip already dissolves within one lot; this
// is the cross-lot pass used to build the merged overview layers of a
// multi-lot export, so the resulting features carry no lot tag. First
// appearance decides output order. A pair whose union the boolean
// kernel rejects keeps its first geometry rather than dropping the
// category.
func Dissolve(feats []ClippedFeature) []ClippedFeature {
	var out []ClippedFeature
	byKey := make(map[string]int)
	for _, f := range feats {
		key := f.Code + "\x1f" + f.Name
		i, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			merged := f
			merged.Geom = f.Geom.Clone()
			merged.LotPlan = ""
			out = append(out, merged)
			continue
		}
		union, err := polygol.Union(toPolygol(out[i].Geom), toPolygol(f.Geom))
		if err != nil {
			skipInvalid(f.Code, f.Layer, "dissolve: "+err.Error())
			continue
		}
		out[i].Geom = fromPolygol(union)
		out[i].AreaHa += f.AreaHa
	}
	return out
}

func skipInvalid(code, layer, reason string) {
	err := &InvalidGeometryError{Code: code, Reason: reason}
	metrics.GeometrySkipsTotal.Inc()
	logger.L().Warn("feature_skipped", "layer", layer, "err", err)
}

// boundRect converts an orb bound to an rtreego rect. Zero-extent bounds get
// a tiny positive length, which rtreego requires.
func boundRect(b orb.Bound) (rtreego.Rect, bool) {
	dx := math.Max(b.Max[0]-b.Min[0], 1e-12)
	dy := math.Max(b.Max[1]-b.Min[1], 1e-12)
	rect, err := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{dx, dy})
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}

// asMultiPolygon views a geometry as a multipolygon when possible.
func asMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, true
	case orb.MultiPolygon:
		return v, true
	default:
		return nil, false
	}
}

// toPolygol converts an orb multipolygon to the boolean kernel's
// [polygon][ring][point][xy] representation.
func toPolygol(mp orb.MultiPolygon) [][][][]float64 {
	out := make([][][][]float64, 0, len(mp))
	for _, poly := range mp {
		rings := make([][][]float64, 0, len(poly))
		for _, ring := range poly {
			pts := make([][]float64, 0, len(ring))
			for _, p := range ring {
				pts = append(pts, []float64{p[0], p[1]})
			}
			rings = append(rings, pts)
		}
		out = append(out, rings)
	}
	return out
}

func fromPolygol(g [][][][]float64) orb.MultiPolygon {
	var out orb.MultiPolygon
	for _, rings := range g {
		var poly orb.Polygon
		for _, ring := range rings {
			if len(ring) < 3 {
				continue
			}
			r := make(orb.Ring, 0, len(ring)+1)
			for _, pt := range ring {
				r = append(r, orb.Point{pt[0], pt[1]})
			}
			if r[0] != r[len(r)-1] {
				r = append(r, r[0])
			}
			if len(r) < 4 {
				continue
			}
			poly = append(poly, r)
		}
		if len(poly) > 0 {
			out = append(out, poly)
		}
	}
	return out
}
