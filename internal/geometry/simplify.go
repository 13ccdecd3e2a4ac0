package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// Simplify reduces vertex counts for vector export using Douglas-Peucker
// with the given tolerance in degrees. A feature that would simplify away
// entirely keeps its original geometry; simplification must never drop
// categories from the output.
func Simplify(feats []ClippedFeature, tolerance float64) []ClippedFeature {
	if tolerance <= 0 {
		return feats
	}
	s := simplify.DouglasPeucker(tolerance)
	out := make([]ClippedFeature, len(feats))
	for i, f := range feats {
		out[i] = f
		reduced, ok := s.Simplify(f.Geom.Clone()).(orb.MultiPolygon)
		if ok && hasRealRing(reduced) {
			out[i].Geom = reduced
		}
	}
	return out
}

// hasRealRing reports whether a multipolygon still carries a usable outer
// ring after simplification.
func hasRealRing(mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		if len(poly) > 0 && len(poly[0]) >= 4 {
			return true
		}
	}
	return false
}

// PointInPolygon reports whether p lies inside mp, by even-odd ray casting
// across every ring. Points exactly on an edge may land on either side;
// boundary precision is not a contract here.
func PointInPolygon(mp orb.MultiPolygon, p orb.Point) bool {
	inside := false
	for _, poly := range mp {
		for _, ring := range poly {
			n := len(ring)
			if n < 3 {
				continue
			}
			j := n - 1
			for i := 0; i < n; i++ {
				pi, pj := ring[i], ring[j]
				if (pi[1] > p[1]) != (pj[1] > p[1]) &&
					p[0] < (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1])+pi[0] {
					inside = !inside
				}
				j = i
			}
		}
	}
	return inside
}
