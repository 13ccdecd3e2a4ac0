package landtypes

import "github.com/paulmach/orb"

// Bounds represents a geographic bounding box in WGS-84 coordinates.
//
// Coordinates are in decimal degrees.
type Bounds struct {
	MinLon float64 `json:"min_lon"` // Western edge
	MaxLon float64 `json:"max_lon"` // Eastern edge
	MinLat float64 `json:"min_lat"` // Southern edge
	MaxLat float64 `json:"max_lat"` // Northern edge
}

// Contains returns true if the point (lon, lat) is within the bounds.
func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon &&
		lat >= b.MinLat && lat <= b.MaxLat
}

// Intersects returns true if the given bounds intersects with this bounds.
func (b Bounds) Intersects(other Bounds) bool {
	return !(other.MaxLon < b.MinLon ||
		other.MinLon > b.MaxLon ||
		other.MaxLat < b.MinLat ||
		other.MinLat > b.MaxLat)
}

// Union returns the smallest bounds covering both b and other.
func (b Bounds) Union(other Bounds) Bounds {
	out := b
	if other.MinLon < out.MinLon {
		out.MinLon = other.MinLon
	}
	if other.MaxLon > out.MaxLon {
		out.MaxLon = other.MaxLon
	}
	if other.MinLat < out.MinLat {
		out.MinLat = other.MinLat
	}
	if other.MaxLat > out.MaxLat {
		out.MaxLat = other.MaxLat
	}
	return out
}

// Expand returns a new Bounds expanded by the given margin in all directions.
//
// Margin is in decimal degrees.
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{
		MinLon: b.MinLon - margin,
		MaxLon: b.MaxLon + margin,
		MinLat: b.MinLat - margin,
		MaxLat: b.MaxLat + margin,
	}
}

func boundsFromOrb(b orb.Bound) Bounds {
	return Bounds{
		MinLon: b.Min[0],
		MaxLon: b.Max[0],
		MinLat: b.Min[1],
		MaxLat: b.Max[1],
	}
}

// LegendEntry describes one land type category present in an export.
type LegendEntry struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	ColorHex string  `json:"color"`   // "#rrggbb"
	AreaHa   float64 `json:"area_ha"` // clipped area within the parcel(s)
}

// Summary is the metadata-only export: what a raster of the parcel(s)
// would contain, without the raster bytes.
type Summary struct {
	LotPlans []string      `json:"lotplans"`
	Bounds   Bounds        `json:"bounds"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Legend   []LegendEntry `json:"legend"`
}

// Transform maps pixel coordinates to geographic coordinates. OriginX
// and OriginY locate the outer corner of the top-left pixel (west,
// north); PixelW and PixelH are pixel sizes in degrees, both positive.
type Transform struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	PixelW  float64 `json:"pixel_w"`
	PixelH  float64 `json:"pixel_h"`
}

// RasterResult is a rendered GeoTIFF export.
type RasterResult struct {
	Data      []byte // complete GeoTIFF file
	Width     int
	Height    int
	Bounds    Bounds
	Transform Transform
	Legend    []LegendEntry
}
