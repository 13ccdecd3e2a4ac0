package landtypes

import "runtime"

// Raster size clamps. MaxPixels outside this range is pulled back in
// rather than rejected.
const (
	MinPixels     = 256
	MaxPixelsCap  = 8192
	defaultPixels = 4096
)

// ExportOptions configures export behavior.
type ExportOptions struct {
	// MaxPixels is the size of the larger raster dimension. Values are
	// clamped to [MinPixels, MaxPixelsCap]; zero means the default.
	MaxPixels int

	// SimplifyTolerance enables Douglas-Peucker simplification of vector
	// exports, in decimal degrees. Zero disables it. Raster exports are
	// never simplified.
	SimplifyTolerance float64

	// IncludeVegetation adds the regulated vegetation layer to exports.
	IncludeVegetation bool

	// IncludeBores adds registered groundwater bore placemarks to vector
	// exports. Ignored unless a bore layer is configured.
	IncludeBores bool

	// IncludeEasements adds parcel-clipped easements to vector exports.
	// Ignored unless an easement layer is configured.
	IncludeEasements bool

	// Workers is the number of parcels prepared concurrently in merged
	// exports. If 0, defaults to runtime.NumCPU().
	Workers int
}

// DefaultExportOptions returns default options.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		MaxPixels:         defaultPixels,
		SimplifyTolerance: 0,
		IncludeVegetation: false,
		IncludeBores:      false,
		IncludeEasements:  false,
		Workers:           runtime.NumCPU(),
	}
}

// normalize fills zero values and clamps MaxPixels.
func (o ExportOptions) normalize() ExportOptions {
	if o.MaxPixels == 0 {
		o.MaxPixels = defaultPixels
	}
	if o.MaxPixels < MinPixels {
		o.MaxPixels = MinPixels
	}
	if o.MaxPixels > MaxPixelsCap {
		o.MaxPixels = MaxPixelsCap
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}
