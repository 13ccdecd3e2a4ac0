package landtypes

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/paddockmaps/landtypes/internal/colors"
	"github.com/paddockmaps/landtypes/internal/geometry"
	"github.com/paddockmaps/landtypes/internal/kmlout"
	"github.com/paddockmaps/landtypes/internal/logger"
	"github.com/paddockmaps/landtypes/internal/metrics"
)

// VectorResult is the GeoJSON form of an export: parcel boundaries plus
// the clipped category layers as feature collections, with the same
// legend and bounds a Summary reports.
type VectorResult struct {
	LotPlans   []string                   `json:"lotplans"`
	Parcels    *geojson.FeatureCollection `json:"parcels"`
	LandTypes  *geojson.FeatureCollection `json:"landtypes"`
	Vegetation *geojson.FeatureCollection `json:"vegetation,omitempty"`
	Easements  *geojson.FeatureCollection `json:"easements,omitempty"`
	Bores      *geojson.FeatureCollection `json:"bores,omitempty"`
	Legend     []LegendEntry              `json:"legend"`
	Bounds     Bounds                     `json:"bounds"`
}

// GeoJSON renders the lot/plans as GeoJSON feature collections.
//
// Every category feature carries code, name, area_ha, color and lotplan
// properties. Optional layers are omitted when empty.
func (e *Exporter) GeoJSON(ctx context.Context, lotplans []string, opts ExportOptions) (*VectorResult, error) {
	opts = opts.normalize()
	bundles, err := e.prepare(ctx, lotplans, opts)
	if err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("prepare").Inc()
		return nil, err
	}
	if err := requireLand(bundles); err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("no_categories").Inc()
		return nil, err
	}

	var land, veg, easements []geometry.ClippedFeature
	for _, lot := range bundles {
		land = append(land, lot.land...)
		veg = append(veg, lot.veg...)
		easements = append(easements, lot.easements...)
	}

	res := &VectorResult{
		LotPlans:  lotPlanList(bundles),
		Parcels:   parcelCollection(bundles),
		LandTypes: featureCollection(land, opts.SimplifyTolerance),
		Legend:    legend(bundles),
		Bounds:    boundsFromOrb(mergedBound(bundles)),
	}
	if len(veg) > 0 {
		res.Vegetation = featureCollection(veg, opts.SimplifyTolerance)
	}
	if len(easements) > 0 {
		res.Easements = featureCollection(easements, opts.SimplifyTolerance)
	}
	if bores := mergedBores(bundles); len(bores) > 0 {
		res.Bores = boreCollection(bores)
	}

	metrics.ExportsTotal.WithLabelValues("geojson").Inc()
	logger.L().Info("export complete",
		"lotplans", res.LotPlans, "stage", stageDone.String(), "format", "geojson",
		"landtypes", len(res.LandTypes.Features))
	return res, nil
}

func parcelCollection(bundles []*lotBundle) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, lot := range bundles {
		f := geojson.NewFeature(lot.parcel)
		f.Properties["lotplan"] = lot.lotPlan
		fc.Append(f)
	}
	return fc
}

func featureCollection(feats []geometry.ClippedFeature, tolerance float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, cf := range geometry.Simplify(feats, tolerance) {
		f := geojson.NewFeature(cf.Geom)
		f.Properties["code"] = cf.Code
		f.Properties["name"] = cf.Name
		f.Properties["area_ha"] = cf.AreaHa
		f.Properties["color"] = colors.HexRGB(colors.FromCode(cf.Code))
		f.Properties["lotplan"] = cf.LotPlan
		fc.Append(f)
	}
	return fc
}

func boreCollection(bores []kmlout.PointPlacemark) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range bores {
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		f.Properties["ref"] = p.Name
		f.Properties["label"] = p.Description
		fc.Append(f)
	}
	return fc
}
