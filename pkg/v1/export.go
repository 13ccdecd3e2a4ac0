package landtypes

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/paddockmaps/landtypes/internal/arcgis"
	"github.com/paddockmaps/landtypes/internal/colors"
	"github.com/paddockmaps/landtypes/internal/geometry"
	"github.com/paddockmaps/landtypes/internal/kmlout"
	"github.com/paddockmaps/landtypes/internal/logger"
	"github.com/paddockmaps/landtypes/internal/metrics"
	"github.com/paddockmaps/landtypes/internal/raster"
)

// Exporter converts lot/plan identifiers into land type exports.
//
// Create one with New and reuse it; it is safe for concurrent use.
type Exporter struct {
	cfg    Config
	client *arcgis.Client
}

// New builds an Exporter around cfg.
//
// Example:
//
//	exp := landtypes.New(landtypes.DefaultConfig())
//	res, err := exp.Raster(ctx, []string{"13SP181800"}, landtypes.DefaultExportOptions())
func New(cfg Config) *Exporter {
	return &Exporter{
		cfg:    cfg,
		client: arcgis.NewClient(cfg.arcgisConfig(), nil),
	}
}

// stage tracks how far a lot has progressed through the pipeline.
type stage int

const (
	stagePending stage = iota
	stageParcelFetched
	stageFeaturesFetched
	stageClipped
	stageColored
	stageRendered
	stageDone
	stageError
)

func (s stage) String() string {
	switch s {
	case stagePending:
		return "PENDING"
	case stageParcelFetched:
		return "PARCEL_FETCHED"
	case stageFeaturesFetched:
		return "FEATURES_FETCHED"
	case stageClipped:
		return "CLIPPED"
	case stageColored:
		return "COLORED"
	case stageRendered:
		return "RENDERED"
	case stageDone:
		return "DONE"
	case stageError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// lotBundle is one prepared parcel: its envelope plus the category
// features clipped to its boundary.
type lotBundle struct {
	lotPlan   string
	bound     orb.Bound
	parcel    orb.MultiPolygon
	land      []geometry.ClippedFeature
	veg       []geometry.ClippedFeature
	easements []geometry.ClippedFeature
	bores     []kmlout.PointPlacemark
}

// prepareLot runs the per-lot stages: fetch parcel, fetch intersecting
// categories, clip and label. Rendering happens later over the merged
// bundle set.
func (e *Exporter) prepareLot(ctx context.Context, lotplan string, opts ExportOptions) (*lotBundle, error) {
	lp := arcgis.NormalizeLotPlan(lotplan)
	st := stagePending
	fail := func(err error) (*lotBundle, error) {
		logger.L().Error("lot preparation failed",
			"lotplan", lp, "stage", st.String(), "next", stageError.String(), "error", err)
		return nil, fmt.Errorf("lot %s at %s: %w", lp, st, err)
	}

	fc, err := e.client.FetchParcel(ctx, lp)
	if err != nil {
		return fail(convertError(err))
	}
	if fc == nil || len(fc.Features) == 0 {
		return fail(&ParcelNotFoundError{LotPlan: lp})
	}
	parcel, err := geometry.UnionPolygons(fc)
	if err != nil {
		return fail(convertError(err))
	}
	if len(parcel) == 0 {
		return fail(&ParcelNotFoundError{LotPlan: lp})
	}
	st = stageParcelFetched
	logger.L().Debug("parcel fetched", "lotplan", lp, "stage", st.String(), "rings", len(parcel))

	bound := parcel.Bound()
	env := geometry.EnvelopeWebMercator(bound)

	landFeats, err := e.client.FetchByEnvelope(ctx, e.cfg.LandTypes.ref("landtypes"), env)
	if err != nil {
		return fail(convertError(err))
	}

	var vegFeats []arcgis.Feature
	if opts.IncludeVegetation && e.cfg.Vegetation.ServiceURL != "" {
		vegFeats, err = e.client.FetchByEnvelope(ctx, e.cfg.Vegetation.ref("vegetation"), env)
		if err != nil {
			return fail(convertError(err))
		}
	}

	var easeFeats []arcgis.Feature
	if opts.IncludeEasements && e.cfg.Easements.ServiceURL != "" {
		easeFeats, err = e.client.FetchByEnvelope(ctx, e.cfg.Easements.ref("easements"), env)
		if err != nil {
			return fail(convertError(err))
		}
	}

	var points []arcgis.PointFeature
	if opts.IncludeBores && e.cfg.Bores.ServiceURL != "" {
		points, err = e.client.FetchPointsByEnvelope(ctx, e.cfg.Bores.ref("bores"), env)
		if err != nil {
			return fail(convertError(err))
		}
	}
	st = stageFeaturesFetched
	logger.L().Debug("features fetched",
		"lotplan", lp, "stage", st.String(), "landtypes", len(landFeats), "vegetation", len(vegFeats),
		"easements", len(easeFeats), "bores", len(points))

	b := &lotBundle{lotPlan: lp, bound: bound, parcel: parcel}
	b.land = geometry.Clip(parcel, landFeats, lp, "landtypes")
	b.veg = geometry.Clip(parcel, vegFeats, lp, "vegetation")
	for i := range b.veg {
		b.veg[i].Name = "Category " + b.veg[i].Name
	}
	b.easements = geometry.Clip(parcel, easeFeats, lp, "easements")
	b.bores = borePlacemarks(parcel, points)
	st = stageClipped
	logger.L().Debug("clipped", "lotplan", lp, "stage", st.String(),
		"landtypes", len(b.land), "vegetation", len(b.veg), "easements", len(b.easements))

	// Colors are derived per code on demand, so reaching this stage only
	// asserts every retained feature has a code to derive from.
	st = stageColored
	logger.L().Debug("colored", "lotplan", lp, "stage", st.String())

	return b, nil
}

// borePlacemarks keeps envelope hits that fall inside the parcel
// boundary, deduplicated by bore number.
func borePlacemarks(parcel orb.MultiPolygon, points []arcgis.PointFeature) []kmlout.PointPlacemark {
	seen := make(map[string]bool, len(points))
	var out []kmlout.PointPlacemark
	for _, p := range points {
		if seen[p.Ref] || !geometry.PointInPolygon(parcel, p.Point) {
			continue
		}
		seen[p.Ref] = true
		out = append(out, kmlout.PointPlacemark{
			Name:        p.Ref,
			Description: p.Label,
			Lon:         p.Point[0],
			Lat:         p.Point[1],
		})
	}
	return out
}

// mergedBound unions the parcel envelopes of all bundles.
func mergedBound(bundles []*lotBundle) orb.Bound {
	b := bundles[0].bound
	for _, lot := range bundles[1:] {
		b = b.Union(lot.bound)
	}
	return b
}

// burnOrder flattens bundles into raster burn order: land types across
// all lots in request order, then vegetation. Later features overwrite
// earlier pixels where categories overlap.
func burnOrder(bundles []*lotBundle) []geometry.ClippedFeature {
	var out []geometry.ClippedFeature
	for _, lot := range bundles {
		out = append(out, lot.land...)
	}
	for _, lot := range bundles {
		out = append(out, lot.veg...)
	}
	return out
}

// legend aggregates land type areas by category across all bundles,
// sorted by descending area then code.
func legend(bundles []*lotBundle) []LegendEntry {
	type key struct{ code, name string }
	areas := make(map[key]float64)
	var order []key
	for _, lot := range bundles {
		for _, f := range lot.land {
			k := key{f.Code, f.Name}
			if _, ok := areas[k]; !ok {
				order = append(order, k)
			}
			areas[k] += f.AreaHa
		}
	}
	entries := make([]LegendEntry, 0, len(order))
	for _, k := range order {
		entries = append(entries, LegendEntry{
			Code:     k.code,
			Name:     k.name,
			ColorHex: colors.HexRGB(colors.FromCode(k.code)),
			AreaHa:   areas[k],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AreaHa != entries[j].AreaHa {
			return entries[i].AreaHa > entries[j].AreaHa
		}
		return entries[i].Code < entries[j].Code
	})
	return entries
}

func lotPlanList(bundles []*lotBundle) []string {
	out := make([]string, len(bundles))
	for i, lot := range bundles {
		out[i] = lot.lotPlan
	}
	return out
}

// requireLand enforces that at least one land type category survived
// clipping across the merged request.
func requireLand(bundles []*lotBundle) error {
	for _, lot := range bundles {
		if len(lot.land) > 0 {
			return nil
		}
	}
	return &NoCategoriesError{LotPlans: lotPlanList(bundles)}
}

// Raster renders the lot/plans as a georeferenced RGBA GeoTIFF.
//
// Categories are clipped to each parcel, merged lots share one raster
// grid covering the union of parcel envelopes, and pixels outside every
// category are fully transparent.
func (e *Exporter) Raster(ctx context.Context, lotplans []string, opts ExportOptions) (*RasterResult, error) {
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

	bound := mergedBound(bundles)
	img, tf, err := raster.Burn(burnOrder(bundles), bound, opts.MaxPixels)
	if err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("render").Inc()
		return nil, &RenderError{Format: "tiff", Err: err}
	}
	logger.L().Debug("raster burned",
		"lotplans", lotPlanList(bundles), "stage", stageRendered.String(),
		"width", img.Rect.Dx(), "height", img.Rect.Dy())

	var buf bytes.Buffer
	if err := raster.EncodeGeoTIFF(&buf, img, tf); err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("render").Inc()
		return nil, &RenderError{Format: "tiff", Err: err}
	}
	metrics.ExportsTotal.WithLabelValues("tiff").Inc()
	logger.L().Info("export complete",
		"lotplans", lotPlanList(bundles), "stage", stageDone.String(), "format", "tiff", "bytes", buf.Len())

	return &RasterResult{
		Data:      buf.Bytes(),
		Width:     img.Rect.Dx(),
		Height:    img.Rect.Dy(),
		Bounds:    boundsFromOrb(bound),
		Transform: Transform{OriginX: tf.OriginX, OriginY: tf.OriginY, PixelW: tf.PixelW, PixelH: tf.PixelH},
		Legend:    legend(bundles),
	}, nil
}

// Summary reports the legend, bounds and raster dimensions for the
// lot/plans without rendering pixel data.
func (e *Exporter) Summary(ctx context.Context, lotplans []string, opts ExportOptions) (*Summary, error) {
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

	bound := mergedBound(bundles)
	width, height := raster.ChooseSize(bound, opts.MaxPixels)
	metrics.ExportsTotal.WithLabelValues("json").Inc()

	return &Summary{
		LotPlans: lotPlanList(bundles),
		Bounds:   boundsFromOrb(bound),
		Width:    width,
		Height:   height,
		Legend:   legend(bundles),
	}, nil
}

// KML renders the lot/plans as a styled KML document.
//
// A single lot produces one folder per layer; merged lots produce
// cross-lot overview folders followed by a folder per lot with layer
// subfolders.
func (e *Exporter) KML(ctx context.Context, lotplans []string, opts ExportOptions) ([]byte, error) {
	doc, lps, err := e.buildKML(ctx, lotplans, opts)
	if err != nil {
		return nil, err
	}
	metrics.ExportsTotal.WithLabelValues("kml").Inc()
	logger.L().Info("export complete",
		"lotplans", lps, "stage", stageDone.String(), "format", "kml", "bytes", len(doc))
	return doc, nil
}

// KMZ renders the lot/plans as a zipped KML archive.
func (e *Exporter) KMZ(ctx context.Context, lotplans []string, opts ExportOptions) ([]byte, error) {
	doc, lps, err := e.buildKML(ctx, lotplans, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := kmlout.WriteKMZ(&buf, doc, nil); err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("render").Inc()
		return nil, &RenderError{Format: "kmz", Err: err}
	}
	metrics.ExportsTotal.WithLabelValues("kmz").Inc()
	logger.L().Info("export complete",
		"lotplans", lps, "stage", stageDone.String(), "format", "kmz", "bytes", buf.Len())
	return buf.Bytes(), nil
}

// buildKML prepares the bundles and serializes the KML document. The
// caller counts the export so archive formats are not double counted.
func (e *Exporter) buildKML(ctx context.Context, lotplans []string, opts ExportOptions) ([]byte, []string, error) {
	opts = opts.normalize()
	bundles, err := e.prepare(ctx, lotplans, opts)
	if err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("prepare").Inc()
		return nil, nil, err
	}
	if err := requireLand(bundles); err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("no_categories").Inc()
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := kmlout.WriteKML(&buf, kmlDocName(bundles), kmlFolders(bundles, opts)); err != nil {
		metrics.ExportFailuresTotal.WithLabelValues("render").Inc()
		return nil, nil, &RenderError{Format: "kml", Err: err}
	}
	return buf.Bytes(), lotPlanList(bundles), nil
}

func kmlDocName(bundles []*lotBundle) string {
	if len(bundles) == 1 {
		return "QLD Land Types - " + bundles[0].lotPlan
	}
	return fmt.Sprintf("QLD Land Types - %d lots", len(bundles))
}

// kmlFolders arranges bundles into the export folder tree, applying
// vector simplification when requested. Merged documents lead with
// cross-lot overview folders that dissolve categories across lots.
func kmlFolders(bundles []*lotBundle, opts ExportOptions) []kmlout.Folder {
	if len(bundles) == 1 {
		return lotFolders(bundles[0], opts, true)
	}
	out := mergedFolders(bundles, opts)
	for _, lot := range bundles {
		out = append(out, kmlout.Folder{
			Name: lot.lotPlan,
			Sub:  lotFolders(lot, opts, false),
		})
	}
	return out
}

// mergedFolders builds the cross-lot overview folders of a merged
// document: categories dissolved by (code, name) across all lots, and
// one deduplicated bore folder.
func mergedFolders(bundles []*lotBundle, opts ExportOptions) []kmlout.Folder {
	var land, veg []geometry.ClippedFeature
	for _, lot := range bundles {
		land = append(land, lot.land...)
		veg = append(veg, lot.veg...)
	}

	folders := []kmlout.Folder{{
		Name: "Merged Land Types (All Properties)",
		Sub: []kmlout.Folder{{
			Name:     "Land Types",
			Features: geometry.Simplify(geometry.Dissolve(land), opts.SimplifyTolerance),
		}},
	}}
	if len(veg) > 0 {
		folders = append(folders, kmlout.Folder{
			Name: "Merged Vegetation (All Properties)",
			Sub: []kmlout.Folder{{
				Name:     "Vegetation",
				Features: geometry.Simplify(geometry.Dissolve(veg), opts.SimplifyTolerance),
			}},
		})
	}
	if bores := mergedBores(bundles); len(bores) > 0 {
		folders = append(folders, kmlout.Folder{
			Name:   "Groundwater Bores (All Properties)",
			Points: bores,
		})
	}
	return folders
}

// mergedBores collects bores across lots, keeping the first placemark
// per bore number. Adjacent lots can both contain the same bore.
func mergedBores(bundles []*lotBundle) []kmlout.PointPlacemark {
	seen := make(map[string]bool)
	var out []kmlout.PointPlacemark
	for _, lot := range bundles {
		for _, p := range lot.bores {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			out = append(out, p)
		}
	}
	return out
}

// lotFolders builds the per-layer folders for one lot. Suffixed names
// are used at the top level of single-lot documents; merged documents
// already nest under a lot folder.
func lotFolders(lot *lotBundle, opts ExportOptions, suffix bool) []kmlout.Folder {
	name := func(layer string) string {
		if suffix {
			return layer + " - " + lot.lotPlan
		}
		return layer
	}

	folders := []kmlout.Folder{{
		Name:     name("Land Types"),
		Features: geometry.Simplify(lot.land, opts.SimplifyTolerance),
	}}
	if len(lot.veg) > 0 {
		folders = append(folders, kmlout.Folder{
			Name:     name("Vegetation"),
			Features: geometry.Simplify(lot.veg, opts.SimplifyTolerance),
		})
	}
	if len(lot.easements) > 0 {
		folders = append(folders, kmlout.Folder{
			Name:     name("Easements"),
			Features: geometry.Simplify(lot.easements, opts.SimplifyTolerance),
		})
	}
	if len(lot.bores) > 0 {
		folders = append(folders, kmlout.Folder{
			Name:   name("Bores"),
			Points: lot.bores,
		})
	}
	return folders
}
