// Package landtypes turns Queensland lot/plan identifiers into
// georeferenced land type exports.
//
// Given an identifier such as "13SP181800", the exporter fetches the
// cadastral parcel boundary and the land type categories that intersect
// it, clips the categories to the parcel, assigns each category a
// deterministic color, and renders the result as a GeoTIFF raster, a
// styled KML/KMZ document, GeoJSON feature collections, or a JSON-ready
// summary.
//
// # Basic Usage
//
//	exp := landtypes.New(landtypes.DefaultConfig())
//	res, err := exp.Raster(ctx, []string{"13SP181800"}, landtypes.DefaultExportOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("13SP181800.tif", res.Data, 0o644)
//
// # Merged Exports
//
// All operations accept multiple lot/plans. Parcels are prepared
// concurrently, bounds are unioned, and features keep their lot tag so
// vector exports can group them per lot. Merged KML documents lead with
// overview folders whose categories are dissolved across lots:
//
//	kml, err := exp.KML(ctx, []string{"13SP181800", "2RP53435"}, opts)
//
// # Errors
//
// Failures are reported through typed errors: ParcelNotFoundError when
// the cadastre has no such lot/plan, NoCategoriesError when no land
// types intersect the parcel, FetchError for upstream service failures
// and RenderError for encoding failures. Use errors.As to branch on
// them.
package landtypes
