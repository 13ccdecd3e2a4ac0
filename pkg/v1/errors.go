package landtypes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paddockmaps/landtypes/internal/arcgis"
)

// FetchError indicates an upstream service failure while querying a
// layer. Layer is the short layer name ("parcel", "landtypes",
// "vegetation", "bores").
type FetchError struct {
	Layer string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Layer, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParcelNotFoundError indicates the cadastre returned no features for a
// lot/plan. This is a lookup miss, not a service failure.
type ParcelNotFoundError struct {
	LotPlan string
}

func (e *ParcelNotFoundError) Error() string {
	return fmt.Sprintf("parcel not found: %s", e.LotPlan)
}

// NoCategoriesError indicates the parcel exists but no land type
// categories intersect it. Exports never produce a blank raster for
// this case.
type NoCategoriesError struct {
	LotPlans []string
}

func (e *NoCategoriesError) Error() string {
	return fmt.Sprintf("no land types intersect parcel(s) %s", strings.Join(e.LotPlans, ", "))
}

// RenderError indicates an output encoding failure for the given format
// ("tiff", "kml", "kmz").
type RenderError struct {
	Format string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// convertError maps internal error types onto the public taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var fe *arcgis.FetchError
	if errors.As(err, &fe) {
		return &FetchError{Layer: fe.Layer, Err: fe.Err}
	}
	return err
}
