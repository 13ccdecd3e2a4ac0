package arcgis

import (
	"fmt"
)

// FetchError indicates a remote layer query failed: network error, timeout,
// non-2xx status, or a body that was not a GeoJSON FeatureCollection.
// An empty result set is not a FetchError.
type FetchError struct {
	Layer string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Layer, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
