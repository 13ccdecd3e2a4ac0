package geometry

import (
	"fmt"
)

// InvalidGeometryError reports a candidate feature whose geometry could not
// be used for exact clipping (malformed rings, self-intersection the boolean
// kernel rejects). These features are skipped with a warning; they never
// abort an export.
type InvalidGeometryError struct {
	Code   string
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid geometry for code %q: %s", e.Code, e.Reason)
}
