package isophote

import "fmt"

// InvalidGeometryError reports an attempt to build an ellipse geometry with
// parameters outside their allowed ranges (non-positive semi-major axis, or
// ellipticity outside [0, 1)).
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "invalid ellipse geometry: " + e.Reason
}

// ShapeMismatchError reports a mask or error plane whose dimensions disagree
// with the image data. It is raised when the plane is attached, before any
// sampling or fitting work happens.
type ShapeMismatchError struct {
	// Plane names the offending input ("mask" or "error").
	Plane              string
	WantRows, WantCols int
	GotRows, GotCols   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s shape %dx%d does not match data shape %dx%d",
		e.Plane, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}

// InsufficientDataError reports a sample with too few usable (unmasked,
// finite) points to support the degrees of freedom of the harmonic fit.
type InsufficientDataError struct {
	Needed int
	Got    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data points for fit: need at least %d, got %d",
		e.Needed, e.Got)
}

// IncompatibleTypeError reports a comparison between an Isophote and a value
// of an unrelated type. Such comparisons are a programming error and must not
// silently evaluate to false.
type IncompatibleTypeError struct {
	Value any
}

func (e *IncompatibleTypeError) Error() string {
	return fmt.Sprintf("cannot compare Isophote with value of type %T", e.Value)
}
