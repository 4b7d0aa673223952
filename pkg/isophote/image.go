package isophote

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Image bundles the 2D intensity data with optional mask and per-pixel error
// planes. Data is indexed (row, col) = (y, x), with the origin at the lower
// left corner of the array, matching the usual orientation of astronomical
// image arrays.
//
// The image, mask, and error planes are read-only inputs shared by every
// sample extraction; callers must not mutate them while a fit is running.
type Image struct {
	// Data holds the pixel intensities.
	Data *mat.Dense

	mask     []bool
	errPlane *mat.Dense

	rows, cols int
}

// NewImage wraps a 2D intensity array for fitting.
func NewImage(data *mat.Dense) *Image {
	r, c := data.Dims()
	return &Image{Data: data, rows: r, cols: c}
}

// Dims returns the (rows, cols) shape of the image.
func (im *Image) Dims() (rows, cols int) {
	return im.rows, im.cols
}

// SetMask attaches a boolean exclusion mask (true = pixel excluded). The mask
// must have the same shape as the data; a mismatch fails immediately with a
// ShapeMismatchError, before any sampling takes place.
func (im *Image) SetMask(mask [][]bool) error {
	if len(mask) != im.rows || (len(mask) > 0 && len(mask[0]) != im.cols) {
		gotCols := 0
		if len(mask) > 0 {
			gotCols = len(mask[0])
		}
		return &ShapeMismatchError{
			Plane:    "mask",
			WantRows: im.rows, WantCols: im.cols,
			GotRows: len(mask), GotCols: gotCols,
		}
	}
	flat := make([]bool, im.rows*im.cols)
	for j, row := range mask {
		if len(row) != im.cols {
			return &ShapeMismatchError{
				Plane:    "mask",
				WantRows: im.rows, WantCols: im.cols,
				GotRows: len(mask), GotCols: len(row),
			}
		}
		copy(flat[j*im.cols:], row)
	}
	im.mask = flat
	return nil
}

// SetError attaches a per-pixel error plane of the same shape as the data.
func (im *Image) SetError(errs *mat.Dense) error {
	r, c := errs.Dims()
	if r != im.rows || c != im.cols {
		return &ShapeMismatchError{
			Plane:    "error",
			WantRows: im.rows, WantCols: im.cols,
			GotRows: r, GotCols: c,
		}
	}
	im.errPlane = errs
	return nil
}

// HasMask reports whether an explicit exclusion mask is attached.
func (im *Image) HasMask() bool {
	return im.mask != nil
}

// ErrorPlane returns the attached error plane, or nil.
func (im *Image) ErrorPlane() *mat.Dense {
	return im.errPlane
}

func (im *Image) inBounds(j, i int) bool {
	return j >= 0 && j < im.rows && i >= 0 && i < im.cols
}

func (im *Image) masked(j, i int) bool {
	return im.mask != nil && im.mask[j*im.cols+i]
}

// pixel returns the value at (row j, col i) together with flags telling
// whether it is usable and, if not, whether the reason was a non-finite
// value rather than an explicit mask entry.
func (im *Image) pixel(j, i int) (v float64, ok, nonFinite bool) {
	if !im.inBounds(j, i) {
		return 0, false, false
	}
	if im.masked(j, i) {
		return 0, false, false
	}
	v = im.Data.At(j, i)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, true
	}
	return v, true, false
}

// Bilinear interpolates the image at the fractional position (x, y), using
// the four surrounding pixels. It reports failure when any of the four
// pixels is out of bounds, masked, or non-finite; nonFinite counts how many
// of the skipped pixels were non-finite without an explicit mask.
func (im *Image) Bilinear(x, y float64) (v float64, ok bool, nonFinite int) {
	if x < 0 || x >= float64(im.cols-1) || y < 0 || y >= float64(im.rows-1) {
		return 0, false, 0
	}
	i := int(x)
	j := int(y)
	fx := x - float64(i)
	fy := y - float64(j)
	qx := 1.0 - fx
	qy := 1.0 - fy

	p00, ok00, nf00 := im.pixel(j, i)
	p10, ok10, nf10 := im.pixel(j+1, i)
	p01, ok01, nf01 := im.pixel(j, i+1)
	p11, ok11, nf11 := im.pixel(j+1, i+1)
	for _, nf := range []bool{nf00, nf10, nf01, nf11} {
		if nf {
			nonFinite++
		}
	}
	if !ok00 || !ok10 || !ok01 || !ok11 {
		return 0, false, nonFinite
	}
	v = p00*qx*qy + p10*qx*fy + p01*fx*qy + p11*fx*fy
	return v, true, 0
}
