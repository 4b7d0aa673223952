package isophote

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// smaEqualTol is the tolerance used when comparing numeric isophote fields
// for equality.
const smaEqualTol = 1.0e-10

// Isophote records one terminated fit: the fitted intensity and its error,
// the residual statistics, the higher-order harmonic deviations from a
// perfect ellipse, flux integrals, and the diagnostic counters. Isophotes
// are ordered by semi-major axis.
type Isophote struct {
	// Sample is the sample the record was measured on. It carries the
	// fitted geometry. Read-only after construction.
	Sample *Sample

	// NIter is the number of iterations the fit ran; Valid tells whether
	// the result is usable; StopCode classifies why the fit terminated
	// (see the Stop* constants).
	NIter    int
	Valid    bool
	StopCode int

	// Intens is the mean intensity along the fitted ellipse; IntErr its
	// standard error across the angular samples.
	Intens float64
	IntErr float64

	// RMS is the residual scatter of the intensity samples; PixStddev
	// estimates the per-pixel standard deviation from it.
	RMS       float64
	PixStddev float64

	// Grad is the local radial intensity gradient; GradError its absolute
	// error and GradRError its relative error (NaN when unknown).
	Grad       float64
	GradError  float64
	GradRError float64

	// SArea is the mean sector area used during extraction; NData the
	// number of accepted samples; NFlag the number flagged or clipped.
	SArea float64
	NData int
	NFlag int

	// TFluxE and TFluxC are the total fluxes inside the fitted ellipse
	// and inside the circle with radius sma; NPixE and NPixC the
	// corresponding pixel counts.
	TFluxE, TFluxC float64
	NPixE, NPixC   int

	// Third and fourth harmonic amplitudes, normalized by sma times the
	// gradient, with their errors. Near zero for a perfect ellipse.
	A3, B3, A4, B4             float64
	A3Err, B3Err, A4Err, B4Err float64

	// Errors of the fitted geometry parameters, from linear propagation
	// of the harmonic-fit covariance.
	X0Err, Y0Err, EPSErr, PAErr float64
}

// newIsophote assembles the record for a terminated fit. For samples that
// never produced a usable extraction the numeric fields are NaN.
func newIsophote(sample *Sample, niter int, valid bool, stopCode int) *Isophote {
	iso := &Isophote{
		Sample:   sample,
		NIter:    niter,
		Valid:    valid,
		StopCode: stopCode,
	}

	if !sample.extracted || sample.ActualPoints == 0 {
		nan := math.NaN()
		iso.Intens, iso.IntErr, iso.RMS, iso.PixStddev = nan, nan, nan, nan
		iso.Grad, iso.GradError, iso.GradRError = nan, nan, nan
		iso.A3, iso.B3, iso.A4, iso.B4 = nan, nan, nan, nan
		iso.A3Err, iso.B3Err, iso.A4Err, iso.B4Err = nan, nan, nan, nan
		iso.X0Err, iso.Y0Err, iso.EPSErr, iso.PAErr = nan, nan, nan, nan
		return iso
	}

	vals := sample.Values()
	iso.Intens = sample.Mean
	iso.RMS = stat.StdDev(vals[2], nil)
	iso.IntErr = iso.RMS / math.Sqrt(float64(sample.ActualPoints))
	iso.PixStddev = iso.RMS * math.Sqrt(sample.SectorArea)
	iso.Grad = sample.Gradient
	iso.GradError = sample.GradientError
	iso.GradRError = sample.GradientRelativeError
	iso.SArea = sample.SectorArea
	iso.NData = sample.ActualPoints
	iso.NFlag = sample.TotalPoints - sample.ActualPoints

	iso.computeFluxes()
	iso.computeErrors()
	iso.computeDeviations()
	return iso
}

// newCentralIsophote builds the degenerate record reported at sma = 0.
func newCentralIsophote(sample *Sample) *Isophote {
	return &Isophote{
		Sample:   sample,
		NIter:    0,
		Valid:    true,
		StopCode: StopConverged,
		Intens:   sample.Mean,
		NData:    1,
	}
}

// SMA returns the semi-major axis of the fitted ellipse.
func (iso *Isophote) SMA() float64 { return iso.Sample.Geometry.SMA }

// EPS returns the fitted ellipticity.
func (iso *Isophote) EPS() float64 { return iso.Sample.Geometry.EPS }

// PA returns the fitted position angle, radians.
func (iso *Isophote) PA() float64 { return iso.Sample.Geometry.PA }

// X0 returns the fitted center x coordinate.
func (iso *Isophote) X0() float64 { return iso.Sample.Geometry.X0 }

// Y0 returns the fitted center y coordinate.
func (iso *Isophote) Y0() float64 { return iso.Sample.Geometry.Y0 }

// computeFluxes sums pixel values inside the fitted ellipse (TFluxE, NPixE)
// and inside the circle with radius sma (TFluxC, NPixC). Masked and
// non-finite pixels are excluded.
func (iso *Isophote) computeFluxes() {
	g := iso.Sample.Geometry
	img := iso.Sample.Image
	rows, cols := img.Dims()
	sma := g.SMA

	i1 := clampInt(int(g.X0-sma)-1, 0, cols-1)
	i2 := clampInt(int(g.X0+sma)+1, 0, cols-1)
	j1 := clampInt(int(g.Y0-sma)-1, 0, rows-1)
	j2 := clampInt(int(g.Y0+sma)+1, 0, rows-1)

	for j := j1; j <= j2; j++ {
		for i := i1; i <= i2; i++ {
			v, ok, _ := img.pixel(j, i)
			if !ok {
				continue
			}
			radius, angle := g.ToPolar(float64(i), float64(j))
			if radius <= g.Radius(angle) {
				iso.TFluxE += v
				iso.NPixE++
			}
			if radius <= sma {
				iso.TFluxC += v
				iso.NPixC++
			}
		}
	}
}

// computeErrors propagates the covariance of the harmonic fit into errors
// on the geometry parameters, using the same gradient scaling that maps
// harmonic amplitudes to parameter corrections.
func (iso *Isophote) computeErrors() {
	vals := iso.Sample.Values()
	_, cov, err := FitFirstAndSecondHarmonics(vals[0], vals[2])
	if err != nil || iso.Grad == 0 {
		nan := math.NaN()
		iso.X0Err, iso.Y0Err, iso.EPSErr, iso.PAErr = nan, nan, nan, nan
		return
	}

	errs := make([]float64, 5)
	for k := 0; k < 5; k++ {
		errs[k] = math.Sqrt(math.Abs(cov.At(k, k)))
	}

	g := iso.Sample.Geometry
	eps := g.EPS
	pa := g.PA

	ea := math.Abs(errs[2] / iso.Grad)
	eb := math.Abs(errs[1] * (1.0 - eps) / iso.Grad)
	iso.X0Err = math.Hypot(ea*math.Cos(pa), eb*math.Sin(pa))
	iso.Y0Err = math.Hypot(ea*math.Sin(pa), eb*math.Cos(pa))
	iso.EPSErr = math.Abs(errs[4] * 2.0 * (1.0 - eps) / g.SMA / iso.Grad)
	denom := (1.0-eps)*(1.0-eps) - 1.0
	if math.Abs(denom) > 1.0e-12 {
		iso.PAErr = math.Abs(errs[3] * 2.0 * (1.0 - eps) / g.SMA / iso.Grad / denom)
	}
}

// computeDeviations measures the third and fourth harmonic residuals, the
// standard diagnostics of boxiness and diskiness, normalized by sma times
// the local gradient.
func (iso *Isophote) computeDeviations() {
	vals := iso.Sample.Values()
	g := iso.Sample.Geometry
	norm := g.SMA * math.Abs(iso.Grad)
	if norm == 0 {
		nan := math.NaN()
		iso.A3, iso.B3, iso.A4, iso.B4 = nan, nan, nan, nan
		iso.A3Err, iso.B3Err, iso.A4Err, iso.B4Err = nan, nan, nan, nan
		return
	}

	if c, cov, err := FitUpperHarmonic(vals[0], vals[2], 3); err == nil {
		iso.A3 = c[1] / norm
		iso.B3 = c[2] / norm
		iso.A3Err = math.Sqrt(math.Abs(cov.At(1, 1))) / norm
		iso.B3Err = math.Sqrt(math.Abs(cov.At(2, 2))) / norm
	} else {
		iso.A3, iso.B3, iso.A3Err, iso.B3Err = math.NaN(), math.NaN(), math.NaN(), math.NaN()
	}

	if c, cov, err := FitUpperHarmonic(vals[0], vals[2], 4); err == nil {
		iso.A4 = c[1] / norm
		iso.B4 = c[2] / norm
		iso.A4Err = math.Sqrt(math.Abs(cov.At(1, 1))) / norm
		iso.B4Err = math.Sqrt(math.Abs(cov.At(2, 2))) / norm
	} else {
		iso.A4, iso.B4, iso.A4Err, iso.B4Err = math.NaN(), math.NaN(), math.NaN(), math.NaN()
	}
}

// FixGeometry overwrites this isophote's center, ellipticity, and position
// angle with the ones from a donor isophote, keeping its own semi-major
// axis. Used to recover a failed fit from a well-behaved neighbor.
func (iso *Isophote) FixGeometry(donor *Isophote) {
	g := iso.Sample.Geometry
	dg := donor.Sample.Geometry
	g.X0 = dg.X0
	g.Y0 = dg.Y0
	g.EPS = dg.EPS
	g.PA = dg.PA
	g.initialize()
	iso.Sample.Invalidate()
}

// Less reports whether this isophote's semi-major axis is strictly smaller
// than the other's.
func (iso *Isophote) Less(other *Isophote) bool {
	return iso.SMA() < other.SMA()
}

// CompareTo orders isophotes by semi-major axis: -1, 0, or +1. Comparing
// against a value that is not an *Isophote is a programming error and
// returns an IncompatibleTypeError instead of a silent result.
func (iso *Isophote) CompareTo(other any) (int, error) {
	o, ok := other.(*Isophote)
	if !ok || o == nil {
		return 0, &IncompatibleTypeError{Value: other}
	}
	switch {
	case iso.SMA() < o.SMA():
		return -1, nil
	case iso.SMA() > o.SMA():
		return 1, nil
	}
	return 0, nil
}

// Equal reports whether the two records describe the same fit: every
// numeric field must match within a small floating tolerance, and the
// integer diagnostics exactly.
func (iso *Isophote) Equal(other *Isophote) bool {
	if other == nil {
		return false
	}
	if iso.NIter != other.NIter || iso.Valid != other.Valid ||
		iso.StopCode != other.StopCode || iso.NData != other.NData ||
		iso.NFlag != other.NFlag || iso.NPixE != other.NPixE ||
		iso.NPixC != other.NPixC {
		return false
	}
	pairs := [][2]float64{
		{iso.SMA(), other.SMA()},
		{iso.X0(), other.X0()},
		{iso.Y0(), other.Y0()},
		{iso.EPS(), other.EPS()},
		{iso.PA(), other.PA()},
		{iso.Intens, other.Intens},
		{iso.IntErr, other.IntErr},
		{iso.RMS, other.RMS},
		{iso.PixStddev, other.PixStddev},
		{iso.Grad, other.Grad},
		{iso.TFluxE, other.TFluxE},
		{iso.TFluxC, other.TFluxC},
		{iso.A3, other.A3},
		{iso.B3, other.B3},
		{iso.A4, other.A4},
		{iso.B4, other.B4},
	}
	for _, p := range pairs {
		if !floatsMatch(p[0], p[1]) {
			return false
		}
	}
	return true
}

func floatsMatch(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= smaEqualTol
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
