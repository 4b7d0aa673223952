package isophote

import (
	"log"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MinSamplePoints is the smallest number of usable (unmasked, finite)
// intensity samples that can support the harmonic fit: five coefficients for
// the first and second harmonics plus enough residual degrees of freedom to
// estimate their errors.
const MinSamplePoints = 7

// DefaultSClip is the default sigma-clipping threshold applied to the
// extracted intensity samples.
const DefaultSClip = 3.0

// SampleConfig carries the optional parameters of a sample extraction.
// The zero value selects the defaults: geometry centered on the image with
// ellipticity 0.2 and position angle 0, bilinear integration, 3-sigma
// clipping disabled (NClip = 0).
type SampleConfig struct {
	// Geometry, when set, fully determines the ellipse; the remaining
	// geometric fields are ignored.
	Geometry *Geometry

	// X0, Y0 is the ellipse center. When both are zero and no Geometry is
	// given, the image center is used.
	X0, Y0 float64

	// EPS is the ellipticity. Ignored when zero (the 0.2 default applies);
	// build an explicit Geometry to sample a perfect circle.
	EPS float64

	// PA is the position angle in radians.
	PA float64

	// AStep is the radial step, relative or in pixels depending on
	// LinearGrowth. Defaults to DefaultStep.
	AStep        float64
	LinearGrowth bool

	// SClip is the sigma-clipping threshold; NClip the number of clipping
	// iterations (0 disables clipping).
	SClip float64
	NClip int

	// Mode selects the pixel integration algorithm.
	Mode IntegrationMode
}

// Sample holds the angularly resolved intensity profile extracted along one
// ellipse, together with the statistics derived from it. A Sample is owned
// by the fitter invocation that created it and is recomputed whenever the
// geometry changes.
type Sample struct {
	Image    *Image
	Geometry *Geometry

	SClip float64
	NClip int
	Mode  IntegrationMode

	// Mean is the mean intensity along the ellipse, computed by Update.
	Mean float64

	// Gradient is the local radial intensity gradient, estimated by
	// comparing against a second ellipse slightly offset in sma.
	// GradientError and GradientRelativeError are NaN when the gradient
	// had to be carried over from a previous estimate.
	Gradient              float64
	GradientError         float64
	GradientRelativeError float64

	// SectorArea is the mean area of the sectors sampled by the
	// integrator.
	SectorArea float64

	// TotalPoints counts the extracted samples before sigma clipping;
	// ActualPoints counts those that survived.
	TotalPoints  int
	ActualPoints int

	// NonFiniteCount counts pixels that were skipped because of NaN or
	// infinite values without an explicit mask entry. When positive, a
	// warning has been logged once for this sample.
	NonFiniteCount int

	values    [3][]float64
	extracted bool
	warned    bool
	central   bool
}

// NewSample prepares an intensity sample along the ellipse of the given
// semi-major axis. The extraction itself is lazy; it runs on the first call
// to Extract or Update.
//
// Returns an InvalidGeometryError when the implied geometry is out of range.
func NewSample(img *Image, sma float64, cfg *SampleConfig) (*Sample, error) {
	if cfg == nil {
		cfg = &SampleConfig{}
	}
	g := cfg.Geometry
	if g != nil {
		var err error
		g, err = g.withSMA(sma)
		if err != nil {
			return nil, err
		}
	} else {
		x0, y0 := cfg.X0, cfg.Y0
		if x0 == 0 && y0 == 0 {
			rows, cols := img.Dims()
			x0 = float64(cols) / 2.0
			y0 = float64(rows) / 2.0
		}
		eps := cfg.EPS
		if eps == 0 {
			eps = 0.2
		}
		var err error
		g, err = NewGeometry(x0, y0, sma, eps, cfg.PA, cfg.AStep, cfg.LinearGrowth)
		if err != nil {
			return nil, err
		}
	}
	sclip := cfg.SClip
	if sclip == 0 {
		sclip = DefaultSClip
	}
	return &Sample{
		Image:                 img,
		Geometry:              g,
		SClip:                 sclip,
		NClip:                 cfg.NClip,
		Mode:                  cfg.Mode,
		GradientError:         math.NaN(),
		GradientRelativeError: math.NaN(),
	}, nil
}

// NewCentralSample builds the degenerate sample at the ellipse center, used
// for the sma = 0 record emitted at the end of an inward walk.
func NewCentralSample(img *Image, g *Geometry) *Sample {
	cg := g.Copy()
	cg.SMA = 0
	cg.EPS = 0
	cg.PA = 0
	return &Sample{
		Image:                 img,
		Geometry:              cg,
		SClip:                 DefaultSClip,
		GradientError:         math.NaN(),
		GradientRelativeError: math.NaN(),
		central:               true,
	}
}

// reshape derives a fresh, unextracted sample over the same image with a new
// geometry. Used by the fitter when perturbing ellipse parameters.
func (s *Sample) reshape(g *Geometry) *Sample {
	return &Sample{
		Image:                 s.Image,
		Geometry:              g,
		SClip:                 s.SClip,
		NClip:                 s.NClip,
		Mode:                  s.Mode,
		Gradient:              s.Gradient,
		GradientError:         math.NaN(),
		GradientRelativeError: math.NaN(),
	}
}

// Invalidate discards the extracted profile so the next Extract or Update
// re-samples the image. Needed after the geometry has been edited in place.
func (s *Sample) Invalidate() {
	s.extracted = false
	s.values = [3][]float64{}
}

// Values returns the extracted (angles, radii, intensities) arrays. Valid
// only after a successful Extract or Update.
func (s *Sample) Values() [3][]float64 {
	return s.values
}

// Extract walks the elliptical path and collects the intensity profile.
// The result is cached until Invalidate is called or the sample is
// reshaped.
//
// Returns an InsufficientDataError when fewer than MinSamplePoints usable
// samples could be collected.
func (s *Sample) Extract() ([3][]float64, error) {
	if s.extracted {
		return s.values, nil
	}
	if s.central {
		return s.extractCentral()
	}

	buf := &sampleBuffers{}
	integ, err := newIntegrator(s.Mode, s.Image, s.Geometry, buf)
	if err != nil {
		return [3][]float64{}, err
	}

	radius := s.Geometry.InitialPolarRadius
	phi := s.Geometry.InitialPolarAngle
	var sectorAreas []float64
	for phi <= 2.0*math.Pi+phiMinWidth {
		integ.integrate(radius, phi)
		sectorAreas = append(sectorAreas, integ.sectorArea())
		phi += math.Min(integ.polarAngleStep(), 0.5)
		radius = s.Geometry.Radius(phi)
	}
	s.SectorArea = stat.Mean(sectorAreas, nil)
	s.TotalPoints = len(buf.angles)
	s.NonFiniteCount = buf.nonFinite

	if buf.nonFinite > 0 && !s.Image.HasMask() && !s.warned {
		log.Printf("isophote: skipped %d non-finite pixel(s) at sma=%.2f; "+
			"attach an explicit mask to silence this warning", buf.nonFinite, s.Geometry.SMA)
		s.warned = true
	}

	ang, rad, ints := s.sigmaClip(buf.angles, buf.radii, buf.intens)
	s.ActualPoints = len(ang)
	if s.ActualPoints < MinSamplePoints {
		return [3][]float64{}, &InsufficientDataError{Needed: MinSamplePoints, Got: s.ActualPoints}
	}

	s.values = [3][]float64{ang, rad, ints}
	s.extracted = true
	return s.values, nil
}

func (s *Sample) extractCentral() ([3][]float64, error) {
	v, ok, _ := s.Image.Bilinear(s.Geometry.X0, s.Geometry.Y0)
	if !ok {
		return [3][]float64{}, &InsufficientDataError{Needed: 1, Got: 0}
	}
	s.values = [3][]float64{{0}, {0}, {v}}
	s.TotalPoints = 1
	s.ActualPoints = 1
	s.SectorArea = 0
	s.extracted = true
	return s.values, nil
}

// sigmaClip applies NClip rounds of symmetric sigma clipping at the SClip
// threshold, removing the clipped points from all three arrays.
func (s *Sample) sigmaClip(angles, radii, intens []float64) (a, r, v []float64) {
	a, r, v = angles, radii, intens
	for iter := 0; iter < s.NClip; iter++ {
		if len(v) == 0 {
			break
		}
		mean := stat.Mean(v, nil)
		sig := stat.StdDev(v, nil)
		lower := mean - s.SClip*sig
		upper := mean + s.SClip*sig

		var ka, kr, kv []float64
		for i, x := range v {
			if x >= lower && x <= upper {
				ka = append(ka, a[i])
				kr = append(kr, r[i])
				kv = append(kv, x)
			}
		}
		a, r, v = ka, kr, kv
	}
	return a, r, v
}

// Update extracts the profile (if not yet done) and refreshes the derived
// statistics: mean intensity and the local radial gradient with its error.
// The fixed-parameter mask is recorded on the geometry for the fitter.
//
// The gradient is measured against a second ellipse at (1+step)*sma. When
// the measurement comes out non-negative or much shallower than the previous
// estimate, it is retried with a doubled step; failing that, the previous
// gradient is reused at 80% of its value and the gradient error is marked
// unknown (NaN).
func (s *Sample) Update(fix [4]bool) error {
	s.Geometry.Fix = fix

	if s.central {
		vals, err := s.Extract()
		if err != nil {
			return err
		}
		s.Mean = vals[2][0]
		s.Gradient = 0
		s.GradientError = math.NaN()
		s.GradientRelativeError = math.NaN()
		return nil
	}

	step := s.Geometry.AStep
	vals, err := s.Extract()
	if err != nil {
		return err
	}
	s.Mean = stat.Mean(vals[2], nil)

	grad, gerr, err := s.gradientEstimate(step)
	if err != nil {
		return err
	}

	prev := s.Gradient
	if prev == 0 {
		// no previous estimate; a mildly declining profile is a safe guess
		prev = -0.05
	}
	if grad >= prev/3.0 {
		if g2, e2, err2 := s.gradientEstimate(2.0 * step); err2 == nil {
			grad, gerr = g2, e2
		}
	}
	if grad >= prev/3.0 {
		// no meaningful gradient measurable; carry the previous one,
		// slightly shallower, and flag its error as unknown
		grad = prev * 0.8
		gerr = math.NaN()
	}

	s.Gradient = grad
	s.GradientError = gerr
	if !math.IsNaN(gerr) && grad != 0 {
		s.GradientRelativeError = math.Abs(gerr / grad)
	} else {
		s.GradientRelativeError = math.NaN()
	}
	return nil
}

// gradientEstimate measures the radial intensity gradient by extracting a
// second sample at (1+step)*sma with the same shape and orientation.
func (s *Sample) gradientEstimate(step float64) (grad, gradErr float64, err error) {
	g := s.Geometry
	og, err := g.withSMA((1.0 + step) * g.SMA)
	if err != nil {
		return 0, 0, err
	}
	outer := s.reshape(og)
	ovals, err := outer.Extract()
	if err != nil {
		return 0, 0, err
	}
	outerMean := stat.Mean(ovals[2], nil)
	grad = (outerMean - s.Mean) / g.SMA / step

	inner := s.values[2]
	sigma := stat.StdDev(inner, nil)
	sigmaG := stat.StdDev(ovals[2], nil)
	gradErr = math.Sqrt(sigma*sigma/float64(len(inner))+sigmaG*sigmaG/float64(len(ovals[2]))) /
		g.SMA / step
	return grad, gradErr, nil
}
