package isophote

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IntegrationMode selects how pixel intensities are accumulated along the
// elliptical path.
type IntegrationMode string

const (
	// IntegrBilinear samples one bilinearly interpolated value per unit of
	// arc length. The default mode.
	IntegrBilinear IntegrationMode = "bilinear"

	// IntegrNearest samples the nearest pixel, one per unit of arc length.
	IntegrNearest IntegrationMode = "nearest_neighbor"

	// IntegrMean averages all pixels inside each elliptical sector.
	IntegrMean IntegrationMode = "mean"

	// IntegrMedian takes the median of all pixels inside each sector.
	IntegrMedian IntegrationMode = "median"
)

// sampleBuffers collects the angularly resolved intensity profile as an
// integrator walks around the ellipse.
type sampleBuffers struct {
	angles []float64
	radii  []float64
	intens []float64

	// nonFinite counts pixels skipped because of non-finite values that
	// were not covered by an explicit mask.
	nonFinite int
}

func (b *sampleBuffers) store(phi, radius, intensity float64) {
	b.angles = append(b.angles, phi)
	b.radii = append(b.radii, radius)
	b.intens = append(b.intens, intensity)
}

// integrator accumulates intensity samples at successive polar positions on
// the ellipse and tells the caller how far to advance the polar angle for
// the next sample.
type integrator interface {
	integrate(radius, phi float64)
	polarAngleStep() float64
	sectorArea() float64
}

func newIntegrator(mode IntegrationMode, img *Image, g *Geometry, buf *sampleBuffers) (integrator, error) {
	switch mode {
	case "", IntegrBilinear:
		return &bilinearIntegrator{img: img, geom: g, buf: buf}, nil
	case IntegrNearest:
		return &nearestIntegrator{img: img, geom: g, buf: buf}, nil
	case IntegrMean:
		return newAreaIntegrator(img, g, buf, false), nil
	case IntegrMedian:
		return newAreaIntegrator(img, g, buf, true), nil
	default:
		return nil, fmt.Errorf("unknown integration mode %q", mode)
	}
}

// bilinearIntegrator samples sub-pixel positions on the ellipse, one per
// unit of arc length, interpolating between the four surrounding pixels.
type bilinearIntegrator struct {
	img  *Image
	geom *Geometry
	buf  *sampleBuffers
	r    float64
}

func (bi *bilinearIntegrator) integrate(radius, phi float64) {
	bi.r = radius
	x, y := bi.geom.ToCartesian(radius, phi)
	v, ok, nf := bi.img.Bilinear(x, y)
	bi.buf.nonFinite += nf
	if ok {
		bi.buf.store(phi, radius, v)
	}
}

func (bi *bilinearIntegrator) polarAngleStep() float64 {
	// one sample per pixel of arc length
	return 1.0 / bi.r
}

func (bi *bilinearIntegrator) sectorArea() float64 {
	// the effective area of a bilinear sub-pixel sample
	return 2.0
}

// nearestIntegrator samples the pixel nearest to each position on the
// ellipse, one per unit of arc length.
type nearestIntegrator struct {
	img  *Image
	geom *Geometry
	buf  *sampleBuffers
	r    float64
}

func (ni *nearestIntegrator) integrate(radius, phi float64) {
	ni.r = radius
	x, y := ni.geom.ToCartesian(radius, phi)
	i := int(math.Round(x))
	j := int(math.Round(y))
	v, ok, nf := ni.img.pixel(j, i)
	if nf && !ni.img.HasMask() {
		ni.buf.nonFinite++
	}
	if ok {
		ni.buf.store(phi, radius, v)
	}
}

func (ni *nearestIntegrator) polarAngleStep() float64 {
	return 1.0 / ni.r
}

func (ni *nearestIntegrator) sectorArea() float64 {
	return 1.0
}

// areaIntegrator accumulates every pixel inside an elliptical sector and
// reduces it to a mean or median. Sectors with fewer than 7 usable pixels
// fall back to a single bilinear sample, since the sector statistic would
// be dominated by shot noise there.
type areaIntegrator struct {
	img    *Image
	geom   *Geometry
	buf    *sampleBuffers
	median bool

	fallback *bilinearIntegrator
	area     float64
	phistep  float64
	phi      float64
}

func newAreaIntegrator(img *Image, g *Geometry, buf *sampleBuffers, median bool) *areaIntegrator {
	return &areaIntegrator{
		img: img, geom: g, buf: buf, median: median,
		fallback: &bilinearIntegrator{img: img, geom: g, buf: buf},
	}
}

func (ai *areaIntegrator) integrate(radius, phi float64) {
	ai.phi = phi
	vx, vy := ai.geom.InitializeSectorGeometry(phi)
	ai.area = ai.geom.SectorArea()
	ai.phistep = ai.geom.SectorAngularWidth

	i1 := int(floats.Min(vx[:])) - 1
	j1 := int(floats.Min(vy[:])) - 1
	i2 := int(floats.Max(vx[:])) + 1
	j2 := int(floats.Max(vy[:])) + 1

	rows, cols := ai.img.Dims()
	if i1 <= 0 || i2 >= cols || j1 <= 0 || j2 >= rows {
		// sector partially outside the image: skip this position
		return
	}

	phi1, phi2 := ai.geom.PolarAngleSectorLimits()
	sma1, sma2 := ai.geom.BoundingEllipses()
	e := 1.0 - ai.geom.EPS

	var values []float64
	for j := j1; j <= j2; j++ {
		for i := i1; i <= i2; i++ {
			rp, phip := ai.geom.ToPolar(float64(i), float64(j))
			if phip < phi1 || phip >= phi2 {
				continue
			}
			aux := e / math.Sqrt(math.Pow(e*math.Cos(phip), 2)+math.Pow(math.Sin(phip), 2))
			r1 := sma1 * aux
			r2 := sma2 * aux
			if rp < r1 || rp >= r2 {
				continue
			}
			v, ok, nf := ai.img.pixel(j, i)
			if nf && !ai.img.HasMask() {
				ai.buf.nonFinite++
			}
			if ok {
				values = append(values, v)
			}
		}
	}

	if len(values) < 7 {
		ai.fallback.integrate(radius, phi)
		ai.area = ai.fallback.sectorArea()
		return
	}

	var sample float64
	if ai.median {
		sort.Float64s(values)
		sample = stat.Quantile(0.5, stat.Empirical, values, nil)
	} else {
		sample = stat.Mean(values, nil)
	}
	ai.buf.store(phi, radius, sample)
}

func (ai *areaIntegrator) polarAngleStep() float64 {
	_, phi2 := ai.geom.PolarAngleSectorLimits()
	return ai.geom.SectorAngularWidth/2.0 + phi2 - ai.phi
}

func (ai *areaIntegrator) sectorArea() float64 {
	return ai.area
}

