package isophote

import (
	"fmt"
	"math"
)

const (
	// DefaultStep is the default relative step between successive
	// semi-major axis values.
	DefaultStep = 0.1

	// Angular width limits (radians) for the sectors walked by the
	// area integrators.
	phiMinWidth = 0.05
	phiMaxWidth = 0.2
)

// Geometry represents one candidate ellipse: center, semi-major axis length,
// ellipticity, and position angle, plus the stepping rule used to advance to
// the next radius and a mask of parameters held fixed during fitting.
type Geometry struct {
	// X0, Y0 is the ellipse center, in pixel coordinates.
	X0, Y0 float64

	// SMA is the semi-major axis length in pixels. Always positive.
	SMA float64

	// EPS is the ellipticity, 1 - b/a, in [0, 1).
	EPS float64

	// PA is the position angle of the semi-major axis, in radians,
	// measured from the positive x axis towards the positive y axis
	// and normalized to [-pi/2, pi/2).
	PA float64

	// AStep is the step used to advance SMA between isophotes; relative
	// when LinearGrowth is false, additive (pixels) when true.
	AStep        float64
	LinearGrowth bool

	// Fix marks which of {x0, y0, eps, pa} are held fixed by the fitter.
	Fix [4]bool

	// SectorAngularWidth is the angular width (radians) of the next
	// sector to be sampled by an area integrator. Updated as the
	// integrator walks around the ellipse.
	SectorAngularWidth float64

	// InitialPolarAngle and InitialPolarRadius locate the first sample
	// position on the elliptical path.
	InitialPolarAngle  float64
	InitialPolarRadius float64

	areaFactor float64
	phi1, phi2 float64
	sectorArea float64
}

// NewGeometry builds an ellipse geometry and validates its parameters.
//
// Parameters:
//   - x0, y0: ellipse center in pixel coordinates
//   - sma: semi-major axis length in pixels, must be positive
//   - eps: ellipticity in [0, 1)
//   - pa: position angle in radians (any value; normalized internally)
//   - astep: radial step used when advancing to the next isophote
//   - linearGrowth: additive stepping when true, multiplicative when false
//
// Returns an InvalidGeometryError when sma or eps is out of range.
func NewGeometry(x0, y0, sma, eps, pa, astep float64, linearGrowth bool) (*Geometry, error) {
	if sma <= 0 {
		return nil, &InvalidGeometryError{Reason: fmt.Sprintf("semi-major axis must be positive, got %g", sma)}
	}
	if eps < 0 || eps >= 1 {
		return nil, &InvalidGeometryError{Reason: fmt.Sprintf("ellipticity must be in [0, 1), got %g", eps)}
	}
	if astep == 0 {
		astep = DefaultStep
	}
	g := &Geometry{
		X0: x0, Y0: y0,
		SMA:          sma,
		EPS:          eps,
		PA:           normalizePA(pa),
		AStep:        astep,
		LinearGrowth: linearGrowth,
	}
	g.initialize()
	return g, nil
}

// normalizePA wraps a position angle into the canonical [-pi/2, pi/2) range.
// An ellipse is invariant under a half-turn, so this loses no information.
func normalizePA(pa float64) float64 {
	for pa < -math.Pi/2 {
		pa += math.Pi
	}
	for pa >= math.Pi/2 {
		pa -= math.Pi
	}
	return pa
}

// initialize computes the sector bookkeeping used by the sampler: the
// area factor shared by all sectors, the starting angular width, and the
// polar coordinates of the first sample position.
func (g *Geometry) initialize() {
	sma1, sma2 := g.BoundingEllipses()
	innerSMA := math.Min(sma2-sma1, 3.0)
	g.areaFactor = (sma2 - sma1) * innerSMA
	if g.SMA > 0 {
		g.SectorAngularWidth = math.Max(math.Min(innerSMA/g.SMA, phiMaxWidth), phiMinWidth)
		g.InitialPolarAngle = g.SectorAngularWidth / 2.0
		g.InitialPolarRadius = g.Radius(g.InitialPolarAngle)
	}
}

// Radius returns the polar radius of the ellipse at the given polar angle.
// The angle is measured from the semi-major axis.
func (g *Geometry) Radius(angle float64) float64 {
	e := 1.0 - g.EPS
	ca := e * math.Cos(angle)
	sa := math.Sin(angle)
	return g.SMA * e / math.Sqrt(ca*ca+sa*sa)
}

// ToPolar converts image coordinates (x, y) to polar coordinates (radius,
// angle) relative to the ellipse center and position angle. The returned
// angle is normalized to [0, 2*pi).
func (g *Geometry) ToPolar(x, y float64) (radius, angle float64) {
	rx := x - g.X0
	ry := y - g.Y0
	radius = math.Hypot(rx, ry)
	angle = math.Atan2(ry, rx) - g.PA
	for angle < 0 {
		angle += 2 * math.Pi
	}
	for angle >= 2*math.Pi {
		angle -= 2 * math.Pi
	}
	return radius, angle
}

// ToCartesian converts polar coordinates relative to the ellipse back to
// image coordinates.
func (g *Geometry) ToCartesian(radius, angle float64) (x, y float64) {
	x = radius*math.Cos(angle+g.PA) + g.X0
	y = radius*math.Sin(angle+g.PA) + g.Y0
	return x, y
}

// UpdateSMA returns the next semi-major axis value according to the growth
// rule: sma*(1+step) for multiplicative growth, sma+step for linear growth.
func (g *Geometry) UpdateSMA(step float64) float64 {
	if g.LinearGrowth {
		return g.SMA + step
	}
	return g.SMA * (1.0 + step)
}

// ResetSMA inverts the growth rule, returning the semi-major axis one step
// inward together with the step value to use for the inward walk.
func (g *Geometry) ResetSMA(step float64) (sma, newStep float64) {
	if g.LinearGrowth {
		return g.SMA - step, -step
	}
	aux := 1.0 / (1.0 + step)
	return g.SMA * aux, aux - 1.0
}

// BoundingEllipses returns the semi-major axis values of the two ellipses
// that bound the annulus sampled at the current SMA, half a step inward and
// half a step outward.
func (g *Geometry) BoundingEllipses() (sma1, sma2 float64) {
	if g.LinearGrowth {
		return g.SMA - g.AStep/2.0, g.SMA + g.AStep/2.0
	}
	return g.SMA * (1.0 - g.AStep/2.0), g.SMA * (1.0 + g.AStep/2.0)
}

// PolarAngleSectorLimits returns the angular limits of the most recently
// initialized sector.
func (g *Geometry) PolarAngleSectorLimits() (phi1, phi2 float64) {
	return g.phi1, g.phi2
}

// SectorArea returns the area of the most recently initialized sector.
func (g *Geometry) SectorArea() float64 {
	return g.sectorArea
}

// InitializeSectorGeometry computes the vertices of the elliptical sector
// centered at polar angle phi, bounded radially by the bounding ellipses and
// angularly by the current sector width. It also updates the sector area and
// the angular width to be used for the next sector, so that sectors keep an
// approximately constant area as the integrator walks around the ellipse.
func (g *Geometry) InitializeSectorGeometry(phi float64) (vx, vy [4]float64) {
	sma1, sma2 := g.BoundingEllipses()
	e := 1.0 - g.EPS

	g.phi1 = phi - g.SectorAngularWidth/2.0
	g.phi2 = phi + g.SectorAngularWidth/2.0

	aux1 := e / math.Sqrt(math.Pow(e*math.Cos(g.phi1), 2)+math.Pow(math.Sin(g.phi1), 2))
	aux2 := e / math.Sqrt(math.Pow(e*math.Cos(g.phi2), 2)+math.Pow(math.Sin(g.phi2), 2))
	r1 := sma1 * aux1
	r2 := sma2 * aux1
	r3 := sma2 * aux2
	r4 := sma1 * aux2

	vx[0], vy[0] = g.ToCartesian(r1, g.phi1)
	vx[1], vy[1] = g.ToCartesian(r2, g.phi1)
	vx[2], vy[2] = g.ToCartesian(r4, g.phi2)
	vx[3], vy[3] = g.ToCartesian(r3, g.phi2)

	sa1 := ellipseSectorArea(sma1, g.EPS, g.phi1, r1)
	sa2 := ellipseSectorArea(sma2, g.EPS, g.phi1, r2)
	sa3 := ellipseSectorArea(sma2, g.EPS, g.phi2, r3)
	sa4 := ellipseSectorArea(sma1, g.EPS, g.phi2, r4)
	g.sectorArea = math.Abs((sa3 - sa2) - (sa4 - sa1))

	// angular width for the next sector, chosen to keep sector area
	// roughly constant along the path
	g.SectorAngularWidth = math.Max(math.Min(g.areaFactor/(r3-r4)/r4, phiMaxWidth), phiMinWidth)

	return vx, vy
}

// ellipseSectorArea returns the area of the elliptical sector between polar
// angle zero and phi, for an ellipse of the given semi-major axis and
// ellipticity, where r is the polar radius at phi.
func ellipseSectorArea(sma, eps, phi, r float64) float64 {
	aux := r * math.Cos(phi) / sma
	if math.Abs(aux) >= 1.0 {
		aux = math.Copysign(1.0, aux)
	}
	return math.Abs(sma * sma * (1.0 - eps) / 2.0 * math.Acos(aux))
}

// Copy returns a deep copy of the geometry.
func (g *Geometry) Copy() *Geometry {
	c := *g
	return &c
}

// withSMA derives a new geometry at a different semi-major axis, keeping the
// center, shape, and orientation. Used when stepping between isophotes and
// when building the offset sample for gradient estimation.
func (g *Geometry) withSMA(sma float64) (*Geometry, error) {
	ng, err := NewGeometry(g.X0, g.Y0, sma, g.EPS, g.PA, g.AStep, g.LinearGrowth)
	if err != nil {
		return nil, err
	}
	ng.Fix = g.Fix
	return ng, nil
}
