package isophote

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Fit control defaults, following the classical task parameters.
const (
	DefaultConvergence      = 0.05
	DefaultMinIterations    = 10
	DefaultMaxIterations    = 50
	DefaultFlaggedFraction  = 0.7
	DefaultMaxGradientError = 0.5

	// maxEllipticity is the divergence bound on the fitted ellipticity.
	maxEllipticity = 0.95

	// unclipRetryBudget bounds how many times the fitter may halve its
	// correction step after consecutive worsening iterations.
	unclipRetryBudget = 3
)

// Stop codes reported on fitted isophotes.
const (
	// StopConverged: the fit converged normally.
	StopConverged = 0
	// StopSoft: iteration or flagged-data budget exhausted; the
	// best-effort result was kept and is still usable.
	StopSoft = 1
	// StopMinIter: the convergence criterion was already satisfied when
	// the minimum iteration count was reached.
	StopMinIter = 2
	// StopFailed: the sample could not support a fit (insufficient data
	// or singular harmonic fit). The isophote is invalid.
	StopFailed = 3
	// StopDiverged: the geometry diverged or the un-clip retry budget was
	// exhausted. The last good geometry is retained; the isophote is
	// invalid.
	StopDiverged = 4
	// StopInherited: the grower replaced a failed fit's geometry with
	// that of a neighboring isophote.
	StopInherited = 5
)

// FitState enumerates the fitter's explicit states.
type FitState int

const (
	StateInitialized FitState = iota
	StateIterating
	StateConverged
	StateSoftStop
	StateHardStop
	StateFailed
)

func (s FitState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateSoftStop:
		return "soft-stop"
	case StateHardStop:
		return "hard-stop"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// FitControl carries the knobs of one fitter invocation.
type FitControl struct {
	// Conver scales the convergence criterion: the fit converges when the
	// largest free harmonic amplitude drops below Conver times the sector
	// area times the residual RMS.
	Conver float64

	// MinIt and MaxIt bound the iteration count.
	MinIt, MaxIt int

	// FFlag is the minimum acceptable fraction of unflagged sample
	// points; below it the fit soft-stops with its best result.
	FFlag float64

	// MaxGErr is the largest acceptable relative error on the local
	// intensity gradient.
	MaxGErr float64

	// GoingInwards relaxes the gradient checks, which are unreliable when
	// walking towards the center.
	GoingInwards bool
}

// DefaultFitControl returns the standard fit parameters.
func DefaultFitControl() FitControl {
	return FitControl{
		Conver:  DefaultConvergence,
		MinIt:   DefaultMinIterations,
		MaxIt:   DefaultMaxIterations,
		FFlag:   DefaultFlaggedFraction,
		MaxGErr: DefaultMaxGradientError,
	}
}

// Fitter iteratively perturbs an ellipse geometry to null the first and
// second harmonics of the intensity sampled along it. It is a sequential,
// deterministic state machine: each invocation owns its sample and blocks
// until a terminal state is reached.
type Fitter struct {
	sample *Sample
	state  FitState
}

// NewFitter wraps a sample for fitting.
func NewFitter(sample *Sample) *Fitter {
	return &Fitter{sample: sample, state: StateInitialized}
}

// State returns the fitter's current state.
func (f *Fitter) State() FitState {
	return f.state
}

// Fit runs the iterative fit to a terminal state and returns the resulting
// isophote. Failures never surface as errors here: an abandoned fit comes
// back with Valid=false and a diagnostic stop code, so a sequence of fits
// can proceed past individual failures.
func (f *Fitter) Fit(ctl FitControl) *Isophote {
	sample := f.sample
	f.state = StateIterating

	fix := sample.Geometry.Fix
	lexceed := false
	gain := 1.0
	retries := 0
	worse := 0
	prevRMS := math.Inf(1)

	// track the sample with the smallest harmonic amplitude seen so far;
	// it becomes the result when the iteration budget runs out
	minAmp := math.Inf(1)
	var best *Sample

	firstConverged := -1

	for iter := 1; iter <= ctl.MaxIt; iter++ {
		if err := sample.Update(fix); err != nil {
			f.state = StateFailed
			return newIsophote(sample, iter, false, StopFailed)
		}
		vals := sample.Values()

		coeffs, _, err := FitFirstAndSecondHarmonics(vals[0], vals[2])
		if err != nil {
			f.state = StateFailed
			return newIsophote(sample, iter, false, StopFailed)
		}

		idx, largest := largestFreeHarmonic(coeffs, fix)
		if idx < 0 {
			// every parameter is held fixed; accept the sample as-is
			f.state = StateConverged
			return newIsophote(sample, iter, true, StopConverged)
		}

		if math.Abs(largest) < minAmp {
			minAmp = math.Abs(largest)
			best = sample
		}

		model := FirstAndSecondHarmonicFunction(vals[0], coeffs)
		residual := make([]float64, len(model))
		for i := range model {
			residual[i] = vals[2][i] - model[i]
		}
		rms := stat.StdDev(residual, nil)

		if math.Abs(largest) < ctl.Conver*sample.SectorArea*rms {
			if firstConverged < 0 {
				firstConverged = iter
			}
			if iter >= ctl.MinIt {
				code := StopConverged
				if firstConverged < ctl.MinIt {
					code = StopMinIter
				}
				f.state = StateConverged
				return newIsophote(sample, iter, true, code)
			}
		}

		// too many flagged points: keep the best fit seen so far
		if float64(sample.ActualPoints) < float64(sample.TotalPoints)*ctl.FFlag {
			if best != nil {
				sample = best
			}
			f.state = StateSoftStop
			return newIsophote(sample, iter, true, StopSoft)
		}

		// un-clip: two consecutive worsening iterations halve the
		// correction step and restart from a geometry bisected towards
		// the best one seen so far
		if rms > prevRMS {
			worse++
		} else {
			worse = 0
		}
		prevRMS = rms
		if worse >= 2 {
			retries++
			if retries > unclipRetryBudget {
				if best != nil {
					sample = best
				}
				f.state = StateHardStop
				return newIsophote(sample, iter, false, StopDiverged)
			}
			gain *= 0.5
			worse = 0
			prevRMS = math.Inf(1)
			if best != nil && best != sample {
				sample = sample.reshape(sample.Geometry.Bisect(best.Geometry))
			}
			continue
		}

		ns, ok := applyCorrection(sample, idx, largest, gain)
		if !ok {
			f.state = StateFailed
			return newIsophote(sample, iter, false, StopFailed)
		}
		if err := ns.Update(fix); err != nil {
			f.state = StateFailed
			return newIsophote(ns, iter, false, StopFailed)
		}

		var proceed bool
		proceed, lexceed = checkConditions(ns, ctl.MaxGErr, ctl.GoingInwards, lexceed)
		if !proceed {
			f.state = StateHardStop
			return newIsophote(ns, iter, false, StopDiverged)
		}
		sample = ns
	}

	// iteration budget exhausted: soft stop with the best sample
	if best != nil {
		sample = best
	}
	f.state = StateSoftStop
	return newIsophote(sample, ctl.MaxIt, true, StopSoft)
}

// largestFreeHarmonic returns the index (0..3 for a1, b1, a2, b2) and value
// of the largest harmonic amplitude among those whose ellipse parameters are
// not held fixed, or -1 when every parameter is fixed. The first harmonics
// correct the center, the second harmonics correct position angle (a2) and
// ellipticity (b2).
func largestFreeHarmonic(coeffs []float64, fix [4]bool) (int, float64) {
	centerFixed := fix[0] && fix[1]
	free := [4]bool{!centerFixed, !centerFixed, !fix[3], !fix[2]}

	idx := -1
	val := 0.0
	for k := 0; k < 4; k++ {
		if !free[k] {
			continue
		}
		c := coeffs[k+1]
		if idx < 0 || math.Abs(c) > math.Abs(val) {
			idx = k
			val = c
		}
	}
	return idx, val
}

// applyCorrection translates a harmonic amplitude into a first-order
// correction of the corresponding ellipse parameter, scaled by the local
// intensity gradient, and returns a fresh sample at the corrected geometry.
// The constants follow the classical Jedrzejewski formulation; the gain
// factor (normally 1) implements the un-clip step reduction.
func applyCorrection(s *Sample, idx int, harmonic, gain float64) (*Sample, bool) {
	g := s.Geometry
	grad := s.Gradient
	if grad == 0 {
		return nil, false
	}

	var ng *Geometry
	var err error
	switch idx {
	case 0: // a1: center shift perpendicular to the major axis
		aux := -gain * harmonic * (1.0 - g.EPS) / grad
		dx := -aux * math.Sin(g.PA)
		dy := aux * math.Cos(g.PA)
		dx, dy = maskCenterShift(dx, dy, g.Fix)
		ng, err = NewGeometry(g.X0+dx, g.Y0+dy, g.SMA, g.EPS, g.PA, g.AStep, g.LinearGrowth)

	case 1: // b1: center shift along the major axis
		aux := -gain * harmonic / grad
		dx := aux * math.Cos(g.PA)
		dy := aux * math.Sin(g.PA)
		dx, dy = maskCenterShift(dx, dy, g.Fix)
		ng, err = NewGeometry(g.X0+dx, g.Y0+dy, g.SMA, g.EPS, g.PA, g.AStep, g.LinearGrowth)

	case 2: // a2: position angle
		e := 1.0 - g.EPS
		denom := e*e - 1.0
		if denom == 0 {
			denom = -1.0e-10
		}
		corr := gain * harmonic * 2.0 * e / g.SMA / grad / denom
		ng, err = NewGeometry(g.X0, g.Y0, g.SMA, g.EPS, g.PA+corr, g.AStep, g.LinearGrowth)

	case 3: // b2: ellipticity
		corr := gain * harmonic * 2.0 * (1.0 - g.EPS) / g.SMA / grad
		eps := g.EPS - corr
		if eps < 0 {
			eps = 0
		}
		if eps > maxEllipticity {
			eps = maxEllipticity
		}
		ng, err = NewGeometry(g.X0, g.Y0, g.SMA, eps, g.PA, g.AStep, g.LinearGrowth)

	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	ng.Fix = g.Fix
	return s.reshape(ng), true
}

func maskCenterShift(dx, dy float64, fix [4]bool) (float64, float64) {
	if fix[0] {
		dx = 0
	}
	if fix[1] {
		dy = 0
	}
	return dx, dy
}

// checkConditions decides whether iteration may proceed at the candidate
// sample. A gradient that cannot be measured reliably is tolerated once
// (twice when going inwards is not involved); a diverged geometry is not.
func checkConditions(s *Sample, maxgerr float64, goingInwards, lexceed bool) (bool, bool) {
	proceed := true

	if !math.IsNaN(s.GradientError) && !math.IsNaN(s.GradientRelativeError) {
		if !goingInwards && (s.GradientRelativeError > maxgerr || s.Gradient >= 0) {
			if lexceed {
				proceed = false
			} else {
				lexceed = true
			}
		}
	} else {
		proceed = false
	}

	if s.Geometry.EPS > maxEllipticity {
		proceed = false
	}
	rows, cols := s.Image.Dims()
	if s.Geometry.X0 < 1 || s.Geometry.X0 > float64(cols) ||
		s.Geometry.Y0 < 1 || s.Geometry.Y0 > float64(rows) {
		proceed = false
	}
	return proceed, lexceed
}

// Bisect returns the geometry halfway between g and other, keeping g's
// semi-major axis and stepping rule. The fitter retreats to such a geometry
// when a sequence of corrections made the fit worse.
func (g *Geometry) Bisect(other *Geometry) *Geometry {
	ng := g.Copy()
	ng.X0 = (g.X0 + other.X0) / 2.0
	ng.Y0 = (g.Y0 + other.Y0) / 2.0
	ng.EPS = (g.EPS + other.EPS) / 2.0
	ng.PA = normalizePA((g.PA + other.PA) / 2.0)
	ng.initialize()
	return ng
}

// CentralFitter handles the degenerate sma = 0 case: there is nothing to
// iterate over, so the central intensity is reported directly.
type CentralFitter struct {
	sample *Sample
}

// NewCentralFitter wraps a central sample built by NewCentralSample.
func NewCentralFitter(sample *Sample) *CentralFitter {
	return &CentralFitter{sample: sample}
}

// Fit produces the central-pixel isophote record.
func (f *CentralFitter) Fit(_ FitControl) *Isophote {
	if err := f.sample.Update(f.sample.Geometry.Fix); err != nil {
		return newIsophote(f.sample, 0, false, StopFailed)
	}
	return newCentralIsophote(f.sample)
}
