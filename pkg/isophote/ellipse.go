package isophote

import (
	"math"
)

// Ellipse drives the fitter across a whole image: starting from a seed
// geometry it walks outward in semi-major axis, then inward towards the
// center, assembling the fitted isophotes into one list.
type Ellipse struct {
	Image    *Image
	Geometry *Geometry
}

// NewEllipse prepares a fit of the given image. The geometry seeds the first
// isophote; when nil, a default geometry centered on the image with
// ellipticity 0.2 is used.
func NewEllipse(img *Image, g *Geometry) *Ellipse {
	return &Ellipse{Image: img, Geometry: g}
}

// FitImageOptions carries the knobs of a whole-image fit. The zero value
// selects the defaults.
type FitImageOptions struct {
	// SMA0 is the starting semi-major axis; when zero, the seed
	// geometry's sma (or 10 pixels) is used.
	SMA0 float64

	// MinSMA and MaxSMA bound the walk. MinSMA of zero means the walk
	// ends with the central pixel record at sma = 0; MaxSMA of zero
	// means the outward walk is bounded only by the stopping conditions.
	MinSMA, MaxSMA float64

	// Step advances the semi-major axis between isophotes; relative by
	// default, in pixels when LinearGrowth is set.
	Step         float64
	LinearGrowth bool

	// Fitter controls; zero values select the defaults.
	Conver         float64
	MinIt, MaxIt   int
	FFlag, MaxGErr float64

	// Sampling controls.
	SClip float64
	NClip int
	Mode  IntegrationMode

	// MinIntensity stops the outward walk once the fitted intensity
	// drops to or below it. Zero disables the check.
	MinIntensity float64

	// Parameters to hold fixed during fitting.
	FixCenter, FixEPS, FixPA bool
}

func (o *FitImageOptions) withDefaults() FitImageOptions {
	out := *o
	if out.Step == 0 {
		out.Step = DefaultStep
	}
	if out.Conver == 0 {
		out.Conver = DefaultConvergence
	}
	if out.MinIt == 0 {
		out.MinIt = DefaultMinIterations
	}
	if out.MaxIt == 0 {
		out.MaxIt = DefaultMaxIterations
	}
	if out.FFlag == 0 {
		out.FFlag = DefaultFlaggedFraction
	}
	if out.MaxGErr == 0 {
		out.MaxGErr = DefaultMaxGradientError
	}
	if out.SClip == 0 {
		out.SClip = DefaultSClip
	}
	return out
}

func (o *FitImageOptions) control() FitControl {
	return FitControl{
		Conver:  o.Conver,
		MinIt:   o.MinIt,
		MaxIt:   o.MaxIt,
		FFlag:   o.FFlag,
		MaxGErr: o.MaxGErr,
	}
}

// Fit fits a full sequence of elliptical isophotes to the image, seeding
// from the given geometry. It is shorthand for NewEllipse followed by
// FitImage.
func Fit(img *Image, g *Geometry, opts FitImageOptions) IsophoteList {
	return NewEllipse(img, g).FitImage(opts)
}

// FitImage walks outward from the starting semi-major axis until a stopping
// condition is hit, then inward towards the center, and returns the fitted
// isophotes sorted by semi-major axis ascending.
//
// Failed steps never abort the walk: they are recorded as invalid isophotes
// with geometry inherited from the previous good fit, and the walk in a
// direction only stops after two consecutive unrecoverable steps. A fit
// that fails on the very first isophote returns an empty list, since there
// is no meaningful geometry to grow from.
func (e *Ellipse) FitImage(opts FitImageOptions) IsophoteList {
	o := opts.withDefaults()
	ctl := o.control()

	sma := o.SMA0
	if sma == 0 {
		if e.Geometry != nil {
			sma = e.Geometry.SMA
		} else {
			sma = 10.0
		}
	}

	list := IsophoteList{}

	// outward walk
	hardStreak := 0
	first := true
	step := o.Step
	for {
		c := ctl
		if first {
			// the first isophote carries the burden of finding the
			// overall solution; give it a longer minimum run
			c.MinIt *= 2
			first = false
		}
		iso := e.fitStep(sma, step, &o, c, false, list)
		if iso.Valid {
			list = append(list, iso)
			hardStreak = 0
			if o.MinIntensity > 0 && iso.Intens <= o.MinIntensity {
				break
			}
		} else {
			if len(list) == 0 {
				// seed geometry too far off for any solution
				return IsophoteList{}
			}
			iso = fixupFailed(iso, list[len(list)-1])
			list = append(list, iso)
			hardStreak++
			if hardStreak >= 2 {
				break
			}
		}
		sma = iso.Sample.Geometry.UpdateSMA(step)
		if o.MaxSMA > 0 && sma >= o.MaxSMA {
			break
		}
	}

	// inward walk, seeded from the first outward fit
	if len(list) > 0 {
		seed := list[0]
		var istep float64
		sma, istep = seed.Sample.Geometry.ResetSMA(o.Step)
		for sma > math.Max(o.MinSMA, 0.5) {
			c := ctl
			c.GoingInwards = true
			iso := e.fitStep(sma, istep, &o, c, true, list)
			if iso.Valid {
				list = append(list, iso)
			} else {
				if iso.StopCode == StopFailed {
					// too few points this close to the center;
					// nothing further in can fit either
					break
				}
				iso = fixupFailed(iso, list[len(list)-1])
				list = append(list, iso)
			}
			sma = iso.Sample.Geometry.UpdateSMA(istep)
		}

		if o.MinSMA == 0 {
			central := NewCentralSample(e.Image, list[0].Sample.Geometry)
			iso := NewCentralFitter(central).Fit(ctl)
			if iso.Valid {
				list = append(list, iso)
			}
		}
	}

	list.Sort()
	return list
}

// FitIsophote fits a single isophote at the given semi-major axis, seeding
// the geometry from the ellipse's own seed. Use FitImage to fit a full
// sequence.
func (e *Ellipse) FitIsophote(sma float64, opts FitImageOptions) *Isophote {
	o := opts.withDefaults()
	return e.fitStep(sma, o.Step, &o, o.control(), false, nil)
}

// fitStep runs one fit at the given semi-major axis. The geometry is seeded
// from the most recent valid isophote in the list, falling back to the
// ellipse's seed geometry, then to a default centered on the image.
func (e *Ellipse) fitStep(sma, step float64, o *FitImageOptions, ctl FitControl, goingInwards bool, list IsophoteList) *Isophote {
	seed := e.Geometry
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Valid && list[i].SMA() > 0 {
			seed = list[i].Sample.Geometry
			break
		}
	}

	fix := [4]bool{o.FixCenter, o.FixCenter, o.FixEPS, o.FixPA}

	cfg := &SampleConfig{
		AStep:        step,
		LinearGrowth: o.LinearGrowth,
		SClip:        o.SClip,
		NClip:        o.NClip,
		Mode:         o.Mode,
	}
	if seed != nil {
		sg := seed.Copy()
		sg.AStep = step
		sg.LinearGrowth = o.LinearGrowth
		cfg.Geometry = sg
	}

	sample, err := NewSample(e.Image, sma, cfg)
	if err != nil {
		// out-of-range geometry at this radius; report as a failed step
		fallback := &Sample{Image: e.Image, Geometry: seedOrDefault(seed, e.Image, sma)}
		return newIsophote(fallback, 0, false, StopFailed)
	}
	sample.Geometry.Fix = fix

	fitter := NewFitter(sample)
	return fitter.Fit(ctl)
}

func seedOrDefault(seed *Geometry, img *Image, sma float64) *Geometry {
	if seed != nil {
		g := seed.Copy()
		g.SMA = sma
		return g
	}
	rows, cols := img.Dims()
	g, err := NewGeometry(float64(cols)/2, float64(rows)/2, math.Max(sma, 1), 0.2, 0, DefaultStep, false)
	if err != nil {
		// unreachable: the arguments are in range by construction
		panic(err)
	}
	return g
}

// fixupFailed inherits the donor's geometry into a failed isophote and
// re-measures the record there, tagging it with StopInherited so consumers
// can tell it apart from a genuine fit.
func fixupFailed(iso *Isophote, donor *Isophote) *Isophote {
	iso.FixGeometry(donor)
	sample := iso.Sample
	if err := sample.Update(sample.Geometry.Fix); err != nil {
		iso.StopCode = StopInherited
		return iso
	}
	return newIsophote(sample, iso.NIter, false, StopInherited)
}
