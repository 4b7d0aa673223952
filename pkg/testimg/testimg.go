// Package testimg generates synthetic galaxy images with a known elliptical
// isophote structure. The images follow a de Vaucouleurs surface brightness
// profile on concentric, aligned ellipses, so fits against them have exact
// reference values for center, ellipticity, and position angle.
package testimg

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options describes the synthetic image.
type Options struct {
	// NX, NY are the image dimensions in pixels.
	NX, NY int

	// X0, Y0 is the galaxy center; the image center when both are zero.
	X0, Y0 float64

	// Background is the constant sky level added everywhere.
	Background float64

	// Noise is the standard deviation of the additive Gaussian noise.
	Noise float64

	// I0 is the surface brightness at the reference semi-major axis SMA.
	I0 float64

	// SMA, EPS, PA define the reference isophote: its semi-major axis,
	// ellipticity, and position angle (radians).
	SMA, EPS, PA float64

	// Seed seeds the noise generator, so images are reproducible.
	Seed uint64
}

// DefaultOptions returns the standard synthetic galaxy: 512x512 pixels,
// background 100, reference isophote of intensity 100 at sma 40 with
// ellipticity 0.2.
func DefaultOptions() Options {
	return Options{
		NX: 512, NY: 512,
		Background: 100.0,
		Noise:      1.0e-6,
		I0:         100.0,
		SMA:        40.0,
		EPS:        0.2,
		PA:         0.0,
	}
}

// deVaucouleurs shape constant: ties the profile scale to the reference
// radius so that I(SMA) = I0.
const profileConst = 7.669

// Make renders the synthetic image.
func Make(opts Options) (*mat.Dense, error) {
	if opts.NX <= 1 || opts.NY <= 1 {
		return nil, fmt.Errorf("testimg: image dimensions must exceed 1x1, got %dx%d", opts.NX, opts.NY)
	}
	if opts.SMA <= 0 || opts.EPS < 0 || opts.EPS >= 1 {
		return nil, fmt.Errorf("testimg: reference isophote out of range (sma=%g eps=%g)", opts.SMA, opts.EPS)
	}

	x0, y0 := opts.X0, opts.Y0
	if x0 == 0 && y0 == 0 {
		x0 = float64(opts.NX) / 2.0
		y0 = float64(opts.NY) / 2.0
	}

	noise := distuv.Normal{
		Mu:    0,
		Sigma: opts.Noise,
		Src:   rand.NewSource(opts.Seed),
	}

	e := 1.0 - opts.EPS
	img := mat.NewDense(opts.NY, opts.NX, nil)
	for j := 0; j < opts.NY; j++ {
		for i := 0; i < opts.NX; i++ {
			rx := float64(i) - x0
			ry := float64(j) - y0
			radius := math.Hypot(rx, ry)
			angle := math.Atan2(ry, rx) - opts.PA

			// semi-major axis of the isophote through this pixel
			ca := e * math.Cos(angle)
			sa := math.Sin(angle)
			eRadius := opts.SMA * e / math.Sqrt(ca*ca+sa*sa)
			r := radius / eRadius * opts.SMA

			value := opts.Background +
				opts.I0*math.Exp(-profileConst*(math.Pow(r/opts.SMA, 0.25)-1.0))
			if opts.Noise > 0 {
				value += noise.Rand()
			}
			img.Set(j, i, value)
		}
	}
	return img, nil
}
