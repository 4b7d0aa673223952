package isophote

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FitFirstAndSecondHarmonics fits the model
//
//	y(phi) = y0 + a1*sin(phi) + b1*cos(phi) + a2*sin(2*phi) + b2*cos(2*phi)
//
// to the intensity samples by linear least squares.
//
// Parameters:
//   - phi: polar angles of the samples, radians
//   - intens: intensity at each angle
//
// Returns the coefficient vector [y0, a1, b1, a2, b2] and its covariance
// matrix. The covariance is the inverse normal matrix scaled by the residual
// variance, so its diagonal gives squared standard errors of the
// coefficients. Fails when fewer than 5 points are supplied or when the
// normal matrix is singular.
func FitFirstAndSecondHarmonics(phi, intens []float64) ([]float64, *mat.Dense, error) {
	design := func(p float64) []float64 {
		return []float64{1.0, math.Sin(p), math.Cos(p), math.Sin(2 * p), math.Cos(2 * p)}
	}
	return leastSquaresFit(phi, intens, 5, design)
}

// FitUpperHarmonic fits the model
//
//	y(phi) = y0 + an*sin(n*phi) + bn*cos(n*phi)
//
// for a single harmonic order n, returning [y0, an, bn] and its covariance.
// Orders 3 and 4 quantify the deviations of an isophote from a perfect
// ellipse.
func FitUpperHarmonic(phi, intens []float64, order int) ([]float64, *mat.Dense, error) {
	n := float64(order)
	design := func(p float64) []float64 {
		return []float64{1.0, math.Sin(n * p), math.Cos(n * p)}
	}
	return leastSquaresFit(phi, intens, 3, design)
}

// FirstAndSecondHarmonicFunction evaluates the first-and-second harmonic
// model at each angle, given the coefficients [y0, a1, b1, a2, b2].
func FirstAndSecondHarmonicFunction(phi []float64, c []float64) []float64 {
	out := make([]float64, len(phi))
	for i, p := range phi {
		out[i] = c[0] + c[1]*math.Sin(p) + c[2]*math.Cos(p) +
			c[3]*math.Sin(2*p) + c[4]*math.Cos(2*p)
	}
	return out
}

func leastSquaresFit(phi, intens []float64, nparams int, design func(float64) []float64) ([]float64, *mat.Dense, error) {
	n := len(phi)
	if len(intens) != n {
		return nil, nil, fmt.Errorf("harmonic fit: angle and intensity lengths differ (%d vs %d)", n, len(intens))
	}
	if n < nparams {
		return nil, nil, &InsufficientDataError{Needed: nparams, Got: n}
	}

	a := mat.NewDense(n, nparams, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a.SetRow(i, design(phi[i]))
		b.SetVec(i, intens[i])
	}

	var qr mat.QR
	qr.Factorize(a)
	coeffVec := mat.NewVecDense(nparams, nil)
	if err := qr.SolveVecTo(coeffVec, false, b); err != nil {
		return nil, nil, fmt.Errorf("harmonic fit is singular: %w", err)
	}

	coeffs := make([]float64, nparams)
	for j := 0; j < nparams; j++ {
		coeffs[j] = coeffVec.AtVec(j)
	}

	// residual variance for covariance scaling
	rss := 0.0
	for i := 0; i < n; i++ {
		row := design(phi[i])
		pred := 0.0
		for j, v := range row {
			pred += v * coeffs[j]
		}
		d := intens[i] - pred
		rss += d * d
	}
	dof := n - nparams
	if dof < 1 {
		dof = 1
	}
	sigma2 := rss / float64(dof)

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var cov mat.Dense
	if err := cov.Inverse(&ata); err != nil {
		return nil, nil, fmt.Errorf("harmonic fit normal matrix is singular: %w", err)
	}
	cov.Scale(sigma2, &cov)

	return coeffs, &cov, nil
}
