package isophote

import (
	"math"
	"testing"

	"ellipsefit/pkg/testimg"
)

func TestFitImage(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	list := Fit(img, nil, FitImageOptions{SMA0: 10, MaxSMA: 100})

	if list.Len() < 30 {
		t.Fatalf("fitted %d isophotes, want at least 30", list.Len())
	}

	// sorted ascending, bounded by the walk limits
	for i := 1; i < list.Len(); i++ {
		if list[i].SMA() < list[i-1].SMA() {
			t.Fatalf("list not sorted: sma[%d]=%g after %g",
				i, list[i].SMA(), list[i-1].SMA())
		}
	}
	if last := list[list.Len()-1].SMA(); last > 115 {
		t.Errorf("outermost sma = %g, want bounded near MaxSMA=100", last)
	}

	// the inward walk ends with the central pixel record
	if list[0].SMA() != 0 {
		t.Errorf("innermost sma = %g, want the central record at 0", list[0].SMA())
	}
	if !list[0].Valid || list[0].NData != 1 {
		t.Errorf("central record: valid=%v ndata=%d", list[0].Valid, list[0].NData)
	}

	valid := 0
	for _, iso := range list {
		if iso.Valid {
			valid++
		}
		if iso.NIter > DefaultMaxIterations {
			t.Errorf("sma %g ran %d iterations, cap is %d",
				iso.SMA(), iso.NIter, DefaultMaxIterations)
		}
	}
	if float64(valid) < 0.8*float64(list.Len()) {
		t.Errorf("only %d of %d isophotes valid", valid, list.Len())
	}

	// the fitted geometry near the reference isophote matches the truth
	ref := list.GetClosest(40)
	if !ref.Valid {
		t.Fatalf("isophote near sma 40 invalid, stop code %d", ref.StopCode)
	}
	if math.Abs(ref.EPS()-0.2) > 0.05 {
		t.Errorf("eps near sma 40 = %g, want 0.2 within 0.05", ref.EPS())
	}
	if math.Abs(ref.X0()-256) > 1 || math.Abs(ref.Y0()-256) > 1 {
		t.Errorf("center near sma 40 = (%g, %g), want (256, 256) within 1",
			ref.X0(), ref.Y0())
	}
	if ref.Intens < 180 || ref.Intens > 220 {
		t.Errorf("intens near sma 40 = %g, want near 200", ref.Intens)
	}

	// surface brightness declines monotonically along the profile
	prev := math.Inf(1)
	for _, iso := range list {
		if !iso.Valid || iso.SMA() < 1 {
			continue
		}
		if iso.Intens >= prev {
			t.Errorf("intensity not declining at sma %g: %g after %g",
				iso.SMA(), iso.Intens, prev)
		}
		prev = iso.Intens
	}

	// the central peak towers over every fitted isophote
	if list[0].Intens <= list[1].Intens {
		t.Errorf("central intensity %g not above innermost isophote %g",
			list[0].Intens, list[1].Intens)
	}
}

func TestFitImageRespectsMinSMA(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	list := Fit(img, nil, FitImageOptions{SMA0: 10, MinSMA: 5, MaxSMA: 20})

	if list.Len() == 0 {
		t.Fatal("no isophotes fitted")
	}
	for _, iso := range list {
		if iso.SMA() < 5 {
			t.Errorf("sma %g below MinSMA=5", iso.SMA())
		}
	}
	// no central record when the walk stops above zero
	if list[0].SMA() == 0 {
		t.Error("central record emitted despite MinSMA > 0")
	}
}

func TestFitImageMinIntensityStopsOutwardWalk(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	list := Fit(img, nil, FitImageOptions{SMA0: 10, MinSMA: 5, MinIntensity: 150})

	if list.Len() == 0 {
		t.Fatal("no isophotes fitted")
	}
	outer := list[list.Len()-1]
	if outer.Intens > 150 {
		t.Errorf("outermost intens = %g, walk should have continued below 150",
			outer.Intens)
	}
	// the profile crosses 150 near sma 57; the walk must not go far beyond
	if outer.SMA() > 80 {
		t.Errorf("outermost sma = %g, want the walk stopped near 60", outer.SMA())
	}
}

func TestFitImageEmptyOnUnfittableImage(t *testing.T) {
	// a flat image has no isophote structure to converge on
	img := constantImage(64, 64, 50)
	list := Fit(img, nil, FitImageOptions{SMA0: 10, MaxSMA: 20})
	if list.Len() != 0 {
		t.Errorf("fitted %d isophotes on a flat image, want none", list.Len())
	}
}

func TestFitImageWithSeedGeometry(t *testing.T) {
	opts := testimg.DefaultOptions()
	opts.EPS = 0.4
	opts.PA = math.Pi / 4
	img := galaxyImage(t, opts)

	seed, err := NewGeometry(257, 255, 40, 0.3, 0.6, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	list := Fit(img, seed, FitImageOptions{MinSMA: 10, MaxSMA: 80})
	if list.Len() == 0 {
		t.Fatal("no isophotes fitted from seed geometry")
	}

	ref := list.GetClosest(40)
	if !ref.Valid {
		t.Fatalf("isophote near sma 40 invalid, stop code %d", ref.StopCode)
	}
	if math.Abs(ref.EPS()-0.4) > 0.05 {
		t.Errorf("eps = %g, want 0.4 within 0.05", ref.EPS())
	}
	if math.Abs(ref.PA()-math.Pi/4) > 0.1 {
		t.Errorf("pa = %g, want %g within 0.1", ref.PA(), math.Pi/4)
	}
}

func TestFitImageFixedGeometry(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	list := Fit(img, nil, FitImageOptions{
		SMA0: 10, MinSMA: 5, MaxSMA: 60,
		FixCenter: true, FixEPS: true, FixPA: true,
	})
	if list.Len() == 0 {
		t.Fatal("no isophotes fitted")
	}
	for _, iso := range list {
		if iso.X0() != 256 || iso.Y0() != 256 {
			t.Errorf("sma %g: fixed center moved to (%g, %g)",
				iso.SMA(), iso.X0(), iso.Y0())
		}
		if iso.EPS() != 0.2 {
			t.Errorf("sma %g: fixed eps changed to %g", iso.SMA(), iso.EPS())
		}
		if iso.PA() != 0 {
			t.Errorf("sma %g: fixed pa changed to %g", iso.SMA(), iso.PA())
		}
	}
}

func TestFitIsophote(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	e := NewEllipse(img, nil)
	iso := e.FitIsophote(40, FitImageOptions{})

	if !iso.Valid {
		t.Fatalf("single isophote fit invalid, stop code %d", iso.StopCode)
	}
	if iso.SMA() != 40 {
		t.Errorf("sma = %g, want 40", iso.SMA())
	}
	if iso.Intens < 199 || iso.Intens > 201 {
		t.Errorf("intens = %g, want within [199, 201]", iso.Intens)
	}
}

func TestFitImageLinearGrowth(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	list := Fit(img, nil, FitImageOptions{
		SMA0: 10, MinSMA: 5, MaxSMA: 30,
		Step: 2.0, LinearGrowth: true,
	})
	if list.Len() < 5 {
		t.Fatalf("fitted %d isophotes, want at least 5", list.Len())
	}
	// successive smas differ by the fixed pixel step
	for i := 1; i < list.Len(); i++ {
		d := list[i].SMA() - list[i-1].SMA()
		if math.Abs(d-2.0) > 1e-6 {
			t.Errorf("sma gap %d = %g, want 2 for linear growth", i, d)
		}
	}
}
