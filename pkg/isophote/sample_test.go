package isophote

import (
	"errors"
	"math"
	"testing"

	"ellipsefit/pkg/testimg"
)

func galaxyImage(t *testing.T, opts testimg.Options) *Image {
	t.Helper()
	data, err := testimg.Make(opts)
	if err != nil {
		t.Fatalf("building synthetic image: %v", err)
	}
	return NewImage(data)
}

func TestSampleExtractConstantEllipse(t *testing.T) {
	img := constantImage(101, 101, 77)
	g, err := NewGeometry(50, 50, 20, 0, 0, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSample(img, 20, &SampleConfig{Geometry: g})
	if err != nil {
		t.Fatal(err)
	}

	vals, err := s.Extract()
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(vals[0]) != len(vals[1]) || len(vals[0]) != len(vals[2]) {
		t.Fatalf("value arrays have differing lengths: %d %d %d",
			len(vals[0]), len(vals[1]), len(vals[2]))
	}
	if s.TotalPoints < MinSamplePoints {
		t.Fatalf("total points = %d, want >= %d", s.TotalPoints, MinSamplePoints)
	}
	for i, v := range vals[2] {
		if math.Abs(v-77) > 1e-9 {
			t.Errorf("sample %d = %g, want 77", i, v)
		}
	}
	for i, r := range vals[1] {
		if math.Abs(r-20) > 1e-9 {
			t.Errorf("sample %d radius = %g, want 20 on a circle", i, r)
		}
	}
}

func TestSampleDefaultsToImageCenter(t *testing.T) {
	img := constantImage(101, 101, 1)
	s, err := NewSample(img, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Geometry.X0 != 50.5 || s.Geometry.Y0 != 50.5 {
		t.Errorf("default center = (%g, %g), want (50.5, 50.5)",
			s.Geometry.X0, s.Geometry.Y0)
	}
	if s.Geometry.EPS != 0.2 {
		t.Errorf("default eps = %g, want 0.2", s.Geometry.EPS)
	}
	if s.SClip != DefaultSClip {
		t.Errorf("default sclip = %g, want %g", s.SClip, DefaultSClip)
	}
}

func TestSampleUpdateOnGalaxy(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	s, err := NewSample(img, 40, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update([4]bool{}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// the reference isophote carries intensity background + I0 = 200
	if s.Mean < 199 || s.Mean > 201 {
		t.Errorf("mean intensity = %g, want within [199, 201]", s.Mean)
	}
	if s.Gradient >= 0 {
		t.Errorf("gradient = %g, want negative on a declining profile", s.Gradient)
	}
	if s.Gradient < -6 || s.Gradient > -3 {
		t.Errorf("gradient = %g, outside the expected [-6, -3] range", s.Gradient)
	}
	if math.IsNaN(s.GradientRelativeError) {
		t.Error("gradient relative error unexpectedly unknown")
	}
	if s.GradientRelativeError > DefaultMaxGradientError {
		t.Errorf("gradient relative error = %g, want below %g",
			s.GradientRelativeError, DefaultMaxGradientError)
	}
	if s.SectorArea <= 0 {
		t.Errorf("sector area = %g, want > 0", s.SectorArea)
	}
}

func TestSampleExtractIsCached(t *testing.T) {
	img := galaxyImage(t, testimg.DefaultOptions())
	s, err := NewSample(img, 40, nil)
	if err != nil {
		t.Fatal(err)
	}
	v1, err := s.Extract()
	if err != nil {
		t.Fatal(err)
	}
	v2, err := s.Extract()
	if err != nil {
		t.Fatal(err)
	}
	if &v1[2][0] != &v2[2][0] {
		t.Error("second Extract re-sampled instead of returning the cache")
	}

	s.Invalidate()
	v3, err := s.Extract()
	if err != nil {
		t.Fatal(err)
	}
	if len(v3[2]) != len(v1[2]) {
		t.Errorf("re-extraction produced %d points, want %d", len(v3[2]), len(v1[2]))
	}
}

func TestSampleInsufficientData(t *testing.T) {
	// an ellipse entirely outside the image yields no usable points
	img := constantImage(20, 20, 1)
	g, err := NewGeometry(200, 200, 40, 0.2, 0, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSample(img, 40, &SampleConfig{Geometry: g})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Extract()
	var derr *InsufficientDataError
	if !errors.As(err, &derr) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestSampleSigmaClipping(t *testing.T) {
	img := constantImage(101, 101, 100)
	// a handful of hot pixels on the sampled circle
	img.Data.Set(50, 70, 1e4)
	img.Data.Set(70, 50, 1e4)
	img.Data.Set(30, 50, 1e4)

	g, err := NewGeometry(50, 50, 20, 0, 0, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSample(img, 20, &SampleConfig{Geometry: g, SClip: 3, NClip: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update([4]bool{}); err != nil {
		t.Fatal(err)
	}
	if s.ActualPoints >= s.TotalPoints {
		t.Errorf("clipping removed nothing: %d of %d points kept",
			s.ActualPoints, s.TotalPoints)
	}
	if math.Abs(s.Mean-100) > 5.0 {
		t.Errorf("clipped mean = %g, want ~100", s.Mean)
	}
}

func TestSampleCountsNonFinitePixels(t *testing.T) {
	data, err := testimg.Make(testimg.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	// poison a few pixels on the sampled ellipse
	data.Set(256, 296, math.NaN())
	data.Set(256, 216, math.Inf(1))
	img := NewImage(data)

	s, err := NewSample(img, 40, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Extract(); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if s.NonFiniteCount == 0 {
		t.Error("non-finite pixels on the path were not counted")
	}
}

func TestCentralSample(t *testing.T) {
	img := constantImage(101, 101, 123)
	g, err := NewGeometry(50, 50, 10, 0.2, 0, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	s := NewCentralSample(img, g)
	if err := s.Update([4]bool{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if math.Abs(s.Mean-123) > 1e-9 {
		t.Errorf("central intensity = %g, want 123", s.Mean)
	}
	if s.Geometry.SMA != 0 {
		t.Errorf("central sample sma = %g, want 0", s.Geometry.SMA)
	}
	if s.Gradient != 0 || !math.IsNaN(s.GradientError) {
		t.Errorf("central gradient = %g (err %g), want 0 with unknown error",
			s.Gradient, s.GradientError)
	}
}

func TestSampleGradientCarriedOnFlatImage(t *testing.T) {
	img := constantImage(101, 101, 50)
	g, err := NewGeometry(50, 50, 15, 0, 0, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSample(img, 15, &SampleConfig{Geometry: g})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update([4]bool{}); err != nil {
		t.Fatal(err)
	}
	// no measurable gradient: the default prior is carried at 80%
	if s.Gradient >= 0 {
		t.Errorf("carried gradient = %g, want negative", s.Gradient)
	}
	if !math.IsNaN(s.GradientError) {
		t.Errorf("gradient error = %g, want NaN for a carried gradient", s.GradientError)
	}
}
