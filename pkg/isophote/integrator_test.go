package isophote

import (
	"math"
	"testing"
)

func extractWithMode(t *testing.T, img *Image, mode IntegrationMode) *Sample {
	t.Helper()
	// the wide step keeps area-mode sectors above the bilinear-fallback
	// pixel threshold
	g, err := NewGeometry(50, 50, 20, 0, 0, 0.4, false)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSample(img, 20, &SampleConfig{Geometry: g, Mode: mode})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update([4]bool{}); err != nil {
		t.Fatalf("update with mode %q: %v", mode, err)
	}
	return s
}

func TestIntegratorModesOnConstantImage(t *testing.T) {
	img := constantImage(101, 101, 77)
	for _, mode := range []IntegrationMode{
		IntegrBilinear, IntegrNearest, IntegrMean, IntegrMedian,
	} {
		t.Run(string(mode), func(t *testing.T) {
			s := extractWithMode(t, img, mode)
			if math.Abs(s.Mean-77) > 1e-9 {
				t.Errorf("mean = %g, want 77", s.Mean)
			}
			if s.ActualPoints < MinSamplePoints {
				t.Errorf("points = %d, want >= %d", s.ActualPoints, MinSamplePoints)
			}
		})
	}
}

func TestIntegratorSectorAreas(t *testing.T) {
	img := constantImage(101, 101, 1)

	s := extractWithMode(t, img, IntegrBilinear)
	if math.Abs(s.SectorArea-2.0) > 1e-12 {
		t.Errorf("bilinear sector area = %g, want 2", s.SectorArea)
	}

	s = extractWithMode(t, img, IntegrNearest)
	if math.Abs(s.SectorArea-1.0) > 1e-12 {
		t.Errorf("nearest sector area = %g, want 1", s.SectorArea)
	}

	s = extractWithMode(t, img, IntegrMean)
	if s.SectorArea <= 2.0 {
		t.Errorf("mean-mode sector area = %g, want larger than a point sample",
			s.SectorArea)
	}
}

func TestAreaIntegratorSamplesFewerSectors(t *testing.T) {
	img := constantImage(101, 101, 1)
	point := extractWithMode(t, img, IntegrBilinear)
	area := extractWithMode(t, img, IntegrMean)
	if area.TotalPoints >= point.TotalPoints {
		t.Errorf("mean mode took %d sectors, bilinear %d samples; want fewer sectors",
			area.TotalPoints, point.TotalPoints)
	}
}

func TestMedianIntegratorRejectsHotPixels(t *testing.T) {
	img := constantImage(101, 101, 100)
	img.Data.Set(50, 70, 1e6)
	img.Data.Set(70, 50, 1e6)

	s := extractWithMode(t, img, IntegrMedian)
	// a single hot pixel never reaches the median of its sector
	if math.Abs(s.Mean-100) > 1e-6 {
		t.Errorf("median-mode mean = %g, want 100 despite hot pixels", s.Mean)
	}
}

func TestUnknownIntegrationMode(t *testing.T) {
	img := constantImage(101, 101, 1)
	g, err := NewGeometry(50, 50, 20, 0, 0, 0.1, false)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSample(img, 20, &SampleConfig{Geometry: g, Mode: "cubic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Extract(); err == nil {
		t.Error("unknown integration mode did not error")
	}
}
