package vad

import (
	"math"
	"testing"
)

func TestMarginScore(t *testing.T) {
	cases := []struct {
		measurement, threshold, want float64
	}{
		{0, 0.01, 0},        // no measurement
		{0.01, 0.01, 0.5},   // exactly at threshold
		{0.02, 0.01, 1},     // twice the threshold
		{5, 0.01, 1},        // capped far beyond
		{0.005, 0.01, 0.25}, // halfway to threshold
	}
	for _, c := range cases {
		got := marginScore(c.measurement, c.threshold)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("marginScore(%g, %g) = %f, want %f", c.measurement, c.threshold, got, c.want)
		}
	}
}

func TestConfidence_GatedOnEnergy(t *testing.T) {
	d := &Detector{thresholds: ForSensitivity(SensitivityMedium)}
	r := Result{
		EnergyDetected:    false,
		DominantFrequency: 200,
		Flatness:          0.1,
		Pitch:             150,
	}
	if got := d.confidence(r); got != 0 {
		t.Errorf("confidence without energy = %f, want 0", got)
	}
}
