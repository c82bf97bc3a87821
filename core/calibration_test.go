package core

import (
	"errors"
	"math"
	"testing"
)

func TestFitLineRecoversPerfectLine(t *testing.T) {
	// feedback = 2*position + 100 sampled at 0,10,...,180.
	var positions, feedbacks []float64
	for a := 0; a <= 180; a += 10 {
		positions = append(positions, float64(a))
		feedbacks = append(feedbacks, 2*float64(a)+100)
	}

	cal, err := fitLine(positions, feedbacks)
	if err != nil {
		t.Fatalf("fitLine() error = %v", err)
	}
	if math.Abs(cal.Slope-2) > 1e-9 {
		t.Errorf("Slope = %v, want 2", cal.Slope)
	}
	if math.Abs(cal.Intercept-100) > 1e-9 {
		t.Errorf("Intercept = %v, want 100", cal.Intercept)
	}
}

func TestFitLineDegenerate(t *testing.T) {
	positions := []float64{90, 90, 90}
	feedbacks := []float64{250, 260, 270}

	_, err := fitLine(positions, feedbacks)
	if !errors.Is(err, ErrDegenerateSweep) {
		t.Fatalf("fitLine() error = %v, want ErrDegenerateSweep", err)
	}
}

func TestFitLineFlatFeedback(t *testing.T) {
	// A dead or disconnected sensor reads the same value at every sample
	// point. The positions have spread but the fit is still unusable.
	var positions, feedbacks []float64
	for a := 0; a <= 180; a += 10 {
		positions = append(positions, float64(a))
		feedbacks = append(feedbacks, 250)
	}

	_, err := fitLine(positions, feedbacks)
	if !errors.Is(err, ErrDegenerateSweep) {
		t.Fatalf("fitLine() error = %v, want ErrDegenerateSweep", err)
	}
}

func TestFitLineEmpty(t *testing.T) {
	if _, err := fitLine(nil, nil); err == nil {
		t.Fatal("fitLine(nil, nil) succeeded, want error")
	}
}

func TestAngleClamps(t *testing.T) {
	cal := Calibration{Slope: 2, Intercept: 100}

	tests := []struct {
		feedback uint16
		want     int
	}{
		{100, 0},     // exactly at closed
		{460, 180},   // exactly at open
		{280, 90},    // mid travel
		{0, 0},       // below calibrated range
		{65535, 180}, // far above calibrated range
	}
	for _, tt := range tests {
		if got := cal.Angle(tt.feedback); got != tt.want {
			t.Errorf("Angle(%d) = %d, want %d", tt.feedback, got, tt.want)
		}
	}
}

func TestAngleNegativeSlope(t *testing.T) {
	// Feedback electronics wired the other way around.
	cal := Calibration{Slope: -2, Intercept: 460}
	if got := cal.Angle(460); got != 0 {
		t.Errorf("Angle(460) = %d, want 0", got)
	}
	if got := cal.Angle(100); got != 180 {
		t.Errorf("Angle(100) = %d, want 180", got)
	}
}
