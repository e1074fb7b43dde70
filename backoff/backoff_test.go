package backoff_test

import (
	"testing"
	"time"

	"github.com/lumenly/coursegen/backoff"
)

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(5); got != 10*time.Second {
		t.Errorf("Delay(5) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysWithinCeiling(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	for attempt := 1; attempt <= 8; attempt++ {
		ceil := time.Duration(1<<uint(attempt-1)) * time.Second
		if ceil > time.Minute {
			ceil = time.Minute
		}
		for range 50 {
			got := e.Delay(attempt)
			if got < 0 || got > ceil {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, got, ceil)
			}
		}
	}
}

func TestDefault_UsesBase(t *testing.T) {
	s := backoff.Default(2 * time.Second)
	if got := s.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) = %v, want %v", got, 2*time.Second)
	}

	// A non-positive base falls back to one second.
	s = backoff.Default(0)
	if got := s.Delay(1); got != time.Second {
		t.Errorf("Delay(1) = %v, want %v", got, time.Second)
	}
}
