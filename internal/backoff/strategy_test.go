package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterWithoutJitterIsDeterministic(t *testing.T) {
	s := ExponentialJitterStrategy{}
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := s.Calculate(tc.attempt, initial, max, 2.0, 0); got != tc.want {
			t.Errorf("Calculate(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialJitterClampsToMaxBackoff(t *testing.T) {
	s := ExponentialJitterStrategy{}
	max := time.Second

	if got := s.Calculate(20, 100*time.Millisecond, max, 2.0, 0); got != max {
		t.Errorf("Expected clamp to maxBackoff, got %v", got)
	}
	// Exponent clamp keeps huge attempts finite too.
	if got := s.Calculate(1000, 100*time.Millisecond, max, 2.0, 0.5); got > max {
		t.Errorf("Delay %v exceeds maxBackoff with huge attempt", got)
	}
}

func TestExponentialJitterNegativeAttempt(t *testing.T) {
	s := ExponentialJitterStrategy{}
	if got := s.Calculate(-5, 100*time.Millisecond, time.Second, 2.0, 0); got != 100*time.Millisecond {
		t.Errorf("Negative attempt must behave like attempt 0, got %v", got)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	s := ExponentialJitterStrategy{}
	initial := 100 * time.Millisecond
	max := 10 * time.Second
	base := 400 * time.Millisecond

	for i := 0; i < 200; i++ {
		got := s.Calculate(2, initial, max, 2.0, 0.5)
		if got < base {
			t.Fatalf("Delay %v below base %v", got, base)
		}
		upper := base + time.Duration(float64(base)*0.5)
		if got > upper {
			t.Fatalf("Delay %v above jitter ceiling %v", got, upper)
		}
	}
}

func TestExponentialJitterClampsOutOfRangeJitter(t *testing.T) {
	s := ExponentialJitterStrategy{}
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	for i := 0; i < 100; i++ {
		got := s.Calculate(0, initial, max, 2.0, 5.0)
		if got < initial || got > 2*initial {
			t.Fatalf("Jitter above 1 must clamp to 1, got %v", got)
		}
		if got := s.Calculate(0, initial, max, 2.0, -3.0); got != initial {
			t.Fatalf("Negative jitter must clamp to 0, got %v", got)
		}
	}
}

func TestDecorrelatedJitterFirstRetryIsBase(t *testing.T) {
	s := DecorrelatedJitterStrategy{}
	initial := 100 * time.Millisecond
	if got := s.Calculate(0, initial, 10*time.Second, 0, 0); got != initial {
		t.Errorf("First retry must use the base delay, got %v", got)
	}
}

func TestDecorrelatedJitterBounds(t *testing.T) {
	s := DecorrelatedJitterStrategy{}
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	for attempt := 1; attempt <= 20; attempt++ {
		for i := 0; i < 100; i++ {
			got := s.Calculate(attempt, initial, max, 0, 0)
			if got < initial {
				t.Fatalf("Delay %v below base at attempt %d", got, attempt)
			}
			if got > max {
				t.Fatalf("Delay %v above maxBackoff at attempt %d", got, attempt)
			}
		}
	}
}
