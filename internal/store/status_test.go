package store

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusUnchecked, StatusProcessing, true},
		{StatusNeedsRescan, StatusProcessing, true},
		{StatusAcceptable, StatusProcessing, true},
		{StatusProcessing, StatusAcceptable, true},
		{StatusProcessing, StatusNeedsRescan, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusUnchecked, true},
		{StatusFailed, StatusUnchecked, true}, // manual reset

		{StatusUnchecked, StatusAcceptable, false}, // must go through processing
		{StatusFailed, StatusProcessing, false},    // terminal for automatic work
		{StatusFailed, StatusNeedsRescan, false},
		{StatusAcceptable, StatusFailed, false},
		{StatusNeedsRescan, StatusAcceptable, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusUnchecked, StatusProcessing, StatusAcceptable,
		StatusNeedsRescan, StatusNeedsCorrection, StatusFailed} {
		if !s.Valid() {
			t.Errorf("Valid(%s) = false, want true", s)
		}
	}
	if Status("bogus").Valid() {
		t.Error("Valid(bogus) = true, want false")
	}
}

func TestValidateTransition(t *testing.T) {
	if err := StatusFailed.ValidateTransition(StatusProcessing); err == nil {
		t.Error("failed -> processing should be rejected")
	}
	if err := StatusProcessing.ValidateTransition(Status("bogus")); err == nil {
		t.Error("transition to unknown status should be rejected")
	}
	if err := StatusUnchecked.ValidateTransition(StatusProcessing); err != nil {
		t.Errorf("unchecked -> processing rejected: %v", err)
	}
}
