package store

import "fmt"

// Status is the quality lifecycle state of a page.
// It is a closed set with explicit transition rules; engines must go
// through CanTransition rather than writing free-form strings.
type Status string

const (
	// StatusUnchecked means the page has OCR text but no quality verdict yet.
	StatusUnchecked Status = "unchecked"

	// StatusProcessing marks a page claimed by a pipeline worker.
	// Claiming is a compare-and-set on this status so two overlapping
	// runs cannot double-process the same page.
	StatusProcessing Status = "processing"

	// StatusAcceptable means the page passed quality checks (terminal for
	// the rescan engine; still eligible for LLM correction).
	StatusAcceptable Status = "acceptable"

	// StatusNeedsRescan means the last verdict was a quality failure and
	// rescan attempts remain.
	StatusNeedsRescan Status = "needs_rescan"

	// StatusNeedsCorrection means the page is acceptable but flagged for
	// LLM correction.
	StatusNeedsCorrection Status = "needs_correction"

	// StatusFailed means rescan attempts are exhausted. Terminal unless
	// manually reset.
	StatusFailed Status = "failed"
)

// transitions is the set of legal status transitions.
// Failed and Acceptable are terminal for automatic processing; the only
// way out of Failed is the deliberate ResetForRetry path back to Unchecked.
var transitions = map[Status][]Status{
	StatusUnchecked:       {StatusProcessing},
	StatusNeedsRescan:     {StatusProcessing},
	StatusNeedsCorrection: {StatusProcessing},
	StatusAcceptable:      {StatusProcessing},
	StatusProcessing: {
		StatusUnchecked, // Released without a verdict (transient failure)
		StatusAcceptable,
		StatusNeedsRescan,
		StatusNeedsCorrection,
		StatusFailed,
	},
	StatusFailed: {StatusUnchecked}, // Manual reset only
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusUnchecked, StatusProcessing, StatusAcceptable,
		StatusNeedsRescan, StatusNeedsCorrection, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether automatic processing stops at this status.
func (s Status) Terminal() bool {
	return s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error describing an illegal transition.
func (s Status) ValidateTransition(next Status) error {
	if !next.Valid() {
		return fmt.Errorf("unknown status %q", next)
	}
	if !s.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s", s, next)
	}
	return nil
}
