// Package quality turns raw OCR text into a quality verdict. A cheap,
// deterministic local pass runs first; only text that survives it may be
// sent to a paid remote classifier.
package quality

import (
	"strings"
	"unicode"

	"github.com/pagemill/pagemill/internal/store"
)

// Reason codes attached to a verdict.
const (
	ReasonEmpty         = "empty"
	ReasonTooShort      = "too_short"
	ReasonAllZeros      = "all_zeros"
	ReasonMostlyZeros   = "mostly_zeros"
	ReasonZeroWords     = "zero_words"
	ReasonBinaryNoise   = "binary_noise"
	ReasonLowMeaningful = "low_meaningful"
	ReasonDegenerate    = "degenerate"
	ReasonLowAlpha      = "low_alpha"
	ReasonRepetition    = "char_repetition"
	ReasonShortWords    = "short_words"
	ReasonClassifier    = "classifier_failure"
	ReasonClassifierErr = "classifier_error"
)

// Verdict is the outcome of assessing one page's text.
type Verdict struct {
	Score   int
	Status  store.Status
	Reasons []string
	// Billed is true when a remote classifier call was made.
	Billed  bool
	CostUSD float64
}

// DefaultMinTextLength is the shortest text accepted without a rescan.
const DefaultMinTextLength = 10

// Evaluate runs the local heuristics only. Text failing any check gets
// score 0 and needs_rescan; text passing all of them gets score 100 and
// acceptable. Deterministic and free of side effects.
func Evaluate(text string, minLength int) Verdict {
	if minLength <= 0 {
		minLength = DefaultMinTextLength
	}

	trimmed := strings.TrimSpace(text)
	var reasons []string

	if trimmed == "" {
		return failVerdict(ReasonEmpty)
	}
	if len(trimmed) < minLength {
		reasons = append(reasons, ReasonTooShort)
	}

	reasons = append(reasons, zeroPatternReasons(trimmed)...)
	reasons = append(reasons, charMixReasons(trimmed)...)

	if len(reasons) > 0 {
		return Verdict{Score: 0, Status: store.StatusNeedsRescan, Reasons: reasons}
	}
	return Verdict{Score: 100, Status: store.StatusAcceptable}
}

func failVerdict(reasons ...string) Verdict {
	return Verdict{Score: 0, Status: store.StatusNeedsRescan, Reasons: reasons}
}

// zeroPatternReasons detects the classic failure mode where OCR emits
// mostly zero characters for an unreadable page.
func zeroPatternReasons(text string) []string {
	var reasons []string

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if stripped == "" {
		return []string{ReasonEmpty}
	}

	zeros := strings.Count(stripped, "0")
	if zeros == len(stripped) {
		reasons = append(reasons, ReasonAllZeros)
	} else if len(stripped) < 20 && float64(zeros) > float64(len(stripped))*0.5 {
		reasons = append(reasons, ReasonMostlyZeros)
	}

	words := strings.Fields(text)
	if len(words) > 0 {
		zeroWords := 0
		for _, w := range words {
			if strings.Trim(w, "0") == "" {
				zeroWords++
			}
		}
		if float64(zeroWords) > float64(len(words))*0.7 {
			reasons = append(reasons, ReasonZeroWords)
		}
	}

	return reasons
}

// charMixReasons checks the character composition of the text: control
// noise, too few letters, degenerate repetition.
func charMixReasons(text string) []string {
	var reasons []string

	var total, letters, digits, binary, meaningful int
	counts := map[rune]int{}
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		counts[r]++
		switch {
		case unicode.IsLetter(r):
			letters++
			meaningful++
		case unicode.IsDigit(r):
			digits++
			meaningful++
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			binary++
		case unicode.IsPunct(r):
			meaningful++
		}
	}
	if total == 0 {
		return []string{ReasonEmpty}
	}

	if float64(binary) > float64(total)*0.1 {
		reasons = append(reasons, ReasonBinaryNoise)
	}
	if float64(meaningful) < float64(total)*0.1 {
		reasons = append(reasons, ReasonLowMeaningful)
	}
	if letters == 0 {
		// Digits, punctuation and whitespace only
		reasons = append(reasons, ReasonDegenerate)
	} else if float64(letters) < float64(total)*0.3 {
		reasons = append(reasons, ReasonLowAlpha)
	}

	for _, n := range counts {
		if float64(n) > float64(total)*0.4 && total > 10 {
			reasons = append(reasons, ReasonRepetition)
			break
		}
	}

	words := strings.Fields(text)
	if len(words) >= 5 {
		var sum int
		for _, w := range words {
			sum += len([]rune(w))
		}
		if float64(sum)/float64(len(words)) < 2.0 {
			reasons = append(reasons, ReasonShortWords)
		}
	}

	return reasons
}
