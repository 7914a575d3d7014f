// Package ocr extracts text from page images with escalating recognition
// strategies. Each rescan attempt selects a different strategy so repeated
// passes over the same image do not just repeat the same failure.
package ocr

import "context"

// Strategy selects recognition parameters for a scan pass.
type Strategy int

const (
	// StrategyDefault is the baseline pass: automatic page segmentation.
	StrategyDefault Strategy = iota
	// StrategySparse treats the page as sparse text, which recovers
	// stamps, handwriting fragments and margin notes that automatic
	// segmentation drops.
	StrategySparse
	// StrategyBlock forces single-block segmentation with the LSTM-only
	// engine, the most aggressive pass for degraded scans.
	StrategyBlock
)

// StrategyCount is the number of distinct strategies available.
const StrategyCount = 3

// StrategyFor maps a rescan attempt number to a strategy. Attempts beyond
// the known strategies reuse the last one.
func StrategyFor(attempt int) Strategy {
	if attempt < 0 {
		return StrategyDefault
	}
	if attempt >= StrategyCount {
		return StrategyBlock
	}
	return Strategy(attempt)
}

func (s Strategy) String() string {
	switch s {
	case StrategyDefault:
		return "default"
	case StrategySparse:
		return "sparse"
	case StrategyBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Provider extracts text from a page image.
type Provider interface {
	// Extract runs OCR on the image at path using the given strategy.
	Extract(ctx context.Context, imagePath string, strategy Strategy) (string, error)
	Name() string
}
