package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/otiai10/gosseract/v2"
)

// TesseractProvider runs OCR through a local tesseract installation.
// A fresh gosseract client is created per extraction: the client is not
// safe for concurrent use and carries per-pass segmentation state.
type TesseractProvider struct {
	languages  []string
	maxRetries int
	logger     *slog.Logger
}

// NewTesseractProvider creates a tesseract-backed provider.
func NewTesseractProvider(languages []string, maxRetries int, logger *slog.Logger) *TesseractProvider {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractProvider{
		languages:  languages,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (p *TesseractProvider) Name() string {
	return "tesseract"
}

// Extract runs OCR on the image at path. Transient failures are retried;
// a missing image file is not.
func (p *TesseractProvider) Extract(ctx context.Context, imagePath string, strategy Strategy) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("image not readable: %w", err)
	}

	start := time.Now()
	var text string

	err := retry.Do(
		func() error {
			var err error
			text, err = p.extractOnce(imagePath, strategy)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.maxRetries)+1),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("ocr pass failed, retrying",
				"image", imagePath,
				"strategy", strategy.String(),
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("ocr failed for %s: %w", imagePath, err)
	}

	p.logger.Debug("ocr pass complete",
		"image", imagePath,
		"strategy", strategy.String(),
		"chars", len(text),
		"duration", time.Since(start))

	return text, nil
}

func (p *TesseractProvider) extractOnce(imagePath string, strategy Strategy) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}

	switch strategy {
	case StrategySparse:
		client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT)
	case StrategyBlock:
		client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK)
		if err := client.SetVariable("tessedit_ocr_engine_mode", "1"); err != nil {
			return "", fmt.Errorf("set engine mode: %w", err)
		}
	default:
		client.SetPageSegMode(gosseract.PSM_AUTO)
	}

	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	return strings.TrimSpace(text), nil
}

var _ Provider = (*TesseractProvider)(nil)
