// Package ingest imports scanned document PDFs: each page is rendered to
// a PNG under the data directory and registered as an unchecked page row.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pagemill/pagemill/internal/home"
	"github.com/pagemill/pagemill/internal/store"
)

// Request contains the parameters for ingesting a document batch.
type Request struct {
	PDFPaths []string // PDF file paths (sorted by numeric suffix)
	BatchID  string   // Optional; derived from the first filename if empty
	Logger   *slog.Logger
}

// Result describes a completed ingest.
type Result struct {
	BatchID   string `json:"batch_id" yaml:"batch_id"`
	PageCount int    `json:"page_count" yaml:"page_count"`
}

// Ingest extracts pages from PDFs, writes them to the batch directory, and
// creates page rows in the store. On any failure the batch directory is
// removed and no rows are committed for the failed batch.
func Ingest(ctx context.Context, st *store.Store, homeDir *home.Dir, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.PDFPaths) == 0 {
		return nil, fmt.Errorf("no PDF paths provided")
	}
	for _, p := range req.PDFPaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("PDF not found: %s", p)
		}
	}

	sortedPaths := sortPDFsByNumber(req.PDFPaths)

	batchID := req.BatchID
	if batchID == "" {
		batchID = deriveBatchID(sortedPaths[0])
	}
	log.Info("starting ingest", "batch_id", batchID, "pdfs", len(sortedPaths))

	if err := homeDir.EnsureBatchDir(batchID); err != nil {
		return nil, fmt.Errorf("failed to create batch directory: %w", err)
	}
	outDir := homeDir.BatchDir(batchID)

	pageCount := 0
	for i, pdfPath := range sortedPaths {
		log.Debug("extracting PDF", "file", filepath.Base(pdfPath), "part", i+1, "of", len(sortedPaths))
		count, err := extractImages(pdfPath, outDir, pageCount)
		if err != nil {
			os.RemoveAll(outDir)
			return nil, fmt.Errorf("failed to extract images from %s: %w", pdfPath, err)
		}
		pageCount += count
	}
	if pageCount == 0 {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("no images extracted from PDFs")
	}

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		imagePath := homeDir.PageImagePath(batchID, pageNum)
		if _, err := st.CreatePage(ctx, batchID, pageNum, imagePath, ""); err != nil {
			return nil, fmt.Errorf("failed to register page %d: %w", pageNum, err)
		}
	}

	log.Info("ingest complete", "batch_id", batchID, "pages", pageCount)
	return &Result{BatchID: batchID, PageCount: pageCount}, nil
}

// extractImages renders all pages from a PDF into outDir.
// pageOffset is the numbering offset for multi-part PDFs.
func extractImages(pdfPath, outDir string, pageOffset int) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	maxWorkers := runtime.NumCPU()

	type result struct {
		pageNum int
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageInPDF int) {
			defer func() { <-sem }() // release

			outputPageNum := pageOffset + pageInPDF
			err := renderPage(pdfPath, outDir, pageInPDF, outputPageNum)
			results <- result{pageNum: pageInPDF, err: err}
		}(page)
	}

	successCount := 0
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			return 0, fmt.Errorf("failed to render page %d: %w", r.pageNum, r.err)
		}
		successCount++
	}

	return successCount, nil
}

// renderPage renders a single PDF page to PNG using pdftoppm (poppler-utils).
func renderPage(pdfPath, outDir string, pageInPDF, outputPageNum int) error {
	tmpDir, err := os.MkdirTemp("", "pagemill-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page-"+uuid.New().String()[:8])

	pageStr := strconv.Itoa(pageInPDF)
	cmd := exec.Command("pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", "300",
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read rendered image: %w", err)
	}

	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", outputPageNum))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	return nil
}

// sortPDFsByNumber sorts PDF paths by their numeric suffix.
// e.g., ["batch-2.pdf", "batch-1.pdf", "batch-10.pdf"] sorts numerically.
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)\.pdf$`)

	sort.Slice(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(sorted[i])
		mj := re.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveBatchID extracts a batch identifier from a PDF filename.
// e.g., "depositions-1.pdf" -> "depositions"
func deriveBatchID(pdfPath string) string {
	base := filepath.Base(pdfPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	re := regexp.MustCompile(`-\d+$`)
	return re.ReplaceAllString(name, "")
}
