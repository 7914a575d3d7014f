package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDirName is the default name for the pagemill home directory.
	DefaultDirName = ".pagemill"

	// DataDirName is the subdirectory for page images and OCR text.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DBFileName is the SQLite database file name.
	DBFileName = "pagemill.db"
)

// Dir represents the pagemill home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.pagemill).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// DBPath returns the path to the SQLite database.
func (d *Dir) DBPath() string {
	return filepath.Join(d.path, DBFileName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// BatchDir returns the directory for page images of an ingested batch.
func (d *Dir) BatchDir(batchID string) string {
	return filepath.Join(d.DataPath(), batchID)
}

// PageImagePath returns the path to a specific page image.
// Page numbers are 1-indexed.
func (d *Dir) PageImagePath(batchID string, pageNum int) string {
	return filepath.Join(d.BatchDir(batchID), fmt.Sprintf("page_%04d.png", pageNum))
}

// EnsureBatchDir creates the image directory for a batch.
func (d *Dir) EnsureBatchDir(batchID string) error {
	return os.MkdirAll(d.BatchDir(batchID), 0o755)
}

// OriginalsDir returns the directory holding a batch's original PDFs.
func (d *Dir) OriginalsDir(batchID string) string {
	return filepath.Join(d.BatchDir(batchID), "originals")
}

// EnsureOriginalsDir creates the originals directory for a batch.
func (d *Dir) EnsureOriginalsDir(batchID string) error {
	return os.MkdirAll(d.OriginalsDir(batchID), 0o755)
}

// TextPathFor returns the OCR text path for a page image.
// The text file lives next to the image with a .txt extension.
func TextPathFor(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + ".txt"
}
