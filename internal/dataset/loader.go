package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/riskloom-cli/internal/utils"
)

// DefaultFilename is the raw claims dataset shipped under <data_dir>/raw.
const DefaultFilename = "MachineLearningRating_v3.txt"

// ErrNotFound matches any NotFoundError.
var ErrNotFound = errors.New("data file not found")

// NotFoundError names the dataset path that does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("data file not found: %s", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Loader reads project datasets below a base data directory.
type Loader struct {
	DataDir string
}

// NewLoader returns a loader rooted at dataDir.
func NewLoader(dataDir string) *Loader {
	return &Loader{DataDir: dataDir}
}

// RawPath resolves a filename (default DefaultFilename) below <data_dir>/raw.
func (l *Loader) RawPath(filename string) string {
	if filename == "" {
		filename = DefaultFilename
	}
	return filepath.Join(l.DataDir, "raw", filename)
}

// Load reads a raw dataset. A missing file yields a *NotFoundError.
func (l *Loader) Load(filename string) (*Table, error) {
	path := l.RawPath(filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	t, err := ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// ProcessedPath returns <data_dir>/processed/<stem><ext> for a raw filename.
func (l *Loader) ProcessedPath(filename, ext string) string {
	if filename == "" {
		filename = DefaultFilename
	}
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(l.DataDir, "processed", stem+ext)
}

// Convert loads a raw dataset and writes a comma-delimited copy under
// <data_dir>/processed. With xlsx set, a workbook is written instead.
func (l *Loader) Convert(filename string, xlsx bool) (string, error) {
	t, err := l.Load(filename)
	if err != nil {
		return "", err
	}
	ext := ".csv"
	if xlsx {
		ext = ".xlsx"
	}
	out := l.ProcessedPath(filename, ext)
	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		return "", fmt.Errorf("ensure processed dir: %w", err)
	}
	if xlsx {
		if err := WriteXLSX(out, "Data", t); err != nil {
			return "", err
		}
		return out, nil
	}
	if err := WriteCSVFile(out, t); err != nil {
		return "", err
	}
	return out, nil
}
