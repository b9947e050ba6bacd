// Package importer normalizes bank statement files (CSV, OFX, QFX) into
// canonical rows.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// Parser converts one statement file format into canonical rows. mapping is
// only consulted by formats that need one.
type Parser interface {
	Parse(r io.Reader, mapping *ColumnMapping) (*Result, error)
	Format() string
}

// Result is the outcome of parsing one file. Rows holds every usable row in
// file order; rows that could not be normalized are reported in RowErrors.
type Result struct {
	Rows      []model.Row
	RowErrors []RowError
	TotalRows int
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a statement file in an import directory.
type FileInfo struct {
	Name   string
	Path   string
	Size   int64
	Format string
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// Parse runs the parser registered for format over data. Every failure that
// rejects the file comes back as a *ParseError.
func (r *Registry) Parse(data []byte, format string, mapping *ColumnMapping) (*Result, error) {
	p := r.Get(format)
	if p == nil {
		return nil, &ParseError{Format: format, Err: fmt.Errorf("%w %q", ErrUnknownFormat, format)}
	}
	res, err := p.Parse(bytes.NewReader(data), mapping)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ParseError{Format: p.Format(), Err: err}
	}
	return res, nil
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CSVParser{})
	r.Register(NewChaseParser())
	r.Register(&OFXParser{format: "ofx"})
	r.Register(&OFXParser{format: "qfx"})
	return r
}

// Parse parses data with the default registry.
func Parse(data []byte, format string, mapping *ColumnMapping) (*Result, error) {
	return DefaultRegistry().Parse(data, format, mapping)
}

// processedDir is the subdirectory imported files are moved to.
const processedDir = "processed"

// FormatForFile guesses a parser format from a file extension. CSV files
// default to the generic csv parser.
func FormatForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "csv"
	case ".ofx":
		return "ofx"
	case ".qfx":
		return "qfx"
	}
	return ""
}

// Scan returns the statement files waiting in dir.
func Scan(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		format := FormatForFile(e.Name())
		if format == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name:   e.Name(),
			Path:   filepath.Join(dir, e.Name()),
			Size:   info.Size(),
			Format: format,
		})
	}
	return files, nil
}

// MarkProcessed moves a file from dir to dir/processed/.
func MarkProcessed(dir, fileName string) error {
	src := filepath.Join(dir, fileName)
	dstDir := filepath.Join(dir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
