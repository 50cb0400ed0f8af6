// Package parser turns raw import files (CSV, XLSX, TXT) into string records.
// Format selection is by file extension through a small registry.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/spf13/afero"
)

// Parser decodes one tabular file format into records.
type Parser interface {
	CanParse(filename string) bool
	Parse(r io.Reader) ([][]string, error)
}

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

func init() {
	Register(csvParser{})
	Register(xlsxParser{})
	Register(txtParser{})
}

// ErrUnsupported indicates a file extension outside csv, xlsx and txt.
var ErrUnsupported = apperr.ErrUnsupportedFormat

// Lookup returns the parser for path or an UnsupportedFormat error.
func Lookup(path string) (Parser, error) {
	for _, p := range registry {
		if p.CanParse(path) {
			return p, nil
		}
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return nil, apperr.Newf(apperr.KindUnsupportedFormat, "unsupported file format %q for %s (use csv, xlsx or txt)", ext, filepath.Base(path)).
		WithContext("file", filepath.Base(path))
}

// ParseFile selects a parser based on the file name and returns its records.
// Blank records are dropped and every cell is trimmed.
func ParseFile(fsys afero.Fs, path string) ([][]string, error) {
	p, err := Lookup(path)
	if err != nil {
		return nil, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	recs, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return clean(recs), nil
}

// ParseLabels reads a label file and flattens it into an ordered name list.
func ParseLabels(fsys afero.Fs, path string) ([]string, error) {
	recs, err := ParseFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, rec := range recs {
		for _, cell := range rec {
			if cell != "" {
				labels = append(labels, cell)
			}
		}
	}
	if len(labels) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidInput, "label file %s has no labels", filepath.Base(path))
	}
	return labels, nil
}

// clean trims cells, drops trailing empty cells and skips blank records.
func clean(recs [][]string) [][]string {
	out := recs[:0]
	for _, rec := range recs {
		for i := range rec {
			rec[i] = strings.TrimSpace(strings.TrimPrefix(rec[i], "\ufeff"))
		}
		end := len(rec)
		for end > 0 && rec[end-1] == "" {
			end--
		}
		if end == 0 {
			continue
		}
		out = append(out, rec[:end])
	}
	return out
}
