// Package fsutil holds small filesystem helpers shared by the session,
// dataframe and artifact stores. All helpers work on an afero.Fs so the
// stores can run against the OS or an in-memory filesystem.
package fsutil

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// EnsureDir ensures the provided directory exists.
func EnsureDir(fsys afero.Fs, dir string) error {
	return fsys.MkdirAll(dir, 0o755)
}

// Exists reports whether path exists. Stat errors other than "not exist"
// are returned.
func Exists(fsys afero.Fs, path string) (bool, error) {
	return afero.Exists(fsys, path)
}

// SafeWriteFile writes data to a temp file and atomically renames it into place.
func SafeWriteFile(fsys afero.Fs, path string, data []byte) error {
	if err := EnsureDir(fsys, filepath.Dir(path)); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fsys, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// PrettyJSON marshals a value as indented JSON.
func PrettyJSON(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return b, nil
}

// CopyFile copies src to dst, creating dst's directory when needed.
func CopyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	if err := EnsureDir(fsys, filepath.Dir(dst)); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// WriteCSV renders header and records as CSV and writes them atomically.
func WriteCSV(fsys afero.Fs, path string, header []string, records [][]string) error {
	tmp := path + ".tmp"
	if err := EnsureDir(fsys, filepath.Dir(path)); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	w := csv.NewWriter(f)
	if header != nil {
		if err := w.Write(header); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, rec := range records {
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// ReadCSV reads every record of a CSV file. Records may have differing lengths.
func ReadCSV(fsys afero.Fs, path string) ([][]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", filepath.Base(path), err)
	}
	return recs, nil
}
