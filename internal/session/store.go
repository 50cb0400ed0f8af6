package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/mvlens-cli/internal/apperr"
	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"github.com/KaramelBytes/mvlens-cli/internal/fsutil"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Store keeps one directory per session under a root directory.
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// NewStore returns a Store rooted at root on fsys.
func NewStore(fsys afero.Fs, root string) *Store {
	return &Store{fs: fsys, root: root, now: time.Now}
}

// Fs returns the filesystem the store writes to.
func (s *Store) Fs() afero.Fs { return s.fs }

// Root returns the sessions directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory of the named session.
func (s *Store) Dir(name string) string { return filepath.Join(s.root, name) }

func (s *Store) infoPath(name string) string { return filepath.Join(s.Dir(name), InfoFile) }

// Create makes a new session directory with default settings. It refuses to
// reuse a directory that already has content.
func (s *Store) Create(name string) (*Session, error) {
	sess := New(name)
	sess.ID = uuid.NewString()
	sess.CreatedDate = s.now().UTC()
	if err := Validate(sess); err != nil {
		return nil, err
	}
	dir := s.Dir(name)
	if ok, _ := fsutil.Exists(s.fs, dir); ok {
		empty, err := afero.IsEmpty(s.fs, dir)
		if err != nil {
			return nil, apperr.New(apperr.KindStorage, "inspect session directory", err)
		}
		if !empty {
			return nil, apperr.Newf(apperr.KindConflict, "session %q already exists at %s", name, dir)
		}
	}
	if err := s.write(&Info{Session: sess, GraphConfigs: DefaultGraphConfigs()}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Info loads info.json of the named session.
func (s *Store) Info(name string) (*Info, error) {
	if !ValidName(name) {
		return nil, apperr.Newf(apperr.KindInvalidInput, "invalid session name %q", name)
	}
	b, err := afero.ReadFile(s.fs, s.infoPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("session %q not found", name), err)
		}
		return nil, apperr.New(apperr.KindStorage, "read session", err)
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, apperr.New(apperr.KindStorage, fmt.Sprintf("parse %s of session %q", InfoFile, name), err)
	}
	if info.Session == nil {
		return nil, apperr.Newf(apperr.KindStorage, "%s of session %q has no session block", InfoFile, name)
	}
	if info.GraphConfigs == nil {
		info.GraphConfigs = DefaultGraphConfigs()
	}
	return &info, nil
}

// Load returns the named session.
func (s *Store) Load(name string) (*Session, error) {
	info, err := s.Info(name)
	if err != nil {
		return nil, err
	}
	return info.Session, nil
}

// Save persists sess, keeping the graph settings already on disk.
func (s *Store) Save(sess *Session) error {
	if err := Validate(sess); err != nil {
		return err
	}
	info, err := s.Info(sess.Name)
	if err != nil {
		return err
	}
	info.Session = sess
	return s.write(info)
}

// SetGraphConfig replaces the settings of one graph.
func (s *Store) SetGraphConfig(name string, graph GraphType, cfg GraphConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	info, err := s.Info(name)
	if err != nil {
		return err
	}
	info.GraphConfigs[graph] = cfg
	return s.write(info)
}

// Delete removes the session directory and everything in it.
func (s *Store) Delete(name string) error {
	if _, err := s.Info(name); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(s.Dir(name)); err != nil {
		return apperr.New(apperr.KindStorage, fmt.Sprintf("delete session %q", name), err)
	}
	return nil
}

// List returns every session under the root, sorted by name. Directories
// without a readable info.json are skipped.
func (s *Store) List() ([]*Session, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperr.New(apperr.KindStorage, "list sessions", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() || !ValidName(e.Name()) {
			continue
		}
		sess, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Export copies the canonical table and any cached analysis artifacts to
// <dest>/<name>/. Files are prefixed with the session name and a timestamp;
// analysis files also carry the analysis and the normalization that produced
// them. It returns the written paths.
func (s *Store) Export(name, dest string) ([]string, error) {
	sess, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	src := s.Dir(name)
	if ok, _ := fsutil.Exists(s.fs, dataframe.Path(src)); !ok {
		return nil, apperr.Newf(apperr.KindEmptyDataframe, "session %q has no dataframe to export", name)
	}
	outDir := filepath.Join(dest, name)
	prefix := name + "_" + s.now().Format("2006-1-2T15.04.05")
	type group struct {
		tag       string
		normalize string
		files     []string
	}
	groups := []group{
		{files: []string{dataframe.FileName}},
		{tag: "PCA", normalize: string(sess.PredictNormalize), files: []string{PredictFile, EigenValuesFile, EigenVectorsFile, ExplainedVarianceFile}},
		{tag: "HCA", normalize: string(sess.DistanceNormalize), files: []string{DistanceFile}},
	}
	var written []string
	for _, g := range groups {
		for _, f := range g.files {
			from := filepath.Join(src, f)
			if ok, _ := fsutil.Exists(s.fs, from); !ok {
				continue
			}
			parts := []string{prefix}
			if g.tag != "" {
				parts = append(parts, g.tag, g.normalize)
			}
			parts = append(parts, exportName(f))
			to := filepath.Join(outDir, strings.Join(parts, "_"))
			if err := fsutil.CopyFile(s.fs, from, to); err != nil {
				return written, apperr.New(apperr.KindStorage, "export "+f, err)
			}
			written = append(written, to)
		}
	}
	return written, nil
}

func exportName(file string) string {
	if file == PredictFile {
		return "PC_values.csv"
	}
	return file
}

func (s *Store) write(info *Info) error {
	b, err := fsutil.PrettyJSON(info)
	if err != nil {
		return err
	}
	if err := fsutil.SafeWriteFile(s.fs, s.infoPath(info.Session.Name), b); err != nil {
		return apperr.New(apperr.KindStorage, "write session", err)
	}
	return nil
}
