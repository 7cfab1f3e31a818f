// Package persistence implements the snapshot gateway: one index file
// enumerating registered apps plus one file per app holding its versions and
// package records. Snapshots are rewritten after every mutating call and
// loaded once at startup; a crash between mutation and rewrite is the only
// source of durability loss.
package persistence

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/updrift/updrift/internal/shared/types"
)

const (
	indexFile = "index.json"
	appsDir   = "apps"
)

// AppState is the per-app snapshot document.
type AppState struct {
	App      types.AppInfo             `json:"app"`
	Versions []types.VersionInfo       `json:"versions"`
	Packages []types.UpdatePackageInfo `json:"packages"`
}

type index struct {
	Apps []types.AppInfo `json:"apps"`
}

// Store reads and writes snapshot files under a root directory. Writes are
// atomic (temp file + rename). With compression enabled, files are written
// gzip-encoded as .json.gz; loading accepts either encoding.
type Store struct {
	root     string
	compress bool
}

// New creates a snapshot store rooted at dir.
func New(dir string, compress bool) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, appsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot root: %w", err)
	}
	return &Store{root: abs, compress: compress}, nil
}

// SaveIndex rewrites the application index.
func (s *Store) SaveIndex(apps []types.AppInfo) error {
	return s.write(indexFile, index{Apps: apps})
}

// SaveApp rewrites one app's versions and packages.
func (s *Store) SaveApp(app types.AppInfo, versions []types.VersionInfo, packages []types.UpdatePackageInfo) error {
	state := AppState{App: app, Versions: versions, Packages: packages}
	if state.Versions == nil {
		state.Versions = []types.VersionInfo{}
	}
	if state.Packages == nil {
		state.Packages = []types.UpdatePackageInfo{}
	}
	return s.write(filepath.Join(appsDir, fileSafe(app.AppID)+".json"), state)
}

// LoadAll reads the index and every per-app file. Apps listed in the index
// without a per-app file load with empty lists.
func (s *Store) LoadAll() ([]AppState, error) {
	var idx index
	ok, err := s.read(indexFile, &idx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	states := make([]AppState, 0, len(idx.Apps))
	for _, app := range idx.Apps {
		state := AppState{App: app, Versions: []types.VersionInfo{}, Packages: []types.UpdatePackageInfo{}}
		if _, err := s.read(filepath.Join(appsDir, fileSafe(app.AppID)+".json"), &state); err != nil {
			return nil, err
		}
		// The index is authoritative for app identity.
		state.App = app
		states = append(states, state)
	}
	return states, nil
}

func (s *Store) write(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", rel, err)
	}

	abs := filepath.Join(s.root, rel)
	if s.compress {
		abs += ".gz"
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("stage snapshot %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var gz *gzip.Writer
	if s.compress {
		gz = gzip.NewWriter(tmp)
		w = gz
	}
	_, err = w.Write(data)
	if gz != nil {
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", rel, err)
	}

	if err := os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", rel, err)
	}
	// Drop the stale sibling when the encoding setting changed.
	if s.compress {
		os.Remove(filepath.Join(s.root, rel))
	} else {
		os.Remove(filepath.Join(s.root, rel) + ".gz")
	}
	return nil
}

// read returns false without error when neither encoding of the file exists.
func (s *Store) read(rel string, v any) (bool, error) {
	abs := filepath.Join(s.root, rel)

	if data, err := os.ReadFile(abs); err == nil {
		return true, unmarshalSnapshot(rel, data, v)
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("read snapshot %s: %w", rel, err)
	}

	f, err := os.Open(abs + ".gz")
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read snapshot %s: %w", rel, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", rel, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", rel, err)
	}
	return true, unmarshalSnapshot(rel, data, v)
}

func unmarshalSnapshot(rel string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal snapshot %s: %w", rel, err)
	}
	return nil
}

func fileSafe(s string) string {
	s = strings.ToLower(s)
	b := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b = append(b, r)
		default:
			b = append(b, '-')
		}
	}
	return string(b)
}
