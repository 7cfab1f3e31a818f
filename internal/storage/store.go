// Package storage owns the on-disk artifact store. Published package bytes
// are copied into app-scoped directories; the rest of the engine addresses
// them only by the opaque relative path recorded on the package.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"

	"github.com/updrift/updrift/internal/shared/types"
)

// Artifact describes bytes that were copied into the store.
type Artifact struct {
	Path        string // relative to the store root, slash-separated
	Size        int64
	Checksum    string // sha256 hex over the stored bytes
	ContentType string
}

// Store is an app-scoped artifact store rooted at a single directory.
// All methods are safe for concurrent use; writes land under unique paths
// and reads are plain file I/O.
type Store struct {
	root string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root directory.
func (s *Store) Root() string {
	return s.root
}

// SaveFull copies a full package artifact for the given version.
func (s *Store) SaveFull(appID, versionID string, r io.Reader) (Artifact, error) {
	rel := filepath.Join(safeName(appID), "full", safeName(versionID)+".pkg")
	return s.save(rel, r)
}

// SaveIncremental copies an incremental patch artifact keyed by its
// (source, target) version pair.
func (s *Store) SaveIncremental(appID, sourceVersionID, targetVersionID string, r io.Reader) (Artifact, error) {
	name := safeName(sourceVersionID) + "_" + safeName(targetVersionID) + ".patch"
	rel := filepath.Join(safeName(appID), "incremental", name)
	return s.save(rel, r)
}

func (s *Store) save(rel string, r io.Reader) (Artifact, error) {
	if r == nil {
		return Artifact{}, fmt.Errorf("%w: package payload is required", types.ErrInvalidArgument)
	}

	abs := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create package dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("stage package: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: unreadable package payload: %v", types.ErrInvalidArgument, err)
	}
	if n == 0 {
		return Artifact{}, fmt.Errorf("%w: empty package payload", types.ErrInvalidArgument)
	}

	if err := os.Rename(tmp.Name(), abs); err != nil {
		return Artifact{}, fmt.Errorf("store package: %w", err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(abs); err == nil {
		contentType = mt.String()
	}

	return Artifact{
		Path:        filepath.ToSlash(rel),
		Size:        n,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		ContentType: contentType,
	}, nil
}

// Open opens a stored artifact for reading.
func (s *Store) Open(path string) (*os.File, error) {
	f, err := os.Open(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	return f, nil
}

// Size returns the current on-disk size of a stored artifact.
func (s *Store) Size(path string) (int64, error) {
	fi, err := os.Stat(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", types.ErrFileNotFound, path)
		}
		return 0, fmt.Errorf("stat artifact %s: %w", path, err)
	}
	return fi.Size(), nil
}

// Exists reports whether a stored artifact is still present on disk.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(s.abs(path))
	return err == nil
}

// Usage walks the store and reports artifact count and total bytes.
func (s *Store) Usage() (types.StoreStats, error) {
	var stats types.StoreStats
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			stats.Artifacts++
			stats.TotalBytes += fi.Size()
		}
		return nil
	})
	if err != nil {
		return types.StoreStats{}, fmt.Errorf("walk store: %w", err)
	}
	return stats, nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// safeName maps an identifier onto filesystem-safe characters.
func safeName(s string) string {
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
