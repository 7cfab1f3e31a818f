// Package streamer serves resumable byte-range reads over stored package
// artifacts. Ranges are lazy: bytes are read from the file as the caller
// consumes them, never materialized up front.
package streamer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/shared/types"
)

// Catalog resolves package ids to their records.
type Catalog interface {
	FindPackage(ctx context.Context, packageID string) (types.UpdatePackageInfo, error)
}

// FileOpener opens stored artifacts for reading.
type FileOpener interface {
	Open(path string) (*os.File, error)
}

// Range is an open read of [Start, Start+Length) over a package artifact.
// The caller owns Reader and must close it.
type Range struct {
	Reader         io.ReadCloser
	Package        types.UpdatePackageInfo
	Start          int64
	Length         int64
	TotalSize      int64
	SupportsResume bool
}

// Streamer opens range reads. It is stateless and fully concurrent: any
// number of clients may stream overlapping ranges of the same package.
type Streamer struct {
	catalog Catalog
	files   FileOpener
	logger  *zap.Logger
}

// New creates a streamer.
func New(catalog Catalog, files FileOpener, logger *zap.Logger) *Streamer {
	return &Streamer{catalog: catalog, files: files, logger: logger}
}

// OpenRange opens a read of the package's bytes starting at start.
//
// A negative start is treated as 0; start beyond end of file fails with
// ErrOffsetOutOfRange. A non-positive length, or one overflowing the file,
// is reinterpreted as read-to-end.
func (s *Streamer) OpenRange(ctx context.Context, packageID string, start, length int64) (*Range, error) {
	pkg, err := s.catalog.FindPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	f, err := s.files.Open(pkg.Path)
	if err != nil {
		s.logger.Warn("artifact missing for catalog package",
			zap.String("package_id", packageID),
			zap.String("path", pkg.Path),
		)
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat artifact %s: %w", pkg.Path, err)
	}
	size := fi.Size()

	if start < 0 {
		start = 0
	}
	if start > size {
		f.Close()
		return nil, fmt.Errorf("%w: offset %d beyond size %d", types.ErrOffsetOutOfRange, start, size)
	}
	if length <= 0 || start+length > size {
		length = size - start
	}

	return &Range{
		Reader:         &sectionCloser{r: io.NewSectionReader(f, start, length), f: f},
		Package:        pkg,
		Start:          start,
		Length:         length,
		TotalSize:      size,
		SupportsResume: true,
	}, nil
}

// sectionCloser couples a section reader with the file it reads from.
type sectionCloser struct {
	r *io.SectionReader
	f *os.File
}

func (s *sectionCloser) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *sectionCloser) Close() error               { return s.f.Close() }
