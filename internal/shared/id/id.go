// Package id provides prefixed ULID generation for engine entities.
//
// ULIDs are lexicographically sortable by creation time, which keeps package
// listings and on-disk artifact directories in publish order for free. The
// prefix makes ids self-describing in logs (pkg_*, req_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PackagePrefix = "pkg"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator backed by crypto/rand.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator with the given entropy source. Tests pass
// a deterministic reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID string.
func (g *Generator) Generate() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewPackageID generates a catalog package id.
func NewPackageID() string {
	return Default().GenerateWithPrefix(PackagePrefix)
}

// NewRequestID generates an API request id.
func NewRequestID() string {
	return Default().GenerateWithPrefix(RequestPrefix)
}
