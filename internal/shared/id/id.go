// Package id generates sortable identifiers for requests and stored
// artifacts.
//
// Identifiers are ULIDs: lexicographic order follows creation time, so
// artifact names sort chronologically in a directory listing. Request ids
// carry a prefix to keep logs readable.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies an API request
type RequestID string

// RequestPrefix marks request ids in logs
const RequestPrefix = "req"

func (id RequestID) String() string { return string(id) }

// Generator generates monotonic ULIDs
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand. Ids created within
// the same millisecond still increase.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0), time.Now)
}

// NewGeneratorWithEntropy creates a generator with custom entropy and clock,
// for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// Artifact names a stored file: "<stem>-<ulid><ext>", or "<ulid><ext>"
// when stem is empty
func (g *Generator) Artifact(stem, ext string) string {
	if stem == "" {
		return g.GenerateString() + ext
	}
	return fmt.Sprintf("%s-%s%s", stem, g.GenerateString(), ext)
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewArtifact names a stored file with the default generator
func NewArtifact(stem, ext string) string {
	return Default().Artifact(stem, ext)
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
