package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	a := gen.GenerateString()
	b := gen.GenerateString()

	assert.Len(t, a, 26)
	assert.True(t, IsValid(a))
	assert.NotEqual(t, a, b)
}

func TestGenerateWithPrefix(t *testing.T) {
	id := NewRequestID()

	require.True(t, strings.HasPrefix(id.String(), "req_"))
	assert.True(t, IsValid(strings.TrimPrefix(id.String(), "req_")))
}

func TestArtifact(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		stem   string
		ext    string
		prefix string
	}{
		{"index", ".html", "index-"},
		{"", ".webm", ""},
		{"", ".prompt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.stem+tt.ext, func(t *testing.T) {
			name := gen.Artifact(tt.stem, tt.ext)
			require.True(t, strings.HasPrefix(name, tt.prefix))
			require.True(t, strings.HasSuffix(name, tt.ext))

			core := strings.TrimSuffix(strings.TrimPrefix(name, tt.prefix), tt.ext)
			assert.True(t, IsValid(core))
		})
	}
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gen := NewGeneratorWithEntropy(ulid.Monotonic(strings.NewReader(strings.Repeat("x", 1024)), 0), func() time.Time { return fixed })

	names := make([]string, 20)
	for i := range names {
		names[i] = gen.Artifact("index", ".html")
	}
	assert.True(t, sort.StringsAreSorted(names))
}

func TestTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	gen := NewGeneratorWithEntropy(ulid.Monotonic(strings.NewReader(strings.Repeat("y", 64)), 0), func() time.Time { return at })

	ts, err := Timestamp(gen.GenerateString())
	require.NoError(t, err)
	assert.True(t, at.Equal(ts))

	_, err = Timestamp("not-a-ulid")
	assert.Error(t, err)
}

func TestIsValid(t *testing.T) {
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("index.html"))
	assert.True(t, IsValid(NewGenerator().GenerateString()))
}

func TestConcurrentGeneration(t *testing.T) {
	gen := Default()
	const workers, each = 8, 100

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id := gen.GenerateString()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*each)
}
