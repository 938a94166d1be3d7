package loader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/appletsync/internal/sandbox"
)

// fakeSurface records navigations without running scripts
type fakeSurface struct {
	x, y      float64
	loaded    bool
	documents []string
	err       error
}

func (s *fakeSurface) ScrollOffset() (float64, float64, bool) { return s.x, s.y, s.loaded }
func (s *fakeSurface) ScrollTo(x, y float64)                  { s.x, s.y = x, y }

func (s *fakeSurface) Navigate(_ context.Context, document string, onLoad func()) error {
	if s.err != nil {
		return s.err
	}
	s.documents = append(s.documents, document)
	s.x, s.y, s.loaded = 0, 0, true
	onLoad()
	return nil
}

func TestInject(t *testing.T) {
	tests := []struct {
		name     string
		document string
		want     string
	}{
		{
			name:     "plain head",
			document: "<html><head></head><body>x</body></html>",
			want:     "<html><head><script>P</script></head><body>x</body></html>",
		},
		{
			name:     "head with attributes and doctype",
			document: "<!DOCTYPE html>\n<html lang=\"en\"><head data-x=\"1\"><title>T</title></head></html>",
			want:     "<!DOCTYPE html>\n<html lang=\"en\"><head data-x=\"1\"><script>P</script><title>T</title></head></html>",
		},
		{
			name:     "uppercase head",
			document: "<HTML><HEAD><TITLE>T</TITLE></HEAD></HTML>",
			want:     "<HTML><HEAD><script>P</script><TITLE>T</TITLE></HEAD></HTML>",
		},
		{
			name:     "head mentioned in a comment first",
			document: "<!-- <head> --><html><head></head></html>",
			want:     "<!-- <head> --><html><head><script>P</script></head></html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inject(tt.document, "<script>P</script>")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInjectSynthesizesHead(t *testing.T) {
	got, err := Inject("<body><p>hi</p></body>", "<script>P</script>")
	require.NoError(t, err)
	assert.Equal(t, "<html><head><script>P</script></head><body><p>hi</p></body></html>", got)
}

func TestLoadPreservesScroll(t *testing.T) {
	surface := &fakeSurface{x: 0, y: 240, loaded: true}
	l := New(surface, nil)

	err := l.Load(context.Background(), map[string]interface{}{"a": "1"}, "<html><head></head><body></body></html>")
	require.NoError(t, err)

	require.Len(t, surface.documents, 1)
	assert.Contains(t, surface.documents[0], `<head><script>(function() {`)
	assert.Contains(t, surface.documents[0], `var data = {"a":"1"};`)
	assert.Equal(t, 0.0, surface.x)
	assert.Equal(t, 240.0, surface.y)
}

func TestLoadDefaultsScrollBeforeFirstPaint(t *testing.T) {
	surface := &fakeSurface{x: 5, y: 9, loaded: false}
	l := New(surface, nil)

	require.NoError(t, l.Load(context.Background(), nil, "<head></head>"))
	assert.Equal(t, 0.0, surface.x)
	assert.Equal(t, 0.0, surface.y)
}

func TestLoadNormalizesSnapshot(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
	}{
		{name: "nil", raw: nil},
		{name: "array", raw: []interface{}{"a"}},
		{name: "string", raw: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := &fakeSurface{}
			require.NoError(t, New(surface, nil).Load(context.Background(), tt.raw, "<head></head>"))
			assert.Contains(t, surface.documents[0], `JSON.parse("{}");`)
		})
	}
}

func TestLoadNavigateError(t *testing.T) {
	surface := &fakeSurface{err: errors.New("boom")}
	err := New(surface, nil).Load(context.Background(), nil, "<head></head>")
	assert.ErrorContains(t, err, "boom")
}

func TestLoadIntoFrame(t *testing.T) {
	frame := sandbox.New(sandbox.DefaultConfig(), nil)
	defer frame.Close()
	ctx := context.Background()
	l := New(frame, nil)

	document := "<html><head></head><body>x</body></html>"
	require.NoError(t, l.Load(ctx, map[string]interface{}{"a": "1"}, document))

	rendered, err := frame.Document()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rendered, "<html><head><script>"))

	val, err := frame.Eval(ctx, "localStorage.getItem('a')")
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	frame.ScrollTo(0, 240)
	require.NoError(t, l.Load(ctx, map[string]interface{}{"a": "2"}, document))

	x, y, ok := frame.ScrollOffset()
	assert.True(t, ok)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 240.0, y)

	val, err = frame.Eval(ctx, "localStorage.getItem('a')")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}
