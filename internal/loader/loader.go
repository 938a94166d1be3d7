// Package loader renders applet documents into a sandbox surface with the
// storage proxy active and the viewport preserved across reloads.
package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/appletsync/internal/shared/types"
	"github.com/GriffinCanCode/appletsync/internal/storageproxy"
)

// Surface is an isolated rendering target. *sandbox.Frame satisfies it.
type Surface interface {
	// ScrollOffset reports the current viewport; ok is false before the
	// first document has loaded
	ScrollOffset() (x, y float64, ok bool)
	ScrollTo(x, y float64)
	// Navigate replaces the document wholesale and calls onLoad once the
	// new document has loaded
	Navigate(ctx context.Context, document string, onLoad func()) error
}

// Loader merges the storage proxy into documents and renders them
type Loader struct {
	surface Surface
	logger  *zap.Logger
}

// New creates a loader for surface
func New(surface Surface, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{surface: surface, logger: logger}
}

// Load renders document with a storage proxy seeded from raw. raw is the
// decoded storage payload; anything but a JSON object seeds an empty mapping.
func (l *Loader) Load(ctx context.Context, raw interface{}, document string) error {
	snapshot := types.Normalize(raw)

	tag, err := storageproxy.Tag(snapshot)
	if err != nil {
		return err
	}

	modified, err := Inject(document, tag)
	if err != nil {
		return fmt.Errorf("inject storage proxy: %w", err)
	}

	x, y, ok := l.surface.ScrollOffset()
	if !ok {
		x, y = 0, 0
	}

	err = l.surface.Navigate(ctx, modified, func() {
		l.surface.ScrollTo(x, y)
	})
	if err != nil {
		return fmt.Errorf("navigate sandbox: %w", err)
	}

	l.logger.Debug("Applet loaded",
		zap.Int("keys", len(snapshot)),
		zap.Float64("scroll_x", x),
		zap.Float64("scroll_y", y),
	)
	return nil
}

// Inject inserts markup immediately after the opening head tag. The rest of
// the document is left byte-for-byte intact. Documents without a head tag
// get one synthesized by the HTML parser.
func Inject(document, markup string) (string, error) {
	if offset, ok := headOffset(document); ok {
		return document[:offset] + markup + document[offset:], nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", err
	}
	doc.Find("head").First().PrependHtml(markup)
	return doc.Html()
}

// headOffset returns the byte offset just past the first <head> start tag,
// giving up once the body begins.
func headOffset(document string) (int, bool) {
	z := html.NewTokenizer(strings.NewReader(document))
	offset := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return 0, false
		}
		offset += len(z.Raw())

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, _ := z.TagName()
		switch string(name) {
		case "head":
			return offset, true
		case "body":
			return 0, false
		}
	}
}
