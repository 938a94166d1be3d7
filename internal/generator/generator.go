// Package generator turns recorded requests into applet documents. The
// speech-to-text and completion work is delegated to an external
// OpenAI-compatible service.
package generator

import (
	"context"
	_ "embed"
	"regexp"
	"strings"
)

//go:embed prompts/initial_app.prompt
var initialTemplate string

//go:embed prompts/change_app.prompt
var changeTemplate string

// Request describes one generation. Current fields are empty for new applets.
type Request struct {
	Audio          []byte
	Filename       string
	ContentType    string
	CurrentHTML    string
	CurrentStorage string // JSON text of the stored snapshot
}

// IsChange reports whether the request modifies an existing applet
func (r Request) IsChange() bool {
	return r.CurrentHTML != ""
}

// Result is a generated applet. HTML or Storage are empty when the
// completion did not contain them.
type Result struct {
	Transcription string
	HTML          string
	Storage       string
}

// Generator produces applets from recorded requests
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Func adapts a function to the Generator interface
type Func func(ctx context.Context, req Request) (*Result, error)

// Generate calls f
func (f Func) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Prompt renders the completion prompt for a transcribed request
func Prompt(transcription string, req Request) string {
	if !req.IsChange() {
		return strings.ReplaceAll(initialTemplate, "{description}", transcription)
	}
	storage := req.CurrentStorage
	if storage == "" {
		storage = "{}"
	}
	return strings.NewReplacer(
		"{description}", transcription,
		"{current_html}", req.CurrentHTML,
		"{current_local_storage}", storage,
	).Replace(changeTemplate)
}

var sections = map[string]*regexp.Regexp{
	"HTML":          regexp.MustCompile(`(?s)##BEGIN_HTML##(.*?)##END_HTML##`),
	"LOCAL_STORAGE": regexp.MustCompile(`(?s)##BEGIN_LOCAL_STORAGE##(.*?)##END_LOCAL_STORAGE##`),
}

// Extract pulls the delimited document and storage sections out of a
// completion, trimming surrounding whitespace
func Extract(completion string) (html, storage string) {
	return section(completion, "HTML"), section(completion, "LOCAL_STORAGE")
}

func section(completion, marker string) string {
	m := sections[marker].FindStringSubmatch(completion)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
