// Package testutil provides fakes shared by the sync engine tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// epoch anchors fake modification times; every write advances one second
// so consecutive Last-Modified values always differ
var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Upload is an audio upload received by the fake server
type Upload struct {
	Path  string
	Name  string
	Audio []byte
}

type fakeApplet struct {
	html            string
	storage         string
	htmlModified    time.Time
	storageModified time.Time
}

// AppletServer is an in-memory applet server speaking the sync protocol
type AppletServer struct {
	*httptest.Server

	mu       sync.Mutex
	applets  map[string]*fakeApplet
	clock    time.Time
	puts     []string
	deletes  int
	uploads  []Upload
	requests map[string]int
	failures map[string]int
	nextID   int
}

// NewAppletServer starts a fake server closed on test cleanup
func NewAppletServer(t testing.TB) *AppletServer {
	t.Helper()
	s := &AppletServer{
		applets:  make(map[string]*fakeApplet),
		clock:    epoch,
		requests: make(map[string]int),
		failures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /applet/{id}/html", s.getHTML)
	mux.HandleFunc("GET /applet/{id}/storage", s.getStorage)
	mux.HandleFunc("PUT /applet/{id}/storage", s.putStorage)
	mux.HandleFunc("DELETE /applet/{id}/storage", s.deleteStorage)
	mux.HandleFunc("POST /applet/{id}", s.upload)
	mux.HandleFunc("POST /applet", s.upload)

	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)
	return s
}

// intercept counts requests and applies injected failures
func (s *AppletServer) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests[key]++
		status := s.failures[key]
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *AppletServer) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *AppletServer) applet(id string) *fakeApplet {
	a, ok := s.applets[id]
	if !ok {
		a = &fakeApplet{}
		s.applets[id] = a
	}
	return a
}

// SetHTML stores a document and advances its marker
func (s *AppletServer) SetHTML(id, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.applet(id)
	a.html = html
	a.htmlModified = s.tick()
}

// SetStorage stores a raw storage body and advances its marker
func (s *AppletServer) SetStorage(id, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.applet(id)
	a.storage = raw
	a.storageModified = s.tick()
}

// Storage returns the raw storage body
func (s *AppletServer) Storage(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applet(id).storage
}

// Markers returns the current Last-Modified values of an applet
func (s *AppletServer) Markers(id string) (storage, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.applet(id)
	return lastModified(a.storageModified), lastModified(a.htmlModified)
}

// Fail makes every request matching method and path answer with status.
// A zero status clears the failure.
func (s *AppletServer) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, method+" "+path)
		return
	}
	s.failures[method+" "+path] = status
}

// Requests counts requests received for method and path
func (s *AppletServer) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// Puts returns the bodies of accepted storage writes in arrival order
func (s *AppletServer) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

// Deletes counts accepted storage deletions
func (s *AppletServer) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Uploads returns received audio uploads
func (s *AppletServer) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *AppletServer) getHTML(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.applets[r.PathValue("id")]
	var body, modified string
	if ok {
		body, modified = a.html, lastModified(a.htmlModified)
	}
	s.mu.Unlock()

	if !ok || modified == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Last-Modified", modified)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

func (s *AppletServer) getStorage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.applets[r.PathValue("id")]
	body, modified := "{}", ""
	if ok && !a.storageModified.IsZero() {
		body, modified = a.storage, lastModified(a.storageModified)
	}
	s.mu.Unlock()

	if modified != "" {
		w.Header().Set("Last-Modified", modified)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (s *AppletServer) putStorage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	a := s.applet(r.PathValue("id"))
	a.storage = string(body)
	a.storageModified = s.tick()
	s.puts = append(s.puts, string(body))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"message":"Storage updated successfully"}`)
}

func (s *AppletServer) deleteStorage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.applets[r.PathValue("id")]
	if ok {
		a.storage = "{}"
		a.storageModified = s.tick()
		s.deletes++
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"message":"Local storage data cleared successfully"}`)
}

func (s *AppletServer) upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, `{"error":"No audio file provided"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("00000000-0000-4000-8000-%012d", s.nextID)
	s.uploads = append(s.uploads, Upload{Path: r.URL.Path, Name: header.Filename, Audio: data})
	a := s.applet(id)
	a.html = "<html><head></head><body>generated</body></html>"
	a.htmlModified = s.tick()
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"message":"Request processed successfully","uuid":%q}`, id)
}

func lastModified(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(http.TimeFormat)
}
