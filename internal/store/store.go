// Package store persists applets on the filesystem, one directory per
// applet: the current document, timestamped document history, the storage
// snapshot, uploaded audio and their transcriptions.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/appletsync/internal/shared/id"
)

// MaxStorageBytes bounds a stored snapshot
const MaxStorageBytes = 10 << 20

const (
	indexFile   = "index.html"
	storageFile = "storage.json"
	promptExt   = ".prompt"
	emptyObject = "{}"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrTooLarge    = errors.New("storage data too large")
	ErrInvalidJSON = errors.New("storage data is not valid JSON")
)

// Resource is a stored payload and its modification time. Modified is zero
// when the payload was synthesized rather than read from disk.
type Resource struct {
	Data     []byte
	Modified time.Time
}

// Store is a directory of applets. Writes to one store are serialized.
type Store struct {
	root   string
	ids    *id.Generator
	logger *zap.Logger
	mu     sync.RWMutex
}

// New opens a store rooted at root, creating the directory when needed
func New(root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve applet root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create applet root: %w", err)
	}
	return &Store{root: abs, ids: id.Default(), logger: logger}, nil
}

// Root returns the absolute store directory
func (s *Store) Root() string { return s.root }

func (s *Store) dir(applet uuid.UUID) string {
	return filepath.Join(s.root, applet.String())
}

// Create allocates a directory for a new applet
func (s *Store) Create() (uuid.UUID, error) {
	applet := uuid.New()
	if err := os.MkdirAll(s.dir(applet), 0o755); err != nil {
		return uuid.Nil, fmt.Errorf("create applet %s: %w", applet, err)
	}
	return applet, nil
}

// Exists reports whether the applet directory exists
func (s *Store) Exists(applet uuid.UUID) bool {
	info, err := os.Stat(s.dir(applet))
	return err == nil && info.IsDir()
}

// Content returns the current document
func (s *Store) Content(applet uuid.UUID) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.dir(applet), indexFile)
	data, modified, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("html for %s: %w", applet, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &Resource{Data: data, Modified: modified}, nil
}

// Storage returns the storage snapshot. A missing or undecodable file
// yields an empty object without a modification time.
func (s *Store) Storage(applet uuid.UUID) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.dir(applet), storageFile)
	data, modified, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Resource{Data: []byte(emptyObject)}, nil
	}
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		s.logger.Error("Stored snapshot is not valid JSON",
			zap.String("applet", applet.String()),
			zap.Error(err),
		)
		return &Resource{Data: []byte(emptyObject)}, nil
	}
	return &Resource{Data: data, Modified: modified}, nil
}

// PutStorage replaces the storage snapshot of an existing applet
func (s *Store) PutStorage(applet uuid.UUID, data []byte) error {
	if len(data) > MaxStorageBytes {
		return ErrTooLarge
	}
	var decoded interface{}
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Exists(applet) {
		return fmt.Errorf("applet %s: %w", applet, ErrNotFound)
	}
	return writeFile(filepath.Join(s.dir(applet), storageFile), data)
}

// ClearStorage empties an existing snapshot
func (s *Store) ClearStorage(applet uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir(applet), storageFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage for %s: %w", applet, ErrNotFound)
	}
	return writeFile(path, []byte(emptyObject))
}

// SaveContent replaces the current document and keeps a timestamped copy.
// It returns the copy's file name.
func (s *Store) SaveContent(applet uuid.UUID, html string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(applet)
	if err := writeFile(filepath.Join(dir, indexFile), []byte(html)); err != nil {
		return "", err
	}
	copyName := s.ids.Artifact("index", ".html")
	if err := writeFile(filepath.Join(dir, copyName), []byte(html)); err != nil {
		return "", err
	}
	return copyName, nil
}

// SaveAudio stores an uploaded recording as "<kind>-<ulid><ext>" and
// returns the file name
func (s *Store) SaveAudio(applet uuid.UUID, kind, ext string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.ids.Artifact(kind, ext)
	f, err := os.OpenFile(filepath.Join(s.dir(applet), name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("save audio: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("save audio: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("save audio: %w", err)
	}
	return name, nil
}

// SaveTranscription stores the text next to the recording it came from
func (s *Store) SaveTranscription(applet uuid.UUID, audioName, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.TrimSuffix(audioName, filepath.Ext(audioName)) + promptExt
	return writeFile(filepath.Join(s.dir(applet), name), []byte(text))
}

// Prompts returns the applet's transcriptions in file name order, which is
// chronological for generated names
func (s *Store) Prompts(applet uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir(applet))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("applet %s: %w", applet, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), promptExt) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	prompts := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir(applet), name))
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", name, err)
		}
		prompts = append(prompts, string(data))
	}
	return prompts, nil
}

func readFile(path string) ([]byte, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

// writeFile replaces path atomically so readers never see a partial file
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}
