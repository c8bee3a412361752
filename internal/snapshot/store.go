package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"genesis/internal/stream"
)

const ext = ".json"

// Store keeps snapshot documents as JSON files in one directory.
type Store struct {
	dir string
	log *zap.Logger
}

func NewStore(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log.Named("sessions")}
}

func (s *Store) Dir() string { return s.dir }

// SanitizeName keeps ASCII letters, digits, '-' and '_', replacing anything
// else with '_'.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Save writes doc and returns the file path.
func (s *Store) Save(doc Document) (string, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	path := filepath.Join(s.dir, SanitizeName(doc.Name)+ext)
	tmp, err := os.CreateTemp(s.dir, ".save-*")
	if err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("save session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	s.log.Info("session saved", zap.String("name", doc.Name), zap.String("path", path))
	return path, nil
}

// Load reads a session by name, trying the sanitised name as given and then
// with the .json extension. A trailing .json on name is ignored.
func (s *Store) Load(name string) (Document, error) {
	safe := SanitizeName(strings.TrimSuffix(strings.TrimSpace(name), ext))
	if safe == "" {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	var data []byte
	found := false
	for _, candidate := range []string{safe, safe + ext} {
		path := filepath.Join(s.dir, candidate)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("read session %q: %w", name, err)
		}
		found = true
		break
	}
	if !found {
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %q: %v", ErrInvalid, name, err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("session %q: %w", name, err)
	}
	if v := doc.Visuals; v != nil && v.Legacy != nil {
		if _, err := v.Legacy.Media(); err != nil {
			s.log.Warn("loading unknown legacy visual as frame", zap.String("session", name), zap.String("type", v.Legacy.Type))
		}
	}
	return doc, nil
}

// List returns the saved session names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// Watch calls fn after changes to the session files settle. It blocks until
// ctx is done.
func (s *Store) Watch(ctx context.Context, delay time.Duration, fn func()) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch sessions: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch sessions: %w", err)
	}

	deb := stream.NewDebouncer(delay, fn)
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ext {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				s.log.Debug("session file changed", zap.String("file", filepath.Base(ev.Name)), zap.String("op", ev.Op.String()))
				deb.Trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("session watcher error", zap.Error(err))
		}
	}
}
