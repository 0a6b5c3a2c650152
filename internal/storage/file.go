package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileDebounce coalesces the burst of events a single atomic write produces.
const fileDebounce = 50 * time.Millisecond

// File stores each key as a file inside Dir. Writes are atomic (temp file +
// rename), so readers in other processes never observe a partial value.
type File struct {
	Dir    string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	stops  []func()
}

// NewFile opens a file medium rooted at dir, creating it if needed.
func NewFile(dir string, logger *slog.Logger) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &File{Dir: dir, logger: logger}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.Dir, key)
}

// Get reads the file for key.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// Put writes value atomically.
func (f *File) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(f.Dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: rename %s: %w", key, err)
	}
	return nil
}

// Watch follows the directory with fsnotify and emits one event per changed
// key once its writes settle.
func (f *File) Watch(ctx context.Context) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("storage: create watcher: %w", err)
	}
	if err := fw.Add(f.Dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("storage: watch %s: %w", f.Dir, err)
	}

	w := &fileWatch{
		medium:  f,
		fw:      fw,
		events:  make(chan Event, eventBuffer),
		seen:    f.snapshot(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(w.stopped)
			fw.Close()
		})
	}
	f.stops = append(f.stops, stop)

	go w.loop()
	go func() {
		select {
		case <-ctx.Done():
		case <-w.done:
		}
		stop()
	}()
	return w.events, nil
}

// Close stops all watchers. Further Put and Watch calls fail with ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	stops := f.stops
	f.stops = nil
	f.closed = true
	f.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	return nil
}

// snapshot reads every current key so the first event carries an old value.
func (f *File) snapshot() map[string][]byte {
	seen := make(map[string][]byte)
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return seen
	}
	for _, e := range entries {
		if e.IsDir() || !isKeyFile(e.Name()) {
			continue
		}
		if data, err := os.ReadFile(f.path(e.Name())); err == nil {
			seen[e.Name()] = data
		}
	}
	return seen
}

func isKeyFile(name string) bool {
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, ".tmp")
}

type fileWatch struct {
	medium  *File
	fw      *fsnotify.Watcher
	events  chan Event
	seen    map[string][]byte
	done    chan struct{}
	stopped chan struct{}
}

func (w *fileWatch) loop() {
	defer close(w.events)
	defer close(w.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(fileDebounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopped:
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !isKeyFile(name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending[name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for key, t := range pending {
				if now.Sub(t) >= fileDebounce {
					delete(pending, key)
					w.emit(key)
				}
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.medium.logger.Warn("storage: watch error", "dir", w.medium.Dir, "error", err)
		}
	}
}

func (w *fileWatch) emit(key string) {
	data, err := os.ReadFile(w.medium.path(key))
	if err != nil {
		// Removed or replaced again before we read it; a later event follows.
		return
	}
	old, known := w.seen[key]
	if known && bytes.Equal(old, data) {
		return
	}
	w.seen[key] = data
	if !send(w.events, Event{Key: key, OldValue: old, NewValue: data}) {
		w.medium.logger.Warn("storage: watcher backlog full, dropping event", "key", key)
	}
}
