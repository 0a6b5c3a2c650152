package storage

import (
	"bytes"
	"context"
	"sync"
)

// Memory is an in-process medium. Several stores sharing one Memory behave
// like views sharing a durable store, which is how the tests exercise
// cross-view sync.
type Memory struct {
	mu       sync.Mutex
	values   map[string][]byte
	watchers map[*memoryWatch]struct{}
	closed   bool
}

type memoryWatch struct {
	events chan Event
	once   sync.Once
}

func (w *memoryWatch) close() {
	w.once.Do(func() { close(w.events) })
}

// NewMemory returns an empty in-process medium.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string][]byte),
		watchers: make(map[*memoryWatch]struct{}),
	}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Put stores a copy of value and notifies watchers when it changed.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old, known := m.values[key]
	if known && bytes.Equal(old, value) {
		m.mu.Unlock()
		return nil
	}
	v := bytes.Clone(value)
	m.values[key] = v
	// Sends never block, so holding the lock keeps them ordered with close.
	for w := range m.watchers {
		send(w.events, Event{Key: key, OldValue: bytes.Clone(old), NewValue: bytes.Clone(v)})
	}
	m.mu.Unlock()
	return nil
}

// Watch subscribes to every subsequent Put.
func (m *Memory) Watch(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	w := &memoryWatch{events: make(chan Event, eventBuffer)}
	m.watchers[w] = struct{}{}
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, live := m.watchers[w]; live {
			delete(m.watchers, w)
			w.close()
		}
	}()
	return w.events, nil
}

// Close ends all watches.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for w := range m.watchers {
		w.close()
	}
	m.watchers = make(map[*memoryWatch]struct{})
	m.closed = true
	return nil
}
