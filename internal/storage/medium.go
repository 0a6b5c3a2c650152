// Package storage provides the durable key/value media that treasury views
// share. A medium stores opaque values under string keys and reports every
// key change to watchers, including changes made by other processes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// ErrClosed is returned by operations on a closed medium.
var ErrClosed = errors.New("storage: medium closed")

// Event describes a change to one key. OldValue is nil when the watcher had
// not seen the key before.
type Event struct {
	Key      string
	OldValue []byte
	NewValue []byte
}

// Medium is a durable key/value store with change notification.
type Medium interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value under key.
	Put(ctx context.Context, key string, value []byte) error
	// Watch reports changes to any key until ctx is done or the medium is
	// closed, at which point the channel is closed.
	Watch(ctx context.Context) (<-chan Event, error)
	// Close releases resources held by the medium.
	Close() error
}

// eventBuffer is the channel capacity for watchers. Slow watchers lose
// events rather than stall writers; the next event carries the latest value.
const eventBuffer = 64

// validateKey rejects keys that cannot be used as file names.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}

// send delivers evt without blocking. It reports whether the event was queued.
func send(ch chan<- Event, evt Event) bool {
	select {
	case ch <- evt:
		return true
	default:
		return false
	}
}
