// Package telemetry provides a JSONL audit stream of treasury action changes.
// Every insert, status change, evidence merge, reload and external signal a
// view observes is recorded as one JSON event, so a run can be replayed and
// audited independently of the shared collection.
package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/papapumpkin/treasury/internal/store"
)

// Event kinds identify the type of telemetry event.
const (
	KindActionCreated  = "action_created"
	KindStatusChanged  = "status_changed"
	KindLogAppended    = "log_appended"
	KindEvidenceMerged = "evidence_merged"
	KindViewReloaded   = "view_reloaded"
	KindSignalReceived = "signal_received"
)

// Event represents a single telemetry record.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	ViewID    string    `json:"view,omitempty"`
	ActionID  string    `json:"action,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	view string
	mu   sync.Mutex
}

// NewEmitter creates a new Emitter that appends JSONL events for view to the
// file at path, creating it if needed.
func NewEmitter(path, view string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
		view: view,
	}, nil
}

// Emit writes a single event. An empty ViewID is filled with the emitter's
// view. Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.ViewID == "" {
		evt.ViewID = e.view
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Record converts a store change into an event and emits it.
func (e *Emitter) Record(c store.Change) error {
	if e == nil {
		return nil
	}
	evt := Event{Timestamp: c.At, ActionID: c.ActionID}
	switch c.Kind {
	case store.ChangeInserted:
		evt.Kind = KindActionCreated
		evt.Data = map[string]string{"status": string(c.Status)}
	case store.ChangeStatus:
		evt.Kind = KindStatusChanged
		evt.Data = map[string]string{"status": string(c.Status)}
	case store.ChangeLog:
		evt.Kind = KindLogAppended
		evt.Data = map[string]string{"message": c.Message}
	case store.ChangeEvidence:
		evt.Kind = KindEvidenceMerged
	case store.ChangeReloaded:
		evt.Kind = KindViewReloaded
	default:
		return fmt.Errorf("telemetry: unknown change kind %q", c.Kind)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return e.Emit(evt)
}

// Follow records every change from changes until the channel closes or ctx
// is done.
func (e *Emitter) Follow(ctx context.Context, changes <-chan store.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if err := e.Record(c); err != nil {
				return err
			}
		}
	}
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}

// ReadFile decodes every event in the JSONL file at path. Blank lines are
// skipped; a malformed line is an error naming its line number.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("telemetry: %s:%d: %w", path, line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: read %s: %w", path, err)
	}
	return events, nil
}
