package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/store"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNewEmitter_ErrorOnBadPath(t *testing.T) {
	t.Parallel()
	_, err := NewEmitter("/nonexistent/dir/events.jsonl", "v1")
	if err == nil {
		t.Fatal("expected error for bad path, got nil")
	}
	if !strings.Contains(err.Error(), "telemetry: open") {
		t.Errorf("expected wrapped error, got: %v", err)
	}
}

func TestRecord_MapsChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	em, err := NewEmitter(path, "v1")
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	changes := []store.Change{
		{Kind: store.ChangeInserted, ActionID: "a1", Status: action.StatusCreated, At: testNow},
		{Kind: store.ChangeLog, ActionID: "a1", Message: "Initiating approval", At: testNow},
		{Kind: store.ChangeEvidence, ActionID: "a1", At: testNow},
		{Kind: store.ChangeStatus, ActionID: "a1", Status: action.StatusApproved, At: testNow},
		{Kind: store.ChangeReloaded, At: testNow},
	}
	for _, c := range changes {
		if err := em.Record(c); err != nil {
			t.Fatalf("Record(%s): %v", c.Kind, err)
		}
	}
	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	wantKinds := []string{KindActionCreated, KindLogAppended, KindEvidenceMerged, KindStatusChanged, KindViewReloaded}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d", len(events), len(wantKinds))
	}
	for i, evt := range events {
		if evt.Kind != wantKinds[i] {
			t.Errorf("event %d: kind=%q, want %q", i, evt.Kind, wantKinds[i])
		}
		if evt.ViewID != "v1" {
			t.Errorf("event %d: view=%q, want v1", i, evt.ViewID)
		}
		if !evt.Timestamp.Equal(testNow) {
			t.Errorf("event %d: ts=%v, want %v", i, evt.Timestamp, testNow)
		}
	}
	data, _ := events[3].Data.(map[string]any)
	if data["status"] != "Approved" {
		t.Errorf("status_changed data = %v", events[3].Data)
	}
}

func TestRecord_UnknownKind(t *testing.T) {
	t.Parallel()
	em, err := NewEmitter(filepath.Join(t.TempDir(), "e.jsonl"), "v1")
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	defer em.Close()
	if err := em.Record(store.Change{Kind: "bogus"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestFollow_StopsOnClose(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "follow.jsonl")
	em, err := NewEmitter(path, "v1")
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	ch := make(chan store.Change, 2)
	ch <- store.Change{Kind: store.ChangeInserted, ActionID: "a1", At: testNow}
	ch <- store.Change{Kind: store.ChangeReloaded, At: testNow}
	close(ch)

	if err := em.Follow(context.Background(), ch); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	em.Close()
	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestEmit_ConcurrentSafety(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "concurrent.jsonl")

	em, err := NewEmitter(path, "v1")
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(idx int) {
			defer wg.Done()
			evt := Event{
				Timestamp: time.Now(),
				Kind:      KindSignalReceived,
				ActionID:  "concurrent",
				Data:      map[string]int{"idx": idx},
			}
			if err := em.Emit(evt); err != nil {
				t.Errorf("Emit from goroutine %d: %v", idx, err)
			}
		}(i)
	}
	wg.Wait()

	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	events, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
}

func TestNilEmitter_NoOp(t *testing.T) {
	t.Parallel()
	var em *Emitter

	if err := em.Emit(Event{Kind: KindActionCreated}); err != nil {
		t.Errorf("nil Emit: %v", err)
	}
	if err := em.Record(store.Change{Kind: store.ChangeInserted}); err != nil {
		t.Errorf("nil Record: %v", err)
	}
	if err := em.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestReadFile_ReportsBadLine(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{\"kind\":\"action_created\"}\n\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadFile(path)
	if err == nil || !strings.Contains(err.Error(), ":3:") {
		t.Fatalf("ReadFile error = %v, want line 3", err)
	}
}

func TestEvent_OmitsEmptyFields(t *testing.T) {
	t.Parallel()
	evt := Event{Timestamp: testNow, Kind: KindViewReloaded}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, field := range []string{`"view"`, `"action"`, `"data"`} {
		if strings.Contains(s, field) {
			t.Errorf("expected %s to be omitted, got: %s", field, s)
		}
	}
}
