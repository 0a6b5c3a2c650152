// Package store holds the authoritative id -> action mapping of one view.
//
// Every mutation is applied in memory, the whole collection is persisted to
// the shared medium, and a fresh value is written under the sync marker key
// so other views sharing the medium know to reload. There is no locking
// across views: the last full write wins.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/storage"
)

// Storage keys shared by every view.
const (
	DocumentKey = "treasury-action-store"
	MarkerKey   = "treasury-sync"
)

// logTimeFormat is the timestamp prefix of apiLog entries.
const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// document is the persisted layout of the collection, newest action first.
type document struct {
	State struct {
		Actions []action.TreasuryAction `json:"actions"`
	} `json:"state"`
	Version int `json:"version"`
}

// Store is safe for concurrent use. A single mutex serialises writers, so
// updates issued by one lifecycle step are applied and persisted in order.
type Store struct {
	medium storage.Medium
	viewID string
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	actions map[string]*action.TreasuryAction
	order   []string // insertion order, oldest first
	seq     uint64

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock used for log stamps and markers.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithViewID fixes the view id written into sync markers.
func WithViewID(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.viewID = id
		}
	}
}

// Open creates a store over medium and loads any persisted collection.
func Open(ctx context.Context, medium storage.Medium, opts ...Option) (*Store, error) {
	s := &Store{
		medium:  medium,
		viewID:  uuid.NewString(),
		logger:  slog.Default(),
		clock:   time.Now,
		actions: make(map[string]*action.TreasuryAction),
		subs:    make(map[chan Change]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	list, err := s.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	s.replaceLocked(list)
	return s, nil
}

// ViewID identifies this store in the sync markers it writes.
func (s *Store) ViewID() string {
	return s.viewID
}

// Insert registers a new action.
func (s *Store) Insert(ctx context.Context, a action.TreasuryAction) error {
	if a.ID == "" {
		return fmt.Errorf("store: insert: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	rec := a.Clone()
	if rec.APILog == nil {
		rec.APILog = []string{}
	}
	s.actions[a.ID] = &rec
	s.order = append(s.order, a.ID)

	if err := s.persistLocked(ctx); err != nil {
		delete(s.actions, a.ID)
		s.order = s.order[:len(s.order)-1]
		return err
	}
	s.notify(Change{Kind: ChangeInserted, ActionID: a.ID, Status: rec.Status, At: s.clock()})
	return nil
}

// UpdateStatus moves an action forward and stamps the matching timestamp.
// Unknown ids are a logged no-op; transitions off the status graph return
// ErrInvalidTransition and change nothing.
func (s *Store) UpdateStatus(ctx context.Context, id string, status action.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.actions[id]
	if !ok {
		s.logger.Warn("store: status update for unknown action", "id", id, "status", status)
		return nil
	}
	if !rec.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, rec.Status, status, id)
	}

	prev := rec.Clone()
	stamp := at
	rec.Status = status
	switch status {
	case action.StatusApproved:
		rec.ApprovedAt = &stamp
	case action.StatusSubmitted:
		rec.SubmittedAt = &stamp
	case action.StatusFailed:
		rec.FailedAt = &stamp
	}

	if err := s.persistLocked(ctx); err != nil {
		*rec = prev
		return err
	}
	s.notify(Change{Kind: ChangeStatus, ActionID: id, Status: status, At: at})
	return nil
}

// AppendLog appends a timestamped entry to the action's apiLog.
func (s *Store) AppendLog(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.actions[id]
	if !ok {
		s.logger.Warn("store: log append for unknown action", "id", id)
		return nil
	}
	now := s.clock()
	prev := rec.Clone()
	rec.APILog = append(rec.APILog, "["+now.UTC().Format(logTimeFormat)+"] "+message)

	if err := s.persistLocked(ctx); err != nil {
		*rec = prev
		return err
	}
	s.notify(Change{Kind: ChangeLog, ActionID: id, Status: rec.Status, At: now, Message: message})
	return nil
}

// MergeEvidence sets the non-empty fields of partial that are still empty
// on the record. Set fields are never overwritten.
func (s *Store) MergeEvidence(ctx context.Context, id string, partial action.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.actions[id]
	if !ok {
		s.logger.Warn("store: evidence merge for unknown action", "id", id)
		return nil
	}
	prev := rec.RuntimeEvidence
	ev := &rec.RuntimeEvidence
	changed := false
	for _, f := range []struct {
		name string
		dst  *string
		src  string
	}{
		{"freezeId", &ev.FreezeID, partial.FreezeID},
		{"releaseId", &ev.ReleaseID, partial.ReleaseID},
		{"walletSignature", &ev.WalletSignature, partial.WalletSignature},
		{"blockchainTxId", &ev.BlockchainTxID, partial.BlockchainTxID},
	} {
		switch {
		case f.src == "":
		case *f.dst == "":
			*f.dst = f.src
			changed = true
		case *f.dst != f.src:
			s.logger.Warn("store: evidence field already set", "id", id, "field", f.name)
		}
	}
	if !changed {
		return nil
	}

	if err := s.persistLocked(ctx); err != nil {
		rec.RuntimeEvidence = prev
		return err
	}
	s.notify(Change{Kind: ChangeEvidence, ActionID: id, Status: rec.Status, At: s.clock()})
	return nil
}

// Get returns a copy of the action with id.
func (s *Store) Get(id string) (action.TreasuryAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.actions[id]
	if !ok {
		return action.TreasuryAction{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// ListAll returns copies of every action, newest first.
func (s *Store) ListAll() []action.TreasuryAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Reload replaces the in-memory collection with the persisted one. A read or
// decode failure is returned as *SyncError and leaves state untouched; a
// missing document means storage was cleared and empties the view.
func (s *Store) Reload(ctx context.Context) error {
	list, err := s.read(ctx)
	if err != nil {
		return &SyncError{Err: err}
	}
	s.mu.Lock()
	s.replaceLocked(list)
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeReloaded, At: s.clock()})
	return nil
}

// read loads the persisted list, newest first.
func (s *Store) read(ctx context.Context) ([]action.TreasuryAction, error) {
	data, err := s.medium.Get(ctx, DocumentKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", DocumentKey, err)
	}
	return doc.State.Actions, nil
}

func (s *Store) replaceLocked(list []action.TreasuryAction) {
	s.actions = make(map[string]*action.TreasuryAction, len(list))
	s.order = make([]string, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		rec := list[i].Clone()
		if _, dup := s.actions[rec.ID]; dup {
			s.logger.Warn("store: duplicate id in persisted collection", "id", rec.ID)
			continue
		}
		s.actions[rec.ID] = &rec
		s.order = append(s.order, rec.ID)
	}
}

func (s *Store) listLocked() []action.TreasuryAction {
	out := make([]action.TreasuryAction, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.actions[s.order[i]].Clone())
	}
	return out
}

// persistLocked writes the full collection and then a fresh sync marker.
// Callers restore their in-memory change when it fails.
func (s *Store) persistLocked(ctx context.Context) error {
	var doc document
	doc.State.Actions = s.listLocked()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode collection: %w", err)
	}
	if err := s.medium.Put(ctx, DocumentKey, data); err != nil {
		return fmt.Errorf("store: persist collection: %w", err)
	}
	s.seq++
	marker := s.viewID + ":" + strconv.FormatInt(s.clock().UnixNano(), 10) + ":" + strconv.FormatUint(s.seq, 10)
	if err := s.medium.Put(ctx, MarkerKey, []byte(marker)); err != nil {
		return fmt.Errorf("store: write sync marker: %w", err)
	}
	return nil
}

// MarkerView extracts the view id from a sync marker value.
func MarkerView(marker string) string {
	view, _, _ := strings.Cut(marker, ":")
	return view
}
