package store

import (
	"time"

	"github.com/papapumpkin/treasury/internal/action"
)

// ChangeKind identifies what a local store change did.
type ChangeKind string

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeStatus   ChangeKind = "status"
	ChangeLog      ChangeKind = "log"
	ChangeEvidence ChangeKind = "evidence"
	ChangeReloaded ChangeKind = "reloaded"
)

// Change is a notification about one applied mutation. ActionID is empty for
// ChangeReloaded.
type Change struct {
	Kind     ChangeKind
	ActionID string
	Status   action.Status
	At       time.Time
	Message  string
}

const subscriberBuffer = 128

// Subscribe returns a channel of subsequent changes and a function that ends
// the subscription. Notifications to a full channel are dropped.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.logger.Debug("store: subscriber full, dropping change", "kind", c.Kind, "id", c.ActionID)
		}
	}
}
