package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/papapumpkin/treasury/internal/action"
)

// liveBacklog bounds undelivered signals per action.
const liveBacklog = 4

// Live is the Source for a real wallet integration. Signals arrive out of
// band, normally through the HTTP signal webhook, and are handed to the
// runner waiting on the action with Deliver.
type Live struct {
	mu      sync.Mutex
	waiting map[string]chan Signal
}

// NewLive returns an empty Live source.
func NewLive() *Live {
	return &Live{waiting: make(map[string]chan Signal)}
}

// Name implements Source.
func (l *Live) Name() string { return "live" }

// Preamble implements Source.
func (l *Live) Preamble() []string {
	return []string{"Requesting wallet signature (approval only)..."}
}

// Signals implements Source. The subscription lasts until ctx is done; the
// runner cancels it once the action is terminal, so a signal the session
// rejects does not end it.
func (l *Live) Signals(ctx context.Context, a action.TreasuryAction) (<-chan Signal, error) {
	l.mu.Lock()
	if _, ok := l.waiting[a.ID]; ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, a.ID)
	}
	ch := make(chan Signal, liveBacklog)
	l.waiting[a.ID] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.release(a.ID, ch)
	}()
	return ch, nil
}

// Deliver hands s to the runner waiting on actionID.
func (l *Live) Deliver(actionID string, s Signal) error {
	if err := s.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.waiting[actionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, actionID)
	}
	select {
	case ch <- s:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrBacklogFull, actionID)
	}
}

// Pending returns the ids of actions awaiting signals, sorted.
func (l *Live) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.waiting))
	for id := range l.waiting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Live) release(id string, ch chan Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.waiting[id]; ok && cur == ch {
		delete(l.waiting, id)
		close(ch)
	}
}
