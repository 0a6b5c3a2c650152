package treasury

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/lifecycle"
	"github.com/papapumpkin/treasury/internal/storage"
	"github.com/papapumpkin/treasury/internal/store"
)

func newService(t *testing.T, src lifecycle.Source) *Service {
	t.Helper()
	st, err := store.Open(context.Background(), storage.NewMemory())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return New(st, action.DefaultTable(), src, nil)
}

func waitStatus(t *testing.T, s *Service, id string, want action.Status) action.TreasuryAction {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		a, err := s.Store.Get(id)
		if err == nil && a.Status == want {
			return a
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want %s", a.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreate_SimulatedReachesSubmitted(t *testing.T) {
	t.Parallel()
	sim := &lifecycle.Simulator{ApprovalDelay: time.Millisecond, CompletionDelay: time.Millisecond}
	s := newService(t, sim)

	a, err := s.Create(context.Background(), action.Payload{Type: action.TypeBudgetTransfer, Amount: 50, Note: "Q1", UserID: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Status != action.StatusCreated {
		t.Errorf("returned status = %s, want Created", a.Status)
	}
	got := waitStatus(t, s, a.ID, action.StatusSubmitted)
	s.Wait()

	if !strings.HasSuffix(got.APILog[0], "Action created by alice") {
		t.Errorf("first log = %q", got.APILog[0])
	}
	if got.ApprovedAt == nil || got.SubmittedAt == nil || got.FailedAt != nil {
		t.Errorf("timestamps approved=%v submitted=%v failed=%v", got.ApprovedAt, got.SubmittedAt, got.FailedAt)
	}
}

func TestCreate_InvalidPayloadStoresNothing(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)

	_, err := s.Create(context.Background(), action.Payload{Type: "", Amount: 10, UserID: "x"})
	var verr *action.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create error = %v, want *ValidationError", err)
	}
	if n := len(s.Store.ListAll()); n != 0 {
		t.Errorf("store has %d actions, want 0", n)
	}
}

func TestCancel_LiveAction(t *testing.T) {
	t.Parallel()
	s := newService(t, lifecycle.NewLive())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := s.Create(ctx, action.Payload{Type: action.TypeEmergencyFund, Amount: 5, UserID: "bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	live := s.Source.(*lifecycle.Live)
	deadline := time.Now().Add(3 * time.Second)
	for len(live.Pending()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("runner never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Cancel(ctx, a.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got := waitStatus(t, s, a.ID, action.StatusFailed)
	s.Wait()
	if got.ApprovedAt != nil || got.SubmittedAt != nil || got.FailedAt == nil {
		t.Errorf("timestamps approved=%v submitted=%v failed=%v", got.ApprovedAt, got.SubmittedAt, got.FailedAt)
	}
	if err := s.Cancel(ctx, a.ID, ""); !errors.Is(err, ErrTerminal) {
		t.Errorf("second Cancel = %v, want ErrTerminal", err)
	}
}

func TestCancel_WithoutSourceFailsDirectly(t *testing.T) {
	t.Parallel()
	s := newService(t, nil)
	ctx := context.Background()

	a, err := s.Create(ctx, action.Payload{Type: action.TypeStrategicReserve, Amount: 1, UserID: "c"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Wait()
	if err := s.Cancel(ctx, a.ID, "wallet cancelled"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := s.Store.Get(a.ID)
	if got.Status != action.StatusFailed {
		t.Fatalf("status = %s, want Failed", got.Status)
	}
	if !strings.Contains(got.APILog[len(got.APILog)-1], "wallet cancelled") {
		t.Errorf("last log = %q", got.APILog[len(got.APILog)-1])
	}
	if _, err := s.Store.Get("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(missing) = %v", err)
	}
}

func TestCancel_WhileSimulatedApprovalPending(t *testing.T) {
	t.Parallel()
	gate := make(chan time.Time)
	sim := &lifecycle.Simulator{After: func(time.Duration) <-chan time.Time { return gate }}
	s := newService(t, sim)
	ctx := context.Background()

	a, err := s.Create(ctx, action.Payload{Type: action.TypeBudgetTransfer, Amount: 50, UserID: "alice"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Cancel(ctx, a.ID, "operator cancelled"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Cancel returns once the runner has recorded the failure.
	got, err := s.Store.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != action.StatusFailed {
		t.Fatalf("status = %s, want Failed", got.Status)
	}

	// A late approval from the simulator must not reach the record.
	select {
	case gate <- time.Now():
	case <-time.After(100 * time.Millisecond):
	}
	s.Wait()

	got, _ = s.Store.Get(a.ID)
	if got.RuntimeEvidence.WalletSignature != "" || got.RuntimeEvidence.ReleaseID != "" {
		t.Errorf("approval evidence on failed action: %+v", got.RuntimeEvidence)
	}
	if got.ApprovedAt != nil {
		t.Errorf("approvedAt = %v, want nil", got.ApprovedAt)
	}
	if last := got.APILog[len(got.APILog)-1]; !strings.HasSuffix(last, "✗ Error: operator cancelled") {
		t.Errorf("last log = %q", last)
	}
}

func TestRunner_StopsWhenAnotherViewFailedTheAction(t *testing.T) {
	t.Parallel()
	gate := make(chan time.Time, 1)
	sim := &lifecycle.Simulator{After: func(time.Duration) <-chan time.Time { return gate }}
	s := newService(t, sim)
	ctx := context.Background()

	a, err := s.Create(ctx, action.Payload{Type: action.TypeReserveAllocation, Amount: 5, UserID: "bob"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A direct write, as a reload of another view's cancel would produce.
	if err := s.Runner.Engine.Fail(s.Store.Recorder(ctx, a.ID), "cancelled elsewhere"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	gate <- time.Now()
	s.Wait()

	got, _ := s.Store.Get(a.ID)
	if got.Status != action.StatusFailed || got.RuntimeEvidence.WalletSignature != "" {
		t.Errorf("status = %s, evidence = %+v", got.Status, got.RuntimeEvidence)
	}
	for _, line := range got.APILog {
		if strings.Contains(line, "Wallet signature received") {
			t.Errorf("approval logged after failure: %q", line)
		}
	}
}
