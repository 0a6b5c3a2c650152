package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/storage"
	"github.com/papapumpkin/treasury/internal/store"
)

func seededStore(t *testing.T) (*store.Store, []action.TreasuryAction) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, storage.NewMemory())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := action.NewFactory(action.DefaultTable())
	var out []action.TreasuryAction
	for _, typ := range []action.Type{action.TypeBudgetTransfer, action.TypeEmergencyFund} {
		a, err := f.Create(action.Payload{Type: typ, Amount: 10, UserID: "u"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := st.Insert(ctx, a); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		out = append(out, a)
	}
	return st, out
}

func TestFindAction(t *testing.T) {
	t.Parallel()
	st, actions := seededStore(t)
	a := actions[0]

	tests := []struct {
		name string
		arg  string
	}{
		{"full id", a.ID},
		{"reference", a.ReferenceID},
		{"id prefix", a.ID[:13]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := findAction(st, tt.arg)
			if err != nil {
				t.Fatalf("findAction(%q): %v", tt.arg, err)
			}
			if got.ID != a.ID {
				t.Errorf("findAction(%q) = %s, want %s", tt.arg, got.ID, a.ID)
			}
		})
	}

	if _, err := findAction(st, "zzz"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("findAction(zzz) error = %v, want ErrNotFound", err)
	}
	if _, err := findAction(st, ""); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("findAction(\"\") error = %v, want ambiguous", err)
	}
}

func TestFilterStatus(t *testing.T) {
	t.Parallel()
	st, _ := seededStore(t)
	all := st.ListAll()

	if got := filterStatus(st.ListAll(), ""); len(got) != len(all) {
		t.Errorf("no filter: got %d, want %d", len(got), len(all))
	}
	if got := filterStatus(st.ListAll(), action.StatusCreated); len(got) != 2 {
		t.Errorf("Created: got %d, want 2", len(got))
	}
	if got := filterStatus(st.ListAll(), action.StatusSubmitted); len(got) != 0 {
		t.Errorf("Submitted: got %d, want 0", len(got))
	}
}

func TestCommandsRegistered(t *testing.T) {
	t.Parallel()
	want := []string{"create", "list", "show", "cancel", "serve", "watch", "events"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered (err=%v)", name, err)
		}
	}
	if !strings.Contains(createCmd.Long, `"Budget Transfer"`) {
		t.Errorf("create help does not list action types:\n%s", createCmd.Long)
	}
}
