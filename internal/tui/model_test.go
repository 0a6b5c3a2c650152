package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/papapumpkin/treasury/internal/action"
)

func sampleActions() []action.TreasuryAction {
	return []action.TreasuryAction{
		{ID: "a2", ReferenceID: "TRX-TREASURY-20260501-2222", Type: action.TypeEmergencyFund, Amount: 5, Status: action.StatusSubmitted},
		{ID: "a1", ReferenceID: "TRX-TREASURY-20260501-1111", Type: action.TypeBudgetTransfer, Amount: 50, Status: action.StatusCreated,
			APILog: []string{"[2026-05-01T12:00:00.000Z] Initiating approval"}},
	}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m = next.(Model)
		cmd = c
	}
	return m, cmd
}

func TestModel_Navigation(t *testing.T) {
	t.Parallel()
	m := NewModel(sampleActions(), nil)

	m, _ = press(t, m, "down", "down", "down")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want clamped at 1", m.cursor)
	}
	m, _ = press(t, m, "up", "up")
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
}

func TestModel_DetailShowsSelected(t *testing.T) {
	t.Parallel()
	m := NewModel(sampleActions(), nil)
	m, _ = press(t, m, "j", "enter")

	view := m.View()
	if !strings.Contains(view, "Initiating approval") || !strings.Contains(view, "TRX-TREASURY-20260501-1111") {
		t.Errorf("detail view missing selected action:\n%s", view)
	}
	m, _ = press(t, m, "esc")
	if m.detail {
		t.Error("esc should leave detail")
	}
}

func TestModel_SnapshotKeepsSelection(t *testing.T) {
	t.Parallel()
	m := NewModel(sampleActions(), nil)
	m, _ = press(t, m, "down")

	fresh := append([]action.TreasuryAction{{ID: "a3", ReferenceID: "TRX-NEW", Status: action.StatusCreated}}, sampleActions()...)
	next, _ := m.Update(MsgSnapshot{Actions: fresh})
	m = next.(Model)
	if got, _ := m.current(); got.ID != "a1" {
		t.Errorf("selected = %s, want a1", got.ID)
	}
	if !strings.Contains(m.View(), "3 actions") {
		t.Errorf("status bar not updated:\n%s", m.View())
	}
}

func TestModel_Cancel(t *testing.T) {
	t.Parallel()
	var cancelled string
	m := NewModel(sampleActions(), func(id string) error {
		cancelled = id
		return nil
	})

	// Terminal actions cannot be cancelled.
	_, cmd := press(t, m, "x")
	if cmd != nil {
		t.Fatal("cancel on a submitted action should be a no-op")
	}

	m, cmd = press(t, m, "down", "x")
	if cmd == nil {
		t.Fatal("expected cancel command")
	}
	msg := cmd()
	if cancelled != "a1" {
		t.Errorf("cancelled = %q, want a1", cancelled)
	}
	next, _ := m.Update(msg)
	if !strings.Contains(next.(Model).View(), "cancelled a1") {
		t.Errorf("notice missing:\n%s", next.(Model).View())
	}

	next, _ = m.Update(MsgCancelled{ID: "a1", Err: errors.New("boom")})
	if !strings.Contains(next.(Model).View(), "error: boom") {
		t.Errorf("error missing:\n%s", next.(Model).View())
	}
}

func TestModel_Quit(t *testing.T) {
	t.Parallel()
	_, cmd := press(t, NewModel(nil, nil), "q")
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestModel_EmptyView(t *testing.T) {
	t.Parallel()
	m := NewModel(nil, nil)
	m, _ = press(t, m, "enter")
	if m.detail {
		t.Error("enter on empty list should not open detail")
	}
	if !strings.Contains(m.View(), "no actions yet") {
		t.Errorf("empty view:\n%s", m.View())
	}
}
