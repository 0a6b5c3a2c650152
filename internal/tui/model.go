package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/papapumpkin/treasury/internal/action"
)

// CancelFunc fails the action with id.
type CancelFunc func(id string) error

// Model is the watch view: a live list of actions with a detail pane.
type Model struct {
	Actions []action.TreasuryAction
	Keys    KeyMap
	Cancel  CancelFunc

	cursor   int
	selected string
	detail   bool
	width    int
	height   int
	notice   string
	err      error
}

// NewModel returns a Model showing actions.
func NewModel(actions []action.TreasuryAction, cancel CancelFunc) Model {
	m := Model{Keys: DefaultKeyMap(), Cancel: cancel}
	m.setActions(actions)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case MsgSnapshot:
		m.setActions(msg.Actions)
	case MsgCancelled:
		if msg.Err != nil {
			m.err = msg.Err
			m.notice = ""
		} else {
			m.err = nil
			m.notice = "cancelled " + msg.ID
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.Keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.Keys.Down):
		if m.cursor < len(m.Actions)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.Keys.Enter):
		m.detail = len(m.Actions) > 0
	case key.Matches(msg, m.Keys.Back):
		m.detail = false
	case key.Matches(msg, m.Keys.Cancel):
		a, ok := m.current()
		if !ok || m.Cancel == nil || a.Status.Terminal() {
			return m, nil
		}
		cancel, id := m.Cancel, a.ID
		return m, func() tea.Msg {
			return MsgCancelled{ID: id, Err: cancel(id)}
		}
	}
	if a, ok := m.current(); ok {
		m.selected = a.ID
	}
	return m, nil
}

// setActions replaces the list and keeps the cursor on the same action
// when it is still present.
func (m *Model) setActions(actions []action.TreasuryAction) {
	m.Actions = actions
	m.cursor = 0
	for i, a := range actions {
		if a.ID == m.selected {
			m.cursor = i
			break
		}
	}
	if a, ok := m.current(); ok {
		m.selected = a.ID
	} else {
		m.detail = false
	}
}

func (m Model) current() (action.TreasuryAction, bool) {
	if m.cursor < 0 || m.cursor >= len(m.Actions) {
		return action.TreasuryAction{}, false
	}
	return m.Actions[m.cursor], true
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.statusBar())
	b.WriteString("\n\n")
	if a, ok := m.current(); ok && m.detail {
		b.WriteString(m.detailView(a))
	} else {
		b.WriteString(m.listView())
	}
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(styleError.Render("error: "+m.err.Error()) + "\n")
	case m.notice != "":
		b.WriteString(styleFooter.Render(m.notice) + "\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) statusBar() string {
	counts := make(map[action.Status]int)
	for _, a := range m.Actions {
		counts[a.Status]++
	}
	parts := []string{fmt.Sprintf("TREASURY  %d actions", len(m.Actions))}
	for _, s := range action.StatusFlow() {
		parts = append(parts, fmt.Sprintf("%s %d", s, counts[s]))
	}
	bar := styleStatusBar
	if m.width > 0 {
		bar = bar.Width(m.width)
	}
	return bar.Render(strings.Join(parts, "  ·  "))
}

func (m Model) listView() string {
	if len(m.Actions) == 0 {
		return styleRowNormal.Render("  no actions yet")
	}
	var b strings.Builder
	b.WriteString(styleHeading.Render(fmt.Sprintf("  %-28s %-20s %12s  %s", "REFERENCE", "TYPE", "AMOUNT", "STATUS")))
	b.WriteString("\n")
	for i, a := range m.Actions {
		row := fmt.Sprintf("%-28s %-20s %12g  ", a.ReferenceID, a.Type, a.Amount)
		if i == m.cursor {
			b.WriteString(selectionIndicator + " " + styleRowSelected.Render(row))
		} else {
			b.WriteString("  " + styleRowNormal.Render(row))
		}
		b.WriteString(renderStatus(a.Status))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) detailView(a action.TreasuryAction) string {
	var b strings.Builder
	b.WriteString(styleHeading.Render(a.ReferenceID) + "  " + renderStatus(a.Status) + "\n")
	fmt.Fprintf(&b, "  type      %s\n", a.Type)
	fmt.Fprintf(&b, "  amount    %g π\n", a.Amount)
	if a.Note != "" {
		fmt.Fprintf(&b, "  note      %s\n", a.Note)
	}
	ev := a.RuntimeEvidence
	fmt.Fprintf(&b, "  freeze    %s\n", orDash(ev.FreezeID))
	fmt.Fprintf(&b, "  release   %s\n", orDash(ev.ReleaseID))
	fmt.Fprintf(&b, "  signature %s\n", orDash(ev.WalletSignature))
	fmt.Fprintf(&b, "  tx        %s\n", orDash(ev.BlockchainTxID))
	b.WriteString("\n")

	lines := a.APILog
	if limit := m.height - 16; limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for _, l := range lines {
		b.WriteString(styleRowNormal.Render("  "+l) + "\n")
	}
	return b.String()
}

func (m Model) footer() string {
	var parts []string
	for _, k := range m.Keys.ShortHelp() {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return styleFooter.Render(strings.Join(parts, " · "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
