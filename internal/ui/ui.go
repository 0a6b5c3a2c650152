package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/telemetry"
)

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	blue   = "\033[34m"
	yellow = "\033[33m"
	green  = "\033[32m"
	red    = "\033[31m"
	cyan   = "\033[36m"
)

const timeLayout = "2006-01-02 15:04:05"

// Printer renders CLI output. Records go to Out, status lines to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

func New() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

func statusColor(s action.Status) string {
	switch s {
	case action.StatusCreated:
		return blue
	case action.StatusApproved:
		return yellow
	case action.StatusSubmitted:
		return green
	case action.StatusFailed:
		return red
	}
	return ""
}

// Status renders s in its palette color.
func Status(s action.Status) string {
	return statusColor(s) + string(s) + reset
}

func (p *Printer) Banner() {
	fmt.Fprintln(p.Err, bold+cyan+"  ╔═══════════════════════════════════╗"+reset)
	fmt.Fprintln(p.Err, bold+cyan+"  ║"+reset+bold+"  TREASURY  "+dim+"operational actions"+reset+bold+cyan+"   ║"+reset)
	fmt.Fprintln(p.Err, bold+cyan+"  ╚═══════════════════════════════════╝"+reset)
	fmt.Fprintln(p.Err)
}

func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.Err, red+bold+"error: "+reset+"%s\n", msg)
}

func (p *Printer) Info(msg string) {
	fmt.Fprintf(p.Err, dim+"%s"+reset+"\n", msg)
}

// ActionCreated announces a newly registered action.
func (p *Printer) ActionCreated(a action.TreasuryAction) {
	fmt.Fprintf(p.Err, green+bold+"✓ created"+reset+" %s "+dim+"(%s, %g π)"+reset+"\n", a.ReferenceID, a.Type, a.Amount)
}

// ActionFinished reports the terminal status of a foreground lifecycle.
func (p *Printer) ActionFinished(a action.TreasuryAction) {
	switch a.Status {
	case action.StatusSubmitted:
		fmt.Fprintf(p.Err, green+bold+"✓ submitted"+reset+" %s\n", a.ReferenceID)
	case action.StatusFailed:
		fmt.Fprintf(p.Err, red+bold+"✗ failed"+reset+" %s\n", a.ReferenceID)
	default:
		fmt.Fprintf(p.Err, yellow+"◆ %s"+reset+" %s "+dim+"awaiting signature"+reset+"\n", a.Status, a.ReferenceID)
	}
}

// ActionTable lists actions one per row, newest first as given.
func (p *Printer) ActionTable(actions []action.TreasuryAction) {
	if len(actions) == 0 {
		p.Info("no actions")
		return
	}
	tw := tabwriter.NewWriter(p.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, bold+"ID\tREFERENCE\tTYPE\tAMOUNT\tSTATUS\tCREATED"+reset)
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%s\n",
			a.ID, a.ReferenceID, a.Type, a.Amount, Status(a.Status), a.CreatedAt.Local().Format(timeLayout))
	}
	tw.Flush()
}

// ActionDetail prints every field of a, its evidence and its apiLog.
func (p *Printer) ActionDetail(a action.TreasuryAction) {
	w := p.Out
	fmt.Fprintf(w, bold+"%s"+reset+" %s\n", a.ReferenceID, Status(a.Status))
	fmt.Fprintf(w, "  id:        %s\n", a.ID)
	fmt.Fprintf(w, "  type:      %s\n", a.Type)
	fmt.Fprintf(w, "  amount:    %g π\n", a.Amount)
	if a.Note != "" {
		fmt.Fprintf(w, "  note:      %s\n", a.Note)
	}
	fmt.Fprintf(w, "  created:   %s\n", a.CreatedAt.Local().Format(timeLayout))
	printTime(w, "approved", a.ApprovedAt)
	printTime(w, "submitted", a.SubmittedAt)
	printTime(w, "failed", a.FailedAt)

	m := a.Manifest
	fmt.Fprintf(w, "  manifest:  limits %s  approvals %s  reporting %s\n", check(m.LimitCheck), check(m.ApprovalRequired), check(m.ReportingEnabled))

	ev := a.RuntimeEvidence
	fmt.Fprintln(w, dim+"evidence:"+reset)
	for _, f := range [][2]string{
		{"freeze", ev.FreezeID},
		{"release", ev.ReleaseID},
		{"signature", ev.WalletSignature},
		{"tx", ev.BlockchainTxID},
	} {
		v := f[1]
		if v == "" {
			v = dim + "-" + reset
		}
		fmt.Fprintf(w, "  %-10s %s\n", f[0]+":", v)
	}

	fmt.Fprintln(w, dim+"log:"+reset)
	for _, line := range a.APILog {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

// StatusFlow prints the status graph in display order.
func (p *Printer) StatusFlow() {
	parts := make([]string, 0, 4)
	for _, s := range action.StatusFlow() {
		parts = append(parts, Status(s))
	}
	fmt.Fprintln(p.Out, strings.Join(parts, dim+" → "+reset))
}

// Event prints one telemetry record.
func (p *Printer) Event(evt telemetry.Event) {
	line := fmt.Sprintf(dim+"%s"+reset+" %-16s", evt.Timestamp.Local().Format(timeLayout), evt.Kind)
	if evt.ActionID != "" {
		line += " " + evt.ActionID
	}
	if evt.Data != nil {
		line += dim + fmt.Sprintf(" %v", evt.Data) + reset
	}
	fmt.Fprintln(p.Out, line)
}

func printTime(w io.Writer, label string, t *time.Time) {
	if t == nil {
		return
	}
	fmt.Fprintf(w, "  %-10s %s\n", label+":", t.Local().Format(timeLayout))
}

func check(ok bool) string {
	if ok {
		return green + "✓" + reset
	}
	return red + "✗" + reset
}
