// Package lifecycle drives treasury actions through the status flow
//
//	Created -> Approved -> Submitted
//	Created | Approved -> Failed
//
// The engine never touches storage. Each operation writes through a
// ProcessingContext supplied by the caller (normally a store.Recorder), and
// external approval signals arrive from a Source on a channel.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/papapumpkin/treasury/internal/action"
)

// ProcessingContext receives the side effects of a lifecycle step, in the
// order the engine issues them.
type ProcessingContext interface {
	Log(message string) error
	StatusChange(status action.Status, at time.Time) error
	EvidenceMerge(partial action.Evidence) error
}

// Engine implements the lifecycle operations. It is stateless apart from
// the policy table and clock, and safe for concurrent use.
type Engine struct {
	Table *action.Table
	Clock func() time.Time
}

// NewEngine returns an engine consulting table with the wall clock.
func NewEngine(table *action.Table) *Engine {
	return &Engine{Table: table, Clock: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

// RequiresApproval consults the policy table for a's type.
func (e *Engine) RequiresApproval(a action.TreasuryAction) (bool, error) {
	cfg, err := e.Table.Lookup(a.Type)
	if err != nil {
		return false, err
	}
	return cfg.RequiresApproval, nil
}

// BeginApproval records that the approval request was initiated. It does
// not change status; the external signal does.
func (e *Engine) BeginApproval(a action.TreasuryAction, pc ProcessingContext) error {
	m := a.Manifest
	return logAll(pc,
		fmt.Sprintf("Initiating approval for %s", a.ReferenceID),
		fmt.Sprintf("Type: %s | Operational Amount: %g π (non-binding data only)", a.Type, a.Amount),
		fmt.Sprintf("Freeze ID: %s", a.RuntimeEvidence.FreezeID),
		fmt.Sprintf("Hooks (UI) - Limits: %s | Approvals: %s | Reporting: %s", mark(m.LimitCheck), mark(m.ApprovalRequired), mark(m.ReportingEnabled)),
	)
}

// CompleteApproval records the wallet signature and release id, then moves
// the action to Approved. Callers must invoke it at most once per action.
func (e *Engine) CompleteApproval(pc ProcessingContext, paymentRef, releaseID string) error {
	return steps(
		func() error { return pc.Log(fmt.Sprintf("✓ Wallet signature received (%s)", abbreviate(paymentRef, 12))) },
		func() error { return pc.Log("✓ Release ID generated: " + releaseID) },
		func() error {
			return pc.EvidenceMerge(action.Evidence{ReleaseID: releaseID, WalletSignature: paymentRef})
		},
		func() error { return pc.StatusChange(action.StatusApproved, e.now()) },
	)
}

// AutoApprove moves an action whose policy needs no approval to Approved
// without a wallet signature.
func (e *Engine) AutoApprove(pc ProcessingContext, releaseID string) error {
	return steps(
		func() error { return pc.Log("✓ Approval not required by policy") },
		func() error { return pc.Log("✓ Release ID generated: " + releaseID) },
		func() error { return pc.EvidenceMerge(action.Evidence{ReleaseID: releaseID}) },
		func() error { return pc.StatusChange(action.StatusApproved, e.now()) },
	)
}

// CompleteSubmission records the chain transaction and moves the action to
// the terminal Submitted status.
func (e *Engine) CompleteSubmission(pc ProcessingContext, txID string) error {
	return steps(
		func() error { return pc.Log(fmt.Sprintf("✓ Signature on-chain (TX: %s)", abbreviate(txID, 16))) },
		func() error { return pc.EvidenceMerge(action.Evidence{BlockchainTxID: txID}) },
		func() error { return pc.StatusChange(action.StatusSubmitted, e.now()) },
		func() error { return pc.Log("✓ Submitted to institutional review queue") },
	)
}

// Fail logs reason and moves the action to the terminal Failed status.
func (e *Engine) Fail(pc ProcessingContext, reason string) error {
	return steps(
		func() error { return pc.Log("✗ Error: " + reason) },
		func() error { return pc.StatusChange(action.StatusFailed, e.now()) },
	)
}

func steps(ops ...func() error) error {
	for _, op := range ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

func logAll(pc ProcessingContext, lines ...string) error {
	for _, line := range lines {
		if err := pc.Log(line); err != nil {
			return err
		}
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// abbreviate shortens long external ids for log display.
func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
