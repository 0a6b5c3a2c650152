// Package action defines the treasury action entity, its status graph, the
// per-type approval policy table, and the factory that turns a validated
// payload into a fresh record.
package action

import "time"

// Type identifies one of the fixed treasury action categories.
type Type string

const (
	TypeReserveAllocation  Type = "Reserve Allocation"
	TypeBudgetTransfer     Type = "Budget Transfer"
	TypeOperationalExpense Type = "Operational Expense"
	TypeEmergencyFund      Type = "Emergency Fund"
	TypeStrategicReserve   Type = "Strategic Reserve"
)

// Status is the lifecycle position of an action.
type Status string

const (
	StatusCreated   Status = "Created"
	StatusApproved  Status = "Approved"
	StatusSubmitted Status = "Submitted"
	StatusFailed    Status = "Failed"
)

// transitions lists the forward edges of the status graph.
var transitions = map[Status][]Status{
	StatusCreated:  {StatusApproved, StatusFailed},
	StatusApproved: {StatusSubmitted, StatusFailed},
}

// StatusFlow returns every status in display order.
func StatusFlow() []Status {
	return []Status{StatusCreated, StatusApproved, StatusSubmitted, StatusFailed}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusApproved, StatusSubmitted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusFailed
}

// CanTransition reports whether moving from s to next follows the graph.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Evidence accumulates identifiers issued by external systems. Each field is
// written at most once.
type Evidence struct {
	FreezeID        string `json:"freezeId,omitempty"`
	ReleaseID       string `json:"releaseId,omitempty"`
	WalletSignature string `json:"walletSignature,omitempty"`
	BlockchainTxID  string `json:"blockchainTxId,omitempty"`
}

// Empty reports whether no field is set.
func (e Evidence) Empty() bool {
	return e == Evidence{}
}

// Manifest is a display-only snapshot of the policy taken at creation.
type Manifest struct {
	LimitCheck       bool `json:"limitCheck"`
	ApprovalRequired bool `json:"approvalRequired"`
	ReportingEnabled bool `json:"reportingEnabled"`
}

// TreasuryAction is one treasury ticket and its audit trail.
type TreasuryAction struct {
	ID              string     `json:"id"`
	ReferenceID     string     `json:"referenceId"`
	Type            Type       `json:"type"`
	Amount          float64    `json:"amount"`
	Note            string     `json:"note"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	FailedAt        *time.Time `json:"failedAt,omitempty"`
	APILog          []string   `json:"apiLog"`
	RuntimeEvidence Evidence   `json:"runtimeEvidence"`
	Manifest        Manifest   `json:"manifest"`
}

// Clone returns a deep copy so callers cannot alias the store's record.
func (a TreasuryAction) Clone() TreasuryAction {
	out := a
	out.APILog = make([]string, len(a.APILog))
	copy(out.APILog, a.APILog)
	out.ApprovedAt = cloneTime(a.ApprovedAt)
	out.SubmittedAt = cloneTime(a.SubmittedAt)
	out.FailedAt = cloneTime(a.FailedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
