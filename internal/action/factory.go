package action

import (
	"math"
	"strings"
	"time"
)

// Payload is the user-supplied input for a new action.
type Payload struct {
	Type   Type    `json:"type"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
	UserID string  `json:"userId"`
}

// Factory validates payloads and builds initial records.
type Factory struct {
	Table *Table

	// Clock and NewID are replaceable in tests.
	Clock func() time.Time
	NewID func() string
}

// NewFactory returns a factory backed by table with the wall clock and uuid ids.
func NewFactory(table *Table) *Factory {
	return &Factory{Table: table, Clock: time.Now, NewID: NewID}
}

// Validate applies the payload rules in order and returns the first failure
// as a *ValidationError. Note and user id are not checked.
func (f *Factory) Validate(p Payload) error {
	typ := Type(strings.TrimSpace(string(p.Type)))
	if typ == "" {
		return &ValidationError{Code: InvalidType, Message: "Action type is required"}
	}
	if _, err := f.Table.Lookup(typ); err != nil {
		return &ValidationError{Code: InvalidType, Message: "Invalid action type", Err: err}
	}
	if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount <= 0 {
		return &ValidationError{Code: InvalidAmount, Message: "Valid operational amount is required"}
	}
	return nil
}

// Create validates p and returns a new action in status Created. It does not
// register the record anywhere; the caller inserts it into a store.
func (f *Factory) Create(p Payload) (TreasuryAction, error) {
	if err := f.Validate(p); err != nil {
		return TreasuryAction{}, err
	}
	typ := Type(strings.TrimSpace(string(p.Type)))
	cfg, err := f.Table.Lookup(typ)
	if err != nil {
		return TreasuryAction{}, err
	}

	now := f.now()
	return TreasuryAction{
		ID:          f.newID(),
		ReferenceID: NewReferenceID(now),
		Type:        typ,
		Amount:      p.Amount,
		Note:        p.Note,
		Status:      StatusCreated,
		CreatedAt:   now,
		APILog:      []string{},
		RuntimeEvidence: Evidence{
			FreezeID: NewFreezeID(now),
		},
		Manifest: Manifest{
			LimitCheck:       true,
			ApprovalRequired: cfg.RequiresApproval,
			ReportingEnabled: true,
		},
	}, nil
}

func (f *Factory) now() time.Time {
	if f.Clock == nil {
		return time.Now()
	}
	return f.Clock()
}

func (f *Factory) newID() string {
	if f.NewID == nil {
		return NewID()
	}
	return f.NewID()
}
