// Package stock is the serialized-inventory lifecycle engine: batch
// registration, the sequential-issuance rule, the issue/receive/return
// workflow, and the running used/available counters on each batch.
package stock

import "time"

// Kind identifies the stock variant a batch holds.
type Kind string

const (
	KindCheckBook Kind = "CHECKBOOK"
	KindCpo       Kind = "CPO"
	KindPassBook  Kind = "PASSBOOK"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCheckBook, KindCpo, KindPassBook:
		return true
	}
	return false
}

// LeafType is the number of leaves (pages) bound into one checkbook.
type LeafType int

const (
	LeafTen        LeafType = 10
	LeafTwentyFive LeafType = 25
	LeafFifty      LeafType = 50
	LeafHundred    LeafType = 100
)

func (l LeafType) Valid() bool {
	switch l {
	case LeafTen, LeafTwentyFive, LeafFifty, LeafHundred:
		return true
	}
	return false
}

// Actor is the identity pair recorded for every transition: a stable staff id
// plus the display name callers render in audit views.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a Actor) IsZero() bool { return a.ID == "" && a.Name == "" }

// Variant carries the kind-specific payload. Fields stay zero for kinds that
// do not use them.
type Variant struct {
	LeafType     LeafType `json:"leaf_type,omitempty"`
	CheckType    string   `json:"check_type,omitempty"`
	PassType     string   `json:"pass_type,omitempty"`
	PassCategory string   `json:"pass_category,omitempty"`
}

// Batch is a registered serial range split into individually trackable units.
type Batch struct {
	ID          string
	Kind        Kind
	StartSerial string
	EndSerial   string
	Variant     Variant

	TotalUnits int
	Used       int
	Finished   bool
	// LastIssuedChild is the item most recently confirmed in-hand (receive),
	// kept for branch reconciliation reports.
	LastIssuedChild string

	BranchID     string
	ProcessID    string
	SubProcessID string

	CreatedBy Actor
	UpdatedBy Actor
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available is the derived counter: units not currently confirmed in-hand.
func (b *Batch) Available() int { return b.TotalUnits - b.Used }

// Item is one issuable unit within a batch: a single serial for CPOs and
// passbooks, or a start/end page sub-range for checkbooks.
type Item struct {
	ID      string
	BatchID string
	Kind    Kind

	// StartSerial is the unit's serial identifier and sort key. EndSerial
	// equals StartSerial except for checkbooks, where it closes the page
	// sub-range.
	StartSerial string
	EndSerial   string
	Variant     Variant

	IssuedAt   *time.Time
	ReceivedAt *time.Time
	ReturnedAt *time.Time
	IssuedBy   Actor
	ReceivedBy Actor
	ReturnedBy Actor

	BranchID     string
	ProcessID    string
	SubProcessID string

	CreatedBy Actor
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IssuanceRequest is the paper trail of one issue attempt: created when a unit
// is reserved, completed once when custody is confirmed. At most one
// unreturned request is active per item.
type IssuanceRequest struct {
	ID      string
	ItemID  string
	BatchID string
	Kind    Kind

	StartSerial   string
	EndSerial     string
	AccountNumber string

	BranchID     string
	ProcessID    string
	SubProcessID string

	IssuedBy   Actor
	IssuedAt   time.Time
	ReceivedBy Actor
	ReceivedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction actions recorded in the append-only audit trail.
const (
	ActionIssue   = "ISSUE"
	ActionReceive = "RECEIVE"
	ActionReturn  = "RETURN"
	ActionDelete  = "DELETE"
)

// Transaction is one append-only audit row, written in the same critical
// section as the transition it records.
type Transaction struct {
	ID        string
	BatchID   string
	ItemID    string
	RequestID string
	Action    string
	Serial    string
	Actor     Actor
	At        time.Time
}
