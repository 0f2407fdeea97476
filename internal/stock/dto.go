package stock

import "time"

// RegisterBatchRequest registers one serial range as a batch of issuable
// units. Leaves is required for checkbooks and rejected for other kinds.
type RegisterBatchRequest struct {
	Kind        Kind   `json:"kind" binding:"required"`
	StartSerial string `json:"start_serial" binding:"required"`
	EndSerial   string `json:"end_serial" binding:"required"`

	Leaves       int    `json:"leaves,omitempty"`
	CheckType    string `json:"check_type,omitempty"`
	PassType     string `json:"pass_type,omitempty"`
	PassCategory string `json:"pass_category,omitempty"`

	BranchID     string `json:"branch_id" binding:"required"`
	ProcessID    string `json:"process_id" binding:"required"`
	SubProcessID string `json:"sub_process_id" binding:"required"`

	CreatedBy Actor `json:"created_by" binding:"required"`
}

// BatchSummary is the batch view returned to callers. Field set is fixed for
// compatibility with existing consumers.
type BatchSummary struct {
	ParentID        string    `json:"parent_id"`
	ItemKind        Kind      `json:"item_kind"`
	StartSerial     string    `json:"start_serial"`
	EndSerial       string    `json:"end_serial"`
	TotalUnits      int       `json:"total_units"`
	Used            int       `json:"used"`
	Available       int       `json:"available"`
	Finished        bool      `json:"finished"`
	ChildrenCreated int       `json:"children_created"`
	Message         string    `json:"message,omitempty"`
	LeafType        LeafType  `json:"leaf_type,omitempty"`
	BranchID        string    `json:"branch_id"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IssueNextRequest asks for the next issuable unit of a kind at a branch.
// Leaves narrows checkbook issuance to batches of that leaf type.
type IssueNextRequest struct {
	BranchID      string `json:"branch_id" binding:"required"`
	Kind          Kind   `json:"kind" binding:"required"`
	Leaves        int    `json:"leaves,omitempty"`
	AccountNumber string `json:"account_number" binding:"required"`
	ProcessID     string `json:"process_id"`
	SubProcessID  string `json:"sub_process_id"`
	IssuedBy      Actor  `json:"issued_by" binding:"required"`
}

// ReceiveRequest confirms physical custody of a reserved unit.
type ReceiveRequest struct {
	ReceivedBy Actor `json:"received_by" binding:"required"`
}

// ReturnRequest surrenders an issued unit back to the branch.
type ReturnRequest struct {
	Serial     string `json:"serial" binding:"required"`
	ReturnedBy Actor  `json:"returned_by" binding:"required"`
}

// ActorRequest carries the acting identity for direct by-id transitions.
type ActorRequest struct {
	Actor Actor `json:"actor" binding:"required"`
}

// IssuanceRecord is the combined request+item view returned by the issuance
// workflow.
type IssuanceRecord struct {
	RequestID     string     `json:"request_id"`
	ItemID        string     `json:"item_id"`
	BatchID       string     `json:"batch_id"`
	Kind          Kind       `json:"kind"`
	StartSerial   string     `json:"start_serial"`
	EndSerial     string     `json:"end_serial"`
	AccountNumber string     `json:"account_number"`
	BranchID      string     `json:"branch_id"`
	IssuedBy      Actor      `json:"issued_by"`
	IssuedAt      time.Time  `json:"issued_at"`
	ReceivedBy    *Actor     `json:"received_by,omitempty"`
	ReceivedAt    *time.Time `json:"received_at,omitempty"`
	BatchUsed     int        `json:"batch_used"`
	BatchAvail    int        `json:"batch_available"`
}

// ItemSummary is the single-unit view.
type ItemSummary struct {
	ItemID      string     `json:"item_id"`
	BatchID     string     `json:"batch_id"`
	Kind        Kind       `json:"kind"`
	StartSerial string     `json:"start_serial"`
	EndSerial   string     `json:"end_serial"`
	BranchID    string     `json:"branch_id"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	IssuedBy    *Actor     `json:"issued_by,omitempty"`
	ReceivedBy  *Actor     `json:"received_by,omitempty"`
	ReturnedBy  *Actor     `json:"returned_by,omitempty"`
	BatchUsed   int        `json:"batch_used"`
	BatchAvail  int        `json:"batch_available"`
}

// CounterSummary answers the batch counter queries in one shot.
type CounterSummary struct {
	ParentID   string `json:"parent_id"`
	TotalUnits int    `json:"total_units"`
	Used       int    `json:"used"`
	Available  int    `json:"available"`
	Finished   bool   `json:"finished"`
}

// Page mirrors the usual limit/offset/order query knobs.
type Page struct {
	Limit  int
	Offset int
	Order  string
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

func summarize(b *Batch) BatchSummary {
	return BatchSummary{
		ParentID:    b.ID,
		ItemKind:    b.Kind,
		StartSerial: b.StartSerial,
		EndSerial:   b.EndSerial,
		TotalUnits:  b.TotalUnits,
		Used:        b.Used,
		Available:   b.Available(),
		Finished:    b.Finished,
		LeafType:    b.Variant.LeafType,
		BranchID:    b.BranchID,
		CreatedBy:   b.CreatedBy.Name,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func summarizeItem(it *Item, b *Batch) ItemSummary {
	s := ItemSummary{
		ItemID:      it.ID,
		BatchID:     it.BatchID,
		Kind:        it.Kind,
		StartSerial: it.StartSerial,
		EndSerial:   it.EndSerial,
		BranchID:    it.BranchID,
		IssuedAt:    it.IssuedAt,
		ReceivedAt:  it.ReceivedAt,
		ReturnedAt:  it.ReturnedAt,
	}
	if !it.IssuedBy.IsZero() {
		a := it.IssuedBy
		s.IssuedBy = &a
	}
	if !it.ReceivedBy.IsZero() {
		a := it.ReceivedBy
		s.ReceivedBy = &a
	}
	if !it.ReturnedBy.IsZero() {
		a := it.ReturnedBy
		s.ReturnedBy = &a
	}
	if b != nil {
		s.BatchUsed = b.Used
		s.BatchAvail = b.Available()
	}
	return s
}

func record(req *IssuanceRequest, b *Batch) IssuanceRecord {
	r := IssuanceRecord{
		RequestID:     req.ID,
		ItemID:        req.ItemID,
		BatchID:       req.BatchID,
		Kind:          req.Kind,
		StartSerial:   req.StartSerial,
		EndSerial:     req.EndSerial,
		AccountNumber: req.AccountNumber,
		BranchID:      req.BranchID,
		IssuedBy:      req.IssuedBy,
		IssuedAt:      req.IssuedAt,
		ReceivedAt:    req.ReceivedAt,
	}
	if !req.ReceivedBy.IsZero() {
		a := req.ReceivedBy
		r.ReceivedBy = &a
	}
	if b != nil {
		r.BatchUsed = b.Used
		r.BatchAvail = b.Available()
	}
	return r
}
