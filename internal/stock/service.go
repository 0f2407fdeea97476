package stock

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"SIMS-backend/internal/platform/events"
	"SIMS-backend/internal/serial"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Service implements the engine operations over a Store. All state
// transitions run inside Store.WithBatch; the service itself holds no
// mutable state and is safe for concurrent use.
type Service struct {
	store Store
	pub   events.Publisher
	clock Clock
	id    IDGen
	log   zerolog.Logger
}

func NewService(store Store, pub events.Publisher, log zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		store: store,
		pub:   pub,
		clock: realClock{},
		id:    ulidGen{},
		log:   log,
	}
}

// publish is best effort: a broker outage must not fail a committed
// transition.
func (s *Service) publish(ctx context.Context, typ string, payload any) {
	ev := events.Event{Type: typ, At: s.clock.Now(), Payload: payload}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Msg("event publish failed")
	}
}

// ===== Registration =====

// RegisterBatch validates and expands the serial range, rejects collisions
// with serials already on the books, and persists the parent with all
// children in one transaction.
func (s *Service) RegisterBatch(ctx context.Context, req RegisterBatchRequest) (BatchSummary, error) {
	if !req.Kind.Valid() {
		return BatchSummary{}, errInvalid("unknown stock kind %q", req.Kind)
	}
	if req.CreatedBy.IsZero() {
		return BatchSummary{}, errInvalid("created_by is required")
	}

	variant := Variant{
		CheckType:    req.CheckType,
		PassType:     req.PassType,
		PassCategory: req.PassCategory,
	}
	var units []serial.Window
	switch req.Kind {
	case KindCheckBook:
		leaf := LeafType(req.Leaves)
		if !leaf.Valid() {
			return BatchSummary{}, errInvalid("leaves must be one of 10, 25, 50, 100; got %d", req.Leaves)
		}
		variant.LeafType = leaf
		ws, err := serial.Windows(req.StartSerial, req.EndSerial, req.Leaves)
		if err != nil {
			return BatchSummary{}, fromSerialErr(err)
		}
		units = ws
	default:
		if req.Leaves != 0 {
			return BatchSummary{}, errInvalid("leaves is only valid for CHECKBOOK batches")
		}
		all, err := serial.Expand(req.StartSerial, req.EndSerial)
		if err != nil {
			return BatchSummary{}, fromSerialErr(err)
		}
		units = make([]serial.Window, len(all))
		for i, sn := range all {
			units[i] = serial.Window{Start: sn, End: sn}
		}
	}

	// The uniqueness scan covers every serial in the range, not just each
	// unit's start: a checkbook window swallows pages that may already be
	// registered under another kind.
	pages, err := serial.Expand(req.StartSerial, req.EndSerial)
	if err != nil {
		return BatchSummary{}, fromSerialErr(err)
	}
	if sn, taken, err := s.store.FirstSerialInUse(ctx, pages); err != nil {
		return BatchSummary{}, err
	} else if taken {
		return BatchSummary{}, newErr(CodeDuplicateSerial, "serial %s is already registered", sn)
	}

	now := s.clock.Now()
	batchID, err := s.id.New()
	if err != nil {
		return BatchSummary{}, err
	}
	b := &Batch{
		ID:           batchID,
		Kind:         req.Kind,
		StartSerial:  req.StartSerial,
		EndSerial:    req.EndSerial,
		Variant:      variant,
		TotalUnits:   len(units),
		BranchID:     req.BranchID,
		ProcessID:    req.ProcessID,
		SubProcessID: req.SubProcessID,
		CreatedBy:    req.CreatedBy,
		UpdatedBy:    req.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	items := make([]*Item, len(units))
	for i, w := range units {
		itemID, err := s.id.New()
		if err != nil {
			return BatchSummary{}, err
		}
		items[i] = &Item{
			ID:           itemID,
			BatchID:      batchID,
			Kind:         req.Kind,
			StartSerial:  w.Start,
			EndSerial:    w.End,
			Variant:      variant,
			BranchID:     req.BranchID,
			ProcessID:    req.ProcessID,
			SubProcessID: req.SubProcessID,
			CreatedBy:    req.CreatedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	if err := s.store.CreateBatch(ctx, b, items); err != nil {
		return BatchSummary{}, err
	}
	s.log.Info().
		Str("batch_id", batchID).
		Str("kind", string(req.Kind)).
		Int("units", len(items)).
		Str("branch", req.BranchID).
		Msg("batch registered")
	s.publish(ctx, events.TypeBatchRegistered, summarize(b))

	out := summarize(b)
	out.ChildrenCreated = len(items)
	out.Message = fmt.Sprintf("%s batch registered successfully. %d items created.", req.Kind, len(items))
	return out, nil
}

// ===== Issuance workflow =====

// errSkipBatch aborts a WithBatch attempt without surfacing an error; the
// scan moves on to the next open batch.
var errSkipBatch = errors.New("skip batch")

// IssueNext reserves the next issuable unit of the requested kind at the
// branch, scanning open batches oldest first. The unit is stamped issued and
// an issuance request is created; the batch counter moves only on Receive.
func (s *Service) IssueNext(ctx context.Context, req IssueNextRequest) (IssuanceRecord, error) {
	if !req.Kind.Valid() {
		return IssuanceRecord{}, errInvalid("unknown stock kind %q", req.Kind)
	}
	if req.Kind == KindCheckBook && req.Leaves != 0 && !LeafType(req.Leaves).Valid() {
		return IssuanceRecord{}, errInvalid("leaves must be one of 10, 25, 50, 100; got %d", req.Leaves)
	}
	if req.IssuedBy.IsZero() {
		return IssuanceRecord{}, errInvalid("issued_by is required")
	}

	ids, err := s.store.FindOpenBatches(ctx, req.BranchID, req.Kind)
	if err != nil {
		return IssuanceRecord{}, err
	}

	var out IssuanceRecord
	for _, batchID := range ids {
		err := s.store.WithBatch(ctx, batchID, func(tx BatchTx) error {
			b := tx.Batch()
			// Re-check under the lock; another issuer may have finished it.
			if b.Finished {
				return errSkipBatch
			}
			if req.Kind == KindCheckBook && req.Leaves != 0 && b.Variant.LeafType != LeafType(req.Leaves) {
				return errSkipBatch
			}
			items, err := tx.Items()
			if err != nil {
				return err
			}
			idx, ok := nextIssuable(items, nil)
			if !ok {
				return errSkipBatch
			}
			it := items[idx]

			now := s.clock.Now()
			s.stampIssue(it, req.IssuedBy, now)
			if err := tx.UpdateItem(it); err != nil {
				return err
			}

			reqID, err := s.id.New()
			if err != nil {
				return err
			}
			ir := &IssuanceRequest{
				ID:            reqID,
				ItemID:        it.ID,
				BatchID:       b.ID,
				Kind:          b.Kind,
				StartSerial:   it.StartSerial,
				EndSerial:     it.EndSerial,
				AccountNumber: req.AccountNumber,
				BranchID:      b.BranchID,
				ProcessID:     firstNonEmpty(req.ProcessID, b.ProcessID),
				SubProcessID:  firstNonEmpty(req.SubProcessID, b.SubProcessID),
				IssuedBy:      req.IssuedBy,
				IssuedAt:      now,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertRequest(ir); err != nil {
				return err
			}
			if err := s.audit(tx, ActionIssue, b.ID, it.ID, ir.ID, it.StartSerial, req.IssuedBy, now); err != nil {
				return err
			}
			out = record(ir, b)
			return nil
		})
		if errors.Is(err, errSkipBatch) {
			continue
		}
		if err != nil {
			return IssuanceRecord{}, err
		}
		s.log.Info().
			Str("request_id", out.RequestID).
			Str("serial", out.StartSerial).
			Str("batch_id", out.BatchID).
			Msg("stock issued")
		s.publish(ctx, events.TypeStockIssued, out)
		return out, nil
	}
	return IssuanceRecord{}, errNotFound("no issuable %s stock at branch %s", req.Kind, req.BranchID)
}

// Receive confirms physical custody of a reserved unit. This is the step
// that moves the batch counter: used increments, last issued child advances,
// finished flips when the last unit is confirmed.
func (s *Service) Receive(ctx context.Context, requestID string, req ReceiveRequest) (IssuanceRecord, error) {
	if req.ReceivedBy.IsZero() {
		return IssuanceRecord{}, errInvalid("received_by is required")
	}
	ref, err := s.store.RequestByID(ctx, requestID)
	if err != nil {
		return IssuanceRecord{}, err
	}

	var out IssuanceRecord
	err = s.store.WithBatch(ctx, ref.BatchID, func(tx BatchTx) error {
		ir, err := tx.RequestByID(requestID)
		if err != nil {
			return err
		}
		if ir.ReceivedAt != nil {
			return newErr(CodeAlreadyReceived, "issuance request %s was already received", requestID)
		}
		it, err := tx.ItemByID(ir.ItemID)
		if err != nil {
			return err
		}
		if it.IssuedAt == nil {
			return newErr(CodeNotIssued, "serial %s is not issued", it.StartSerial)
		}
		// Four-eyes rule: the officer confirming custody cannot be the one
		// who issued.
		if req.ReceivedBy.ID == ir.IssuedBy.ID {
			return newErr(CodeConflict, "receiver %s must differ from issuer", req.ReceivedBy.ID)
		}

		now := s.clock.Now()
		it.ReceivedAt = &now
		it.ReceivedBy = req.ReceivedBy
		it.UpdatedAt = now
		if err := tx.UpdateItem(it); err != nil {
			return err
		}

		ir.ReceivedAt = &now
		ir.ReceivedBy = req.ReceivedBy
		ir.UpdatedAt = now
		if err := tx.UpdateRequest(ir); err != nil {
			return err
		}

		b := tx.Batch()
		b.Used++
		b.LastIssuedChild = it.ID
		b.Finished = b.Used == b.TotalUnits
		b.UpdatedBy = req.ReceivedBy
		b.UpdatedAt = now
		if err := tx.UpdateBatch(b); err != nil {
			return err
		}
		if err := s.audit(tx, ActionReceive, b.ID, it.ID, ir.ID, it.StartSerial, req.ReceivedBy, now); err != nil {
			return err
		}
		out = record(ir, b)
		return nil
	})
	if err != nil {
		return IssuanceRecord{}, err
	}
	s.log.Info().
		Str("request_id", requestID).
		Str("serial", out.StartSerial).
		Int("used", out.BatchUsed).
		Msg("stock received")
	s.publish(ctx, events.TypeStockReceived, out)
	return out, nil
}

// Return surrenders an issued unit back to the branch by serial. The batch
// counter decrements with a floor of zero; a unit returned before Receive
// never incremented the counter in the first place.
func (s *Service) Return(ctx context.Context, req ReturnRequest) (ItemSummary, error) {
	if req.ReturnedBy.IsZero() {
		return ItemSummary{}, errInvalid("returned_by is required")
	}
	ref, err := s.store.ItemBySerial(ctx, req.Serial)
	if err != nil {
		return ItemSummary{}, err
	}
	return s.returnItem(ctx, ref.BatchID, ref.ID, req.ReturnedBy)
}

// ReturnItem is the by-id variant of Return.
func (s *Service) ReturnItem(ctx context.Context, itemID string, by Actor) (ItemSummary, error) {
	if by.IsZero() {
		return ItemSummary{}, errInvalid("actor is required")
	}
	ref, err := s.store.ItemByID(ctx, itemID)
	if err != nil {
		return ItemSummary{}, err
	}
	return s.returnItem(ctx, ref.BatchID, ref.ID, by)
}

func (s *Service) returnItem(ctx context.Context, batchID, itemID string, by Actor) (ItemSummary, error) {
	var out ItemSummary
	err := s.store.WithBatch(ctx, batchID, func(tx BatchTx) error {
		it, err := tx.ItemByID(itemID)
		if err != nil {
			return err
		}
		if it.IssuedAt == nil {
			return newErr(CodeNotIssued, "serial %s is not issued", it.StartSerial)
		}
		if it.ReturnedAt != nil {
			return newErr(CodeAlreadyReturned, "serial %s was already returned", it.StartSerial)
		}

		now := s.clock.Now()
		it.ReturnedAt = &now
		it.ReturnedBy = by
		it.UpdatedAt = now
		if err := tx.UpdateItem(it); err != nil {
			return err
		}

		b := tx.Batch()
		if b.Used > 0 {
			b.Used--
		}
		b.Finished = false
		b.UpdatedBy = by
		b.UpdatedAt = now
		if err := tx.UpdateBatch(b); err != nil {
			return err
		}
		if err := s.audit(tx, ActionReturn, b.ID, it.ID, "", it.StartSerial, by, now); err != nil {
			return err
		}
		out = summarizeItem(it, b)
		return nil
	})
	if err != nil {
		return ItemSummary{}, err
	}
	s.log.Info().
		Str("item_id", itemID).
		Str("serial", out.StartSerial).
		Msg("stock returned")
	s.publish(ctx, events.TypeStockReturned, out)
	return out, nil
}

// IssueItem issues one specific unit by id, enforcing the lockstep rule
// against its siblings. No issuance request is created and no counter moves;
// this is the manual override used when stock is handed out against a paper
// voucher rather than through the two-step workflow.
func (s *Service) IssueItem(ctx context.Context, itemID string, by Actor) (ItemSummary, error) {
	if by.IsZero() {
		return ItemSummary{}, errInvalid("actor is required")
	}
	ref, err := s.store.ItemByID(ctx, itemID)
	if err != nil {
		return ItemSummary{}, err
	}

	var out ItemSummary
	err = s.store.WithBatch(ctx, ref.BatchID, func(tx BatchTx) error {
		items, err := tx.Items()
		if err != nil {
			return err
		}
		i := indexOf(items, itemID)
		if i < 0 {
			return errNotFound("stock item %s not found in batch %s", itemID, ref.BatchID)
		}
		it := items[i]
		if !openForIssue(it) {
			return newErr(CodeAlreadyIssued, "serial %s is already issued", it.StartSerial)
		}
		if !issuable(items, i) {
			return newErr(CodeOutOfOrder, "serial %s cannot be issued before %s", it.StartSerial, items[i-1].StartSerial)
		}

		now := s.clock.Now()
		s.stampIssue(it, by, now)
		if err := tx.UpdateItem(it); err != nil {
			return err
		}
		if err := s.audit(tx, ActionIssue, ref.BatchID, it.ID, "", it.StartSerial, by, now); err != nil {
			return err
		}
		out = summarizeItem(it, tx.Batch())
		return nil
	})
	if err != nil {
		return ItemSummary{}, err
	}
	s.log.Info().Str("item_id", itemID).Str("serial", out.StartSerial).Msg("stock issued by id")
	s.publish(ctx, events.TypeStockIssued, out)
	return out, nil
}

// stampIssue marks a unit issued. Re-issuing a returned unit clears the
// stale receive and return stamps so the unit presents as freshly issued.
func (s *Service) stampIssue(it *Item, by Actor, now time.Time) {
	it.IssuedAt = &now
	it.IssuedBy = by
	it.ReceivedAt = nil
	it.ReceivedBy = Actor{}
	it.ReturnedAt = nil
	it.ReturnedBy = Actor{}
	it.UpdatedAt = now
}

func (s *Service) audit(tx BatchTx, action, batchID, itemID, requestID, sn string, by Actor, at time.Time) error {
	id, err := s.id.New()
	if err != nil {
		return err
	}
	return tx.AppendTransaction(&Transaction{
		ID:        id,
		BatchID:   batchID,
		ItemID:    itemID,
		RequestID: requestID,
		Action:    action,
		Serial:    sn,
		Actor:     by,
		At:        at,
	})
}

// ===== Lifecycle =====

// DeleteBatch removes a batch and its children. Blocked while any unit is
// confirmed in-hand. Requests and audit rows are kept as history.
func (s *Service) DeleteBatch(ctx context.Context, batchID string, by Actor) error {
	if by.IsZero() {
		return errInvalid("actor is required")
	}
	err := s.store.WithBatch(ctx, batchID, func(tx BatchTx) error {
		b := tx.Batch()
		if b.Used > 0 {
			return newErr(CodeBatchInUse, "batch %s has %d units in use", batchID, b.Used)
		}
		now := s.clock.Now()
		if err := s.audit(tx, ActionDelete, batchID, "", "", b.StartSerial, by, now); err != nil {
			return err
		}
		return tx.DeleteBatch()
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("batch_id", batchID).Msg("batch deleted")
	s.publish(ctx, events.TypeBatchDeleted, map[string]string{"parent_id": batchID})
	return nil
}

// ===== Queries =====

func (s *Service) GetBatch(ctx context.Context, id string) (BatchSummary, error) {
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return BatchSummary{}, err
	}
	return summarize(b), nil
}

func (s *Service) ListBatches(ctx context.Context, branchID string, p Page) ([]BatchSummary, int64, error) {
	bs, total, err := s.store.ListBatches(ctx, branchID, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BatchSummary, len(bs))
	for i, b := range bs {
		out[i] = summarize(b)
	}
	return out, total, nil
}

func (s *Service) Counters(ctx context.Context, batchID string) (CounterSummary, error) {
	b, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return CounterSummary{}, err
	}
	return CounterSummary{
		ParentID:   b.ID,
		TotalUnits: b.TotalUnits,
		Used:       b.Used,
		Available:  b.Available(),
		Finished:   b.Finished,
	}, nil
}

func (s *Service) ListItems(ctx context.Context, batchID string) ([]ItemSummary, error) {
	b, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemSummary, len(items))
	for i, it := range items {
		out[i] = summarizeItem(it, b)
	}
	return out, nil
}

func (s *Service) ItemBySerial(ctx context.Context, sn string) (ItemSummary, error) {
	it, err := s.store.ItemBySerial(ctx, sn)
	if err != nil {
		return ItemSummary{}, err
	}
	b, err := s.store.GetBatch(ctx, it.BatchID)
	if err != nil {
		return ItemSummary{}, err
	}
	return summarizeItem(it, b), nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (IssuanceRecord, error) {
	ir, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return IssuanceRecord{}, err
	}
	b, err := s.store.GetBatch(ctx, ir.BatchID)
	if err != nil {
		// The batch may have been deleted; the request is still history.
		return record(ir, nil), nil
	}
	return record(ir, b), nil
}

func (s *Service) ListTransactions(ctx context.Context, batchID string) ([]*Transaction, error) {
	return s.store.ListTransactions(ctx, batchID)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
