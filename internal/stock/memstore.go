package stock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps the whole relational state in process. It backs the
// engine's tests and is good enough for embedding the engine without a
// database; the transactional staging mirrors what the MySQL store gets from
// row locks: WithBatch callbacks run one at a time per batch and commit their
// copies only on success.
type InMemoryStore struct {
	mu       sync.RWMutex
	batchMu  map[string]*sync.Mutex
	batches  map[string]*Batch
	items    map[string]*Item
	bySerial map[string]string   // start serial -> item id
	byBatch  map[string][]string // item ids ordered by serial value
	requests map[string]*IssuanceRequest
	txns     []*Transaction
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		batchMu:  make(map[string]*sync.Mutex),
		batches:  make(map[string]*Batch),
		items:    make(map[string]*Item),
		bySerial: make(map[string]string),
		byBatch:  make(map[string][]string),
		requests: make(map[string]*IssuanceRequest),
	}
}

func (s *InMemoryStore) CreateBatch(ctx context.Context, b *Batch, items []*Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return newErr(CodeConflict, "batch %s already exists", b.ID)
	}
	// Same guarantee the MySQL store gets from its unique serial index: two
	// registrations racing past the pre-flight scan cannot both land.
	for _, it := range items {
		if _, ok := s.bySerial[it.StartSerial]; ok {
			return newErr(CodeDuplicateSerial, "serial %s is already registered", it.StartSerial)
		}
	}
	s.batches[b.ID] = cloneBatch(b)
	ordered := make([]*Item, len(items))
	copy(ordered, items)
	sortBySerial(ordered)
	ids := make([]string, 0, len(ordered))
	for _, it := range ordered {
		s.items[it.ID] = cloneItem(it)
		s.bySerial[it.StartSerial] = it.ID
		ids = append(ids, it.ID)
	}
	s.byBatch[b.ID] = ids
	s.batchMu[b.ID] = &sync.Mutex{}
	return nil
}

func (s *InMemoryStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, errNotFound("batch %s not found", id)
	}
	return cloneBatch(b), nil
}

func (s *InMemoryStore) ListBatches(ctx context.Context, branchID string, p Page) ([]*Batch, int64, error) {
	p = p.normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*Batch
	for _, b := range s.batches {
		if branchID == "" || b.BranchID == branchID {
			all = append(all, cloneBatch(b))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if p.Order == "asc" {
			return all[i].ID < all[j].ID
		}
		return all[i].ID > all[j].ID
	})
	total := int64(len(all))
	if p.Offset >= len(all) {
		return nil, total, nil
	}
	end := p.Offset + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[p.Offset:end], total, nil
}

func (s *InMemoryStore) FindOpenBatches(ctx context.Context, branchID string, kind Kind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, b := range s.batches {
		if b.BranchID == branchID && b.Kind == kind && !b.Finished {
			ids = append(ids, b.ID)
		}
	}
	// ULIDs sort chronologically, so id order is registration order.
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) FirstSerialInUse(ctx context.Context, serials []string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sn := range serials {
		if _, ok := s.bySerial[sn]; ok {
			return sn, true, nil
		}
	}
	return "", false, nil
}

func (s *InMemoryStore) ItemByID(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, errNotFound("stock item %s not found", id)
	}
	return cloneItem(it), nil
}

func (s *InMemoryStore) ItemBySerial(ctx context.Context, startSerial string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySerial[startSerial]
	if !ok {
		return nil, errNotFound("no stock item with serial %s", startSerial)
	}
	return cloneItem(s.items[id]), nil
}

func (s *InMemoryStore) ListItems(ctx context.Context, batchID string) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.byBatch[batchID]
	if !ok {
		return nil, errNotFound("batch %s not found", batchID)
	}
	out := make([]*Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneItem(s.items[id]))
	}
	return out, nil
}

func (s *InMemoryStore) RequestByID(ctx context.Context, id string) (*IssuanceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, errNotFound("issuance request %s not found", id)
	}
	return cloneRequest(r), nil
}

func (s *InMemoryStore) ListTransactions(ctx context.Context, batchID string) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, t := range s.txns {
		if t.BatchID == batchID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) WithBatch(ctx context.Context, batchID string, fn func(BatchTx) error) error {
	s.mu.RLock()
	bm, ok := s.batchMu[batchID]
	s.mu.RUnlock()
	if !ok {
		return errNotFound("batch %s not found", batchID)
	}
	bm.Lock()
	defer bm.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.begin(batchID)
	if tx == nil {
		// Deleted while waiting on the lock.
		return errNotFound("batch %s not found", batchID)
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// memTx stages copies of the batch's state; commit writes them back.
type memTx struct {
	store    *InMemoryStore
	batch    *Batch
	items    map[string]*Item
	order    []string
	requests map[string]*IssuanceRequest
	txns     []*Transaction
	deleted  bool
}

func (s *InMemoryStore) begin(batchID string) *memTx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil
	}
	tx := &memTx{
		store:    s,
		batch:    cloneBatch(b),
		items:    make(map[string]*Item),
		requests: make(map[string]*IssuanceRequest),
	}
	tx.order = append(tx.order, s.byBatch[batchID]...)
	for _, id := range tx.order {
		tx.items[id] = cloneItem(s.items[id])
	}
	for id, r := range s.requests {
		if r.BatchID == batchID {
			tx.requests[id] = cloneRequest(r)
		}
	}
	return tx
}

func (s *InMemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.deleted {
		for _, id := range tx.order {
			delete(s.bySerial, s.items[id].StartSerial)
			delete(s.items, id)
		}
		delete(s.byBatch, tx.batch.ID)
		delete(s.batches, tx.batch.ID)
		delete(s.batchMu, tx.batch.ID)
	} else {
		s.batches[tx.batch.ID] = cloneBatch(tx.batch)
		for id, it := range tx.items {
			s.items[id] = cloneItem(it)
		}
		for id, r := range tx.requests {
			s.requests[id] = cloneRequest(r)
		}
	}
	s.txns = append(s.txns, tx.txns...)
}

func (tx *memTx) Batch() *Batch { return tx.batch }

func (tx *memTx) Items() ([]*Item, error) {
	out := make([]*Item, 0, len(tx.order))
	for _, id := range tx.order {
		out = append(out, tx.items[id])
	}
	return out, nil
}

func (tx *memTx) ItemByID(id string) (*Item, error) {
	it, ok := tx.items[id]
	if !ok {
		return nil, errNotFound("stock item %s not found in batch %s", id, tx.batch.ID)
	}
	return it, nil
}

func (tx *memTx) RequestByID(id string) (*IssuanceRequest, error) {
	r, ok := tx.requests[id]
	if !ok {
		return nil, errNotFound("issuance request %s not found", id)
	}
	return r, nil
}

func (tx *memTx) UpdateBatch(b *Batch) error {
	tx.batch = b
	return nil
}

func (tx *memTx) UpdateItem(it *Item) error {
	if _, ok := tx.items[it.ID]; !ok {
		return errNotFound("stock item %s not found in batch %s", it.ID, tx.batch.ID)
	}
	tx.items[it.ID] = it
	return nil
}

func (tx *memTx) InsertRequest(r *IssuanceRequest) error {
	if _, ok := tx.requests[r.ID]; ok {
		return newErr(CodeConflict, "issuance request %s already exists", r.ID)
	}
	tx.requests[r.ID] = r
	return nil
}

func (tx *memTx) UpdateRequest(r *IssuanceRequest) error {
	if _, ok := tx.requests[r.ID]; !ok {
		return errNotFound("issuance request %s not found", r.ID)
	}
	tx.requests[r.ID] = r
	return nil
}

func (tx *memTx) AppendTransaction(t *Transaction) error {
	tx.txns = append(tx.txns, t)
	return nil
}

func (tx *memTx) DeleteBatch() error {
	tx.deleted = true
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneBatch(b *Batch) *Batch {
	c := *b
	return &c
}

func cloneItem(it *Item) *Item {
	c := *it
	c.IssuedAt = cloneTime(it.IssuedAt)
	c.ReceivedAt = cloneTime(it.ReceivedAt)
	c.ReturnedAt = cloneTime(it.ReturnedAt)
	return &c
}

func cloneRequest(r *IssuanceRequest) *IssuanceRequest {
	c := *r
	c.ReceivedAt = cloneTime(r.ReceivedAt)
	return &c
}
