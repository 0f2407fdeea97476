package stock

import (
	"context"
	"sort"

	"SIMS-backend/internal/serial"
)

// Store is the persistence boundary of the engine. Two implementations ship:
// the MySQL store used in production and an in-memory store for tests and
// embedding. Both must provide the same guarantees:
//
//   - CreateBatch persists the parent and all children atomically; a partial
//     batch is never observable.
//   - WithBatch serializes read-modify-write against one batch: the callback
//     owns the batch row and its children exclusively until it returns, and
//     nothing the callback wrote survives if it returns an error. Operations
//     on different batches do not block each other.
//
// Every find-next scan and state mutation of the issuance workflow happens
// inside WithBatch; selecting a candidate outside and re-validating inside is
// the expected pattern.
type Store interface {
	CreateBatch(ctx context.Context, b *Batch, items []*Item) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	ListBatches(ctx context.Context, branchID string, p Page) ([]*Batch, int64, error)

	// FindOpenBatches returns ids of unfinished batches for a branch and
	// kind, oldest registration first.
	FindOpenBatches(ctx context.Context, branchID string, kind Kind) ([]string, error)

	// FirstSerialInUse reports the first of the given serials that already
	// identifies a stock item of any kind.
	FirstSerialInUse(ctx context.Context, serials []string) (string, bool, error)

	ItemByID(ctx context.Context, id string) (*Item, error)
	ItemBySerial(ctx context.Context, startSerial string) (*Item, error)
	ListItems(ctx context.Context, batchID string) ([]*Item, error)
	RequestByID(ctx context.Context, id string) (*IssuanceRequest, error)
	ListTransactions(ctx context.Context, batchID string) ([]*Transaction, error)

	WithBatch(ctx context.Context, batchID string, fn func(BatchTx) error) error
}

// BatchTx is the view handed to a WithBatch callback. All reads see the
// locked state; all writes commit together when the callback returns nil.
type BatchTx interface {
	// Batch returns the locked parent. Mutations to the returned struct are
	// persisted by UpdateBatch, not implicitly.
	Batch() *Batch

	// Items returns the children ordered ascending by serial value.
	Items() ([]*Item, error)
	ItemByID(id string) (*Item, error)
	RequestByID(id string) (*IssuanceRequest, error)

	UpdateBatch(b *Batch) error
	UpdateItem(it *Item) error
	InsertRequest(r *IssuanceRequest) error
	UpdateRequest(r *IssuanceRequest) error
	AppendTransaction(t *Transaction) error

	// DeleteBatch removes the batch and its children. Requests and audit
	// rows are history and stay.
	DeleteBatch() error
}

// sortBySerial puts siblings in ascending numeric serial order, the order the
// Items contract promises. String order is not enough: a range may outgrow
// its start width ("CPO95".."CPO105"), and then "CPO100" sorts before "CPO95"
// lexicographically.
func sortBySerial(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		return serial.Compare(items[i].StartSerial, items[j].StartSerial) < 0
	})
}
