package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBatch(t *testing.T, s *InMemoryStore) *Batch {
	t.Helper()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	b := &Batch{
		ID:          "batch-1",
		Kind:        KindCpo,
		StartSerial: "CPO100",
		EndSerial:   "CPO102",
		TotalUnits:  3,
		BranchID:    "BR-001",
		CreatedBy:   Actor{ID: "T-01"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	items := []*Item{
		{ID: "item-1", BatchID: b.ID, Kind: KindCpo, StartSerial: "CPO100", EndSerial: "CPO100"},
		{ID: "item-2", BatchID: b.ID, Kind: KindCpo, StartSerial: "CPO101", EndSerial: "CPO101"},
		{ID: "item-3", BatchID: b.ID, Kind: KindCpo, StartSerial: "CPO102", EndSerial: "CPO102"},
	}
	require.NoError(t, s.CreateBatch(context.Background(), b, items))
	return b
}

func TestWithBatchRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	seedBatch(t, s)

	boom := errors.New("boom")
	err := s.WithBatch(ctx, "batch-1", func(tx BatchTx) error {
		b := tx.Batch()
		b.Used = 99
		require.NoError(t, tx.UpdateBatch(b))

		it, err := tx.ItemByID("item-1")
		require.NoError(t, err)
		now := time.Now()
		it.IssuedAt = &now
		require.NoError(t, tx.UpdateItem(it))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Nothing the callback wrote may be observable.
	b, err := s.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Used)
	it, err := s.ItemByID(ctx, "item-1")
	require.NoError(t, err)
	assert.Nil(t, it.IssuedAt)
}

func TestWithBatchCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	seedBatch(t, s)

	err := s.WithBatch(ctx, "batch-1", func(tx BatchTx) error {
		b := tx.Batch()
		b.Used = 1
		return tx.UpdateBatch(b)
	})
	require.NoError(t, err)

	b, err := s.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Used)
}

func TestWithBatchUnknownBatch(t *testing.T) {
	s := NewInMemoryStore()
	err := s.WithBatch(context.Background(), "nope", func(tx BatchTx) error { return nil })
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, ErrCode(err))
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	seedBatch(t, s)

	b, err := s.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	b.Used = 42

	again, err := s.GetBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Used, "mutating a returned batch must not leak into the store")
}

func TestItemsOrderedBySerialValue(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	now := time.Now()
	b := &Batch{ID: "batch-2", Kind: KindCpo, StartSerial: "CPO8", EndSerial: "CPO12", TotalUnits: 5, CreatedAt: now, UpdatedAt: now}
	// Inserted shuffled; reads must come back in numeric serial order even
	// when string order differs (CPO12 < CPO8 as strings).
	items := []*Item{
		{ID: "i-12", BatchID: b.ID, StartSerial: "CPO12", EndSerial: "CPO12"},
		{ID: "i-8", BatchID: b.ID, StartSerial: "CPO8", EndSerial: "CPO8"},
		{ID: "i-10", BatchID: b.ID, StartSerial: "CPO10", EndSerial: "CPO10"},
		{ID: "i-9", BatchID: b.ID, StartSerial: "CPO9", EndSerial: "CPO9"},
		{ID: "i-11", BatchID: b.ID, StartSerial: "CPO11", EndSerial: "CPO11"},
	}
	require.NoError(t, s.CreateBatch(ctx, b, items))

	got, err := s.ListItems(ctx, b.ID)
	require.NoError(t, err)
	serials := make([]string, len(got))
	for i, it := range got {
		serials[i] = it.StartSerial
	}
	assert.Equal(t, []string{"CPO8", "CPO9", "CPO10", "CPO11", "CPO12"}, serials)
}

func TestSortBySerialWidthOverflow(t *testing.T) {
	// A range that outgrows its start width produces serials where the string
	// order contradicts the numeric one ("CPO100" < "CPO95" as strings).
	items := []*Item{
		{StartSerial: "CPO100"},
		{StartSerial: "CPO95"},
		{StartSerial: "CPO103"},
		{StartSerial: "CPO99"},
	}
	sortBySerial(items)
	serials := make([]string, len(items))
	for i, it := range items {
		serials[i] = it.StartSerial
	}
	assert.Equal(t, []string{"CPO95", "CPO99", "CPO100", "CPO103"}, serials)
}

func TestCreateBatchRejectsSerialCollision(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	seedBatch(t, s)

	now := time.Now()
	b := &Batch{ID: "batch-2", Kind: KindCpo, StartSerial: "CPO102", EndSerial: "CPO103", TotalUnits: 2, CreatedAt: now, UpdatedAt: now}
	items := []*Item{
		{ID: "i-102b", BatchID: b.ID, StartSerial: "CPO102", EndSerial: "CPO102"},
		{ID: "i-103", BatchID: b.ID, StartSerial: "CPO103", EndSerial: "CPO103"},
	}
	err := s.CreateBatch(ctx, b, items)
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateSerial, ErrCode(err))

	// The rejected batch must not land, not even partially.
	_, err = s.GetBatch(ctx, "batch-2")
	assert.Equal(t, CodeNotFound, ErrCode(err))
	_, err = s.ItemBySerial(ctx, "CPO103")
	assert.Equal(t, CodeNotFound, ErrCode(err))
}
