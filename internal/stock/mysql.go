package stock

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SIMS-backend/internal/platform/db"
)

// MySQLStore is the production Store. Per-batch serialization comes from a
// SELECT ... FOR UPDATE on the parent row at the top of WithBatch, so the
// whole callback runs under the row lock and commits or rolls back as one.
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

func NewMySQLStore(d *sql.DB) *MySQLStore { return &MySQLStore{db: d} }

const batchCols = `
	batch_id, kind, start_serial, end_serial,
	leaf_type, check_type, pass_type, pass_category,
	total_units, used_units, finished, last_issued_child,
	branch_id, process_id, sub_process_id,
	created_by_id, created_by_name, updated_by_id, updated_by_name,
	created_at, updated_at`

const itemCols = `
	item_id, batch_id, kind, start_serial, end_serial,
	leaf_type, check_type, pass_type, pass_category,
	issued_at, received_at, returned_at,
	issued_by_id, issued_by_name,
	received_by_id, received_by_name,
	returned_by_id, returned_by_name,
	branch_id, process_id, sub_process_id,
	created_by_id, created_by_name,
	created_at, updated_at`

const requestCols = `
	request_id, item_id, batch_id, kind, start_serial, end_serial,
	account_number, branch_id, process_id, sub_process_id,
	issued_by_id, issued_by_name, issued_at,
	received_by_id, received_by_name, received_at,
	created_at, updated_at`

func (s *MySQLStore) CreateBatch(ctx context.Context, b *Batch, items []*Item) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const q = `
		INSERT INTO stock_batches (` + batchCols + `)
		VALUES (?,?,?,?, ?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?, ?,?)`
		if _, err := tx.ExecContext(ctx, q,
			b.ID, b.Kind, b.StartSerial, b.EndSerial,
			int(b.Variant.LeafType), b.Variant.CheckType, b.Variant.PassType, b.Variant.PassCategory,
			b.TotalUnits, b.Used, b.Finished, b.LastIssuedChild,
			b.BranchID, b.ProcessID, b.SubProcessID,
			b.CreatedBy.ID, b.CreatedBy.Name, b.UpdatedBy.ID, b.UpdatedBy.Name,
			b.CreatedAt, b.UpdatedAt,
		); err != nil {
			return err
		}
		for _, it := range items {
			if err := insertItem(ctx, tx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertItem(ctx context.Context, tx db.DBTX, it *Item) error {
	const q = `
	INSERT INTO stock_items (` + itemCols + `)
	VALUES (?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?, ?,?, ?,?, ?,?,?, ?,?, ?,?)`
	_, err := tx.ExecContext(ctx, q,
		it.ID, it.BatchID, it.Kind, it.StartSerial, it.EndSerial,
		int(it.Variant.LeafType), it.Variant.CheckType, it.Variant.PassType, it.Variant.PassCategory,
		nullTime(it.IssuedAt), nullTime(it.ReceivedAt), nullTime(it.ReturnedAt),
		it.IssuedBy.ID, it.IssuedBy.Name,
		it.ReceivedBy.ID, it.ReceivedBy.Name,
		it.ReturnedBy.ID, it.ReturnedBy.Name,
		it.BranchID, it.ProcessID, it.SubProcessID,
		it.CreatedBy.ID, it.CreatedBy.Name,
		it.CreatedAt, it.UpdatedAt,
	)
	return err
}

func scanBatch(row interface{ Scan(...any) error }) (*Batch, error) {
	var b Batch
	var leaf int
	if err := row.Scan(
		&b.ID, &b.Kind, &b.StartSerial, &b.EndSerial,
		&leaf, &b.Variant.CheckType, &b.Variant.PassType, &b.Variant.PassCategory,
		&b.TotalUnits, &b.Used, &b.Finished, &b.LastIssuedChild,
		&b.BranchID, &b.ProcessID, &b.SubProcessID,
		&b.CreatedBy.ID, &b.CreatedBy.Name, &b.UpdatedBy.ID, &b.UpdatedBy.Name,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Variant.LeafType = LeafType(leaf)
	return &b, nil
}

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var leaf int
	var issued, received, returned sql.NullTime
	if err := row.Scan(
		&it.ID, &it.BatchID, &it.Kind, &it.StartSerial, &it.EndSerial,
		&leaf, &it.Variant.CheckType, &it.Variant.PassType, &it.Variant.PassCategory,
		&issued, &received, &returned,
		&it.IssuedBy.ID, &it.IssuedBy.Name,
		&it.ReceivedBy.ID, &it.ReceivedBy.Name,
		&it.ReturnedBy.ID, &it.ReturnedBy.Name,
		&it.BranchID, &it.ProcessID, &it.SubProcessID,
		&it.CreatedBy.ID, &it.CreatedBy.Name,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	it.Variant.LeafType = LeafType(leaf)
	it.IssuedAt = timePtr(issued)
	it.ReceivedAt = timePtr(received)
	it.ReturnedAt = timePtr(returned)
	return &it, nil
}

func scanRequest(row interface{ Scan(...any) error }) (*IssuanceRequest, error) {
	var r IssuanceRequest
	var received sql.NullTime
	if err := row.Scan(
		&r.ID, &r.ItemID, &r.BatchID, &r.Kind, &r.StartSerial, &r.EndSerial,
		&r.AccountNumber, &r.BranchID, &r.ProcessID, &r.SubProcessID,
		&r.IssuedBy.ID, &r.IssuedBy.Name, &r.IssuedAt,
		&r.ReceivedBy.ID, &r.ReceivedBy.Name, &received,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.ReceivedAt = timePtr(received)
	return &r, nil
}

func (s *MySQLStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	const q = `SELECT ` + batchCols + ` FROM stock_batches WHERE batch_id = ?`
	b, err := scanBatch(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errNotFound("batch %s not found", id)
	}
	return b, err
}

func (s *MySQLStore) ListBatches(ctx context.Context, branchID string, p Page) ([]*Batch, int64, error) {
	p = p.normalize()
	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + batchCols + ` FROM stock_batches WHERE 1=1`)
	args := []any{}
	if branchID != "" {
		sb.WriteString(` AND branch_id = ?`)
		args = append(args, branchID)
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY batch_id %s LIMIT ? OFFSET ?`, order))
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq := `SELECT COUNT(*) FROM stock_batches WHERE 1=1`
	cargs := []any{}
	if branchID != "" {
		cq += ` AND branch_id = ?`
		cargs = append(cargs, branchID)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *MySQLStore) FindOpenBatches(ctx context.Context, branchID string, kind Kind) ([]string, error) {
	// ULIDs sort chronologically, so batch_id order is registration order.
	const q = `
	SELECT batch_id FROM stock_batches
	WHERE branch_id = ? AND kind = ? AND finished = 0
	ORDER BY batch_id ASC`
	rows, err := s.db.QueryContext(ctx, q, branchID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// firstSerialChunk keeps IN lists under MySQL's placeholder limit.
const firstSerialChunk = 1000

func (s *MySQLStore) FirstSerialInUse(ctx context.Context, serials []string) (string, bool, error) {
	// Chunks run in caller order, so the first hit of the first hitting
	// chunk is the first collision overall.
	for start := 0; start < len(serials); start += firstSerialChunk {
		end := start + firstSerialChunk
		if end > len(serials) {
			end = len(serials)
		}
		chunk := serials[start:end]

		ph := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		q := `SELECT start_serial FROM stock_items WHERE start_serial IN (` + ph + `)`
		args := make([]any, len(chunk))
		for i, sn := range chunk {
			args[i] = sn
		}
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return "", false, err
		}
		taken := make(map[string]bool)
		for rows.Next() {
			var sn string
			if err := rows.Scan(&sn); err != nil {
				rows.Close()
				return "", false, err
			}
			taken[sn] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", false, err
		}
		rows.Close()

		// Report the first collision in the caller's order, not the DB's.
		for _, sn := range chunk {
			if taken[sn] {
				return sn, true, nil
			}
		}
	}
	return "", false, nil
}

func (s *MySQLStore) ItemByID(ctx context.Context, id string) (*Item, error) {
	const q = `SELECT ` + itemCols + ` FROM stock_items WHERE item_id = ?`
	it, err := scanItem(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errNotFound("stock item %s not found", id)
	}
	return it, err
}

func (s *MySQLStore) ItemBySerial(ctx context.Context, startSerial string) (*Item, error) {
	const q = `SELECT ` + itemCols + ` FROM stock_items WHERE start_serial = ?`
	it, err := scanItem(s.db.QueryRowContext(ctx, q, startSerial))
	if err == sql.ErrNoRows {
		return nil, errNotFound("no stock item with serial %s", startSerial)
	}
	return it, err
}

func (s *MySQLStore) ListItems(ctx context.Context, batchID string) ([]*Item, error) {
	return listItems(ctx, s.db, batchID, false)
}

func listItems(ctx context.Context, tx db.DBTX, batchID string, forUpdate bool) ([]*Item, error) {
	q := `SELECT ` + itemCols + ` FROM stock_items WHERE batch_id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	rows, err := tx.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// ORDER BY start_serial would be lexicographic; sort numerically here.
	sortBySerial(out)
	return out, nil
}

func (s *MySQLStore) RequestByID(ctx context.Context, id string) (*IssuanceRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM issuance_requests WHERE request_id = ?`
	r, err := scanRequest(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errNotFound("issuance request %s not found", id)
	}
	return r, err
}

func (s *MySQLStore) ListTransactions(ctx context.Context, batchID string) ([]*Transaction, error) {
	const q = `
	SELECT txn_id, batch_id, item_id, request_id, action, serial, actor_id, actor_name, occurred_at
	FROM stock_transactions WHERE batch_id = ? ORDER BY txn_id ASC`
	rows, err := s.db.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.BatchID, &t.ItemID, &t.RequestID, &t.Action, &t.Serial, &t.Actor.ID, &t.Actor.Name, &t.At); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *MySQLStore) WithBatch(ctx context.Context, batchID string, fn func(BatchTx) error) error {
	return db.RunInTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx db.DBTX) error {
		const q = `SELECT ` + batchCols + ` FROM stock_batches WHERE batch_id = ? FOR UPDATE`
		b, err := scanBatch(tx.QueryRowContext(ctx, q, batchID))
		if err == sql.ErrNoRows {
			return errNotFound("batch %s not found", batchID)
		}
		if err != nil {
			return err
		}
		return fn(&sqlTx{ctx: ctx, tx: tx, batch: b})
	})
}

type sqlTx struct {
	ctx   context.Context
	tx    db.DBTX
	batch *Batch
}

func (t *sqlTx) Batch() *Batch { return t.batch }

func (t *sqlTx) Items() ([]*Item, error) {
	return listItems(t.ctx, t.tx, t.batch.ID, true)
}

func (t *sqlTx) ItemByID(id string) (*Item, error) {
	const q = `SELECT ` + itemCols + ` FROM stock_items WHERE item_id = ? AND batch_id = ? FOR UPDATE`
	it, err := scanItem(t.tx.QueryRowContext(t.ctx, q, id, t.batch.ID))
	if err == sql.ErrNoRows {
		return nil, errNotFound("stock item %s not found in batch %s", id, t.batch.ID)
	}
	return it, err
}

func (t *sqlTx) RequestByID(id string) (*IssuanceRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM issuance_requests WHERE request_id = ? AND batch_id = ? FOR UPDATE`
	r, err := scanRequest(t.tx.QueryRowContext(t.ctx, q, id, t.batch.ID))
	if err == sql.ErrNoRows {
		return nil, errNotFound("issuance request %s not found", id)
	}
	return r, err
}

func (t *sqlTx) UpdateBatch(b *Batch) error {
	const q = `
	UPDATE stock_batches SET
		total_units=?, used_units=?, finished=?, last_issued_child=?,
		updated_by_id=?, updated_by_name=?, updated_at=?
	WHERE batch_id = ?`
	res, err := t.tx.ExecContext(t.ctx, q,
		b.TotalUnits, b.Used, b.Finished, b.LastIssuedChild,
		b.UpdatedBy.ID, b.UpdatedBy.Name, b.UpdatedAt,
		b.ID,
	)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff > 1 {
		return newErr(CodeInternal, "batch update touched %d rows", aff)
	}
	t.batch = b
	return nil
}

func (t *sqlTx) UpdateItem(it *Item) error {
	const q = `
	UPDATE stock_items SET
		issued_at=?, received_at=?, returned_at=?,
		issued_by_id=?, issued_by_name=?,
		received_by_id=?, received_by_name=?,
		returned_by_id=?, returned_by_name=?,
		updated_at=?
	WHERE item_id = ? AND batch_id = ?`
	_, err := t.tx.ExecContext(t.ctx, q,
		nullTime(it.IssuedAt), nullTime(it.ReceivedAt), nullTime(it.ReturnedAt),
		it.IssuedBy.ID, it.IssuedBy.Name,
		it.ReceivedBy.ID, it.ReceivedBy.Name,
		it.ReturnedBy.ID, it.ReturnedBy.Name,
		it.UpdatedAt,
		it.ID, t.batch.ID,
	)
	return err
}

func (t *sqlTx) InsertRequest(r *IssuanceRequest) error {
	const q = `
	INSERT INTO issuance_requests (` + requestCols + `)
	VALUES (?,?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?, ?,?)`
	_, err := t.tx.ExecContext(t.ctx, q,
		r.ID, r.ItemID, r.BatchID, r.Kind, r.StartSerial, r.EndSerial,
		r.AccountNumber, r.BranchID, r.ProcessID, r.SubProcessID,
		r.IssuedBy.ID, r.IssuedBy.Name, r.IssuedAt,
		r.ReceivedBy.ID, r.ReceivedBy.Name, nullTime(r.ReceivedAt),
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (t *sqlTx) UpdateRequest(r *IssuanceRequest) error {
	const q = `
	UPDATE issuance_requests SET
		account_number=?, received_by_id=?, received_by_name=?, received_at=?, updated_at=?
	WHERE request_id = ?`
	_, err := t.tx.ExecContext(t.ctx, q,
		r.AccountNumber, r.ReceivedBy.ID, r.ReceivedBy.Name, nullTime(r.ReceivedAt), r.UpdatedAt,
		r.ID,
	)
	return err
}

func (t *sqlTx) AppendTransaction(tr *Transaction) error {
	const q = `
	INSERT INTO stock_transactions
	(txn_id, batch_id, item_id, request_id, action, serial, actor_id, actor_name, occurred_at)
	VALUES (?,?,?,?,?,?,?,?,?)`
	_, err := t.tx.ExecContext(t.ctx, q,
		tr.ID, tr.BatchID, tr.ItemID, tr.RequestID, tr.Action, tr.Serial, tr.Actor.ID, tr.Actor.Name, tr.At,
	)
	return err
}

func (t *sqlTx) DeleteBatch() error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM stock_items WHERE batch_id = ?`, t.batch.ID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM stock_batches WHERE batch_id = ?`, t.batch.ID)
	return err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
