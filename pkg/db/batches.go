package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Batch statuses.
const (
	StatusReady   = "ready"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// Batch is one recorded optimize run.
type Batch struct {
	BatchID      string
	Mode         string
	CreatedAt    time.Time
	ItemCount    int
	ReadyCount   int
	FailedCount  int
	PendingCount int
	Status       string
	ErrorKind    string
	ErrorMessage string
	Options      string
}

// BatchItem is one item's recorded outcome.
type BatchItem struct {
	Index        int
	Input        string
	DisplayName  string
	Identity     string
	State        string
	Code         int
	Message      string
	ErrorKind    string
	ErrorMessage string
	Meta         string
}

// RecordBatch stores a batch and its items in one transaction. Recording
// the same batch ID again replaces the earlier rows.
func (db *DB) RecordBatch(b Batch, items []BatchItem) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if _, err := tx.Exec("DELETE FROM batches WHERE batch_id = ?", b.BatchID); err != nil {
		return fmt.Errorf("failed to replace batch: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO batches (batch_id, mode, created_at, item_count, ready_count, failed_count,
		                     pending_count, status, error_kind, error_message, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.BatchID, b.Mode, b.CreatedAt.UTC(), b.ItemCount, b.ReadyCount, b.FailedCount,
		b.PendingCount, b.Status, NewNullString(b.ErrorKind), NewNullString(b.ErrorMessage), NewNullString(b.Options))
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for _, it := range items {
		_, err := tx.Exec(`
			INSERT INTO batch_items (batch_id, item_index, input, display_name, identity, state,
			                         sp_code, sp_message, error_kind, error_message, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.BatchID, it.Index, it.Input, NewNullString(it.DisplayName), NewNullString(it.Identity), it.State,
			it.Code, NewNullString(it.Message), NewNullString(it.ErrorKind), NewNullString(it.ErrorMessage),
			NewNullString(it.Meta))
		if err != nil {
			return fmt.Errorf("failed to insert batch item %d: %w", it.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

const batchColumns = `batch_id, mode, created_at, item_count, ready_count, failed_count,
	pending_count, status, error_kind, error_message, options`

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*Batch, error) {
	var b Batch
	var errKind, errMsg, opts sql.NullString
	if err := row.Scan(&b.BatchID, &b.Mode, &b.CreatedAt, &b.ItemCount, &b.ReadyCount, &b.FailedCount,
		&b.PendingCount, &b.Status, &errKind, &errMsg, &opts); err != nil {
		return nil, err
	}
	b.ErrorKind = errKind.String
	b.ErrorMessage = errMsg.String
	b.Options = opts.String
	return &b, nil
}

// GetBatch retrieves a batch by its ID
func (db *DB) GetBatch(batchID string) (*Batch, error) {
	row := db.QueryRow("SELECT "+batchColumns+" FROM batches WHERE batch_id = ?", batchID)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return b, nil
}

// ListBatches retrieves batches ordered by most recent first
func (db *DB) ListBatches(limit int) ([]Batch, error) {
	query := "SELECT " + batchColumns + " FROM batches ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// LatestBatchID returns the ID of the most recent batch.
func (db *DB) LatestBatchID() (string, error) {
	batches, err := db.ListBatches(1)
	if err != nil {
		return "", err
	}
	if len(batches) == 0 {
		return "", fmt.Errorf("no batches found")
	}
	return batches[0].BatchID, nil
}

// GetBatchItems retrieves the items of a batch in index order
func (db *DB) GetBatchItems(batchID string) ([]BatchItem, error) {
	rows, err := db.Query(`
		SELECT item_index, input, display_name, identity, state, sp_code, sp_message,
		       error_kind, error_message, meta
		FROM batch_items
		WHERE batch_id = ?
		ORDER BY item_index
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch items: %w", err)
	}
	defer rows.Close()

	var items []BatchItem
	for rows.Next() {
		var it BatchItem
		var name, identity, msg, kind, errMsg, meta sql.NullString
		var code sql.NullInt64
		if err := rows.Scan(&it.Index, &it.Input, &name, &identity, &it.State, &code, &msg,
			&kind, &errMsg, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan batch item: %w", err)
		}
		it.DisplayName = name.String
		it.Identity = identity.String
		it.Code = int(code.Int64)
		it.Message = msg.String
		it.ErrorKind = kind.String
		it.ErrorMessage = errMsg.String
		it.Meta = meta.String
		items = append(items, it)
	}
	return items, rows.Err()
}

func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
