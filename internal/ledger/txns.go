package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/avelis/stockbook/internal/audit"
	"github.com/avelis/stockbook/internal/store"
)

const txnColumns = `id, action, item_id, item_name, ts, details`

func scanTransaction(rows *sql.Rows) (audit.Transaction, error) {
	var (
		t       audit.Transaction
		action  string
		itemID  sql.NullInt64
		details string
	)
	if err := rows.Scan(&t.ID, &action, &itemID, &t.ItemName, &t.Timestamp, &details); err != nil {
		return audit.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Action = audit.Action(action)
	if itemID.Valid {
		t.ItemID = &itemID.Int64
	}
	t.Details = json.RawMessage(details)
	return t, nil
}

// Append writes a standalone audit record. Sale and wholesale records enter
// the log this way; create/update/delete records are written by the item
// mutators themselves. A zero timestamp is filled from the ledger clock.
func (l *Ledger) Append(ctx context.Context, t audit.Transaction) (int64, error) {
	if !t.Action.Valid() {
		return 0, fmt.Errorf("unknown action %q", t.Action)
	}
	if t.Timestamp == 0 {
		t.Timestamp = l.now()
	}
	if len(t.Details) == 0 {
		t.Details = json.RawMessage(`{}`)
	}

	var id int64
	err := l.mutate(ctx, func(tx *store.Tx) error {
		res, err := tx.Run(ctx,
			`INSERT INTO transactions (action, item_id, item_name, ts, details) VALUES (?, ?, ?, ?, ?)`,
			string(t.Action), t.ItemID, t.ItemName, t.Timestamp, string(t.Details))
		if err != nil {
			return fmt.Errorf("append %s record: %w", t.Action, err)
		}
		id = res.LastInsertID
		return nil
	})
	return id, err
}

func (l *Ledger) fetchTransactions(ctx context.Context, query string, args []any) ([]audit.Transaction, error) {
	return read(l, ctx, func(db *store.DB) ([]audit.Transaction, error) {
		var txs []audit.Transaction
		err := db.FetchAll(ctx, query, args, func(rows *sql.Rows) error {
			txs = txs[:0]
			for rows.Next() {
				t, err := scanTransaction(rows)
				if err != nil {
					return err
				}
				txs = append(txs, t)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, fmt.Errorf("query transactions: %w", err)
		}
		if txs == nil {
			txs = []audit.Transaction{}
		}
		return txs, nil
	})
}

// HistoryPage is one page of audit records plus a has-more indicator.
type HistoryPage struct {
	Transactions []audit.Transaction
	HasMore      bool
}

// TransactionPage returns audit records newest first.
func (l *Ledger) TransactionPage(ctx context.Context, limit, offset int) (HistoryPage, error) {
	if limit <= 0 {
		limit = 50
	}
	txs, err := l.fetchTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		[]any{limit + 1, offset})
	if err != nil {
		return HistoryPage{}, err
	}
	page := HistoryPage{Transactions: txs}
	if len(page.Transactions) > limit {
		page.Transactions = page.Transactions[:limit]
		page.HasMore = true
	}
	return page, nil
}

// SearchTransactions returns records whose item name contains the needle,
// case-insensitively, newest first.
func (l *Ledger) SearchTransactions(ctx context.Context, needle string, limit int) ([]audit.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.fetchTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions
		 WHERE LOWER(item_name) LIKE '%' || LOWER(?) || '%'
		 ORDER BY ts DESC, id DESC LIMIT ?`,
		[]any{needle, limit})
}

// TransactionsInRange returns records with from <= ts <= to, newest first.
func (l *Ledger) TransactionsInRange(ctx context.Context, from, to int64) ([]audit.Transaction, error) {
	return l.fetchTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE ts >= ? AND ts <= ? ORDER BY ts DESC, id DESC`,
		[]any{from, to})
}

// ItemTransactions returns every record for one item, newest first.
func (l *Ledger) ItemTransactions(ctx context.Context, itemID int64) ([]audit.Transaction, error) {
	return l.fetchTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE item_id = ? ORDER BY ts DESC, id DESC`,
		[]any{itemID})
}

// Transactions returns the whole log in chronological order, for export.
func (l *Ledger) Transactions(ctx context.Context) ([]audit.Transaction, error) {
	return l.fetchTransactions(ctx,
		`SELECT `+txnColumns+` FROM transactions ORDER BY ts ASC, id ASC`, nil)
}

// TransactionByID returns one record or a NotFound error.
func (l *Ledger) TransactionByID(ctx context.Context, id int64) (audit.Transaction, error) {
	return read(l, ctx, func(db *store.DB) (audit.Transaction, error) {
		var t audit.Transaction
		found, err := db.FetchFirst(ctx,
			`SELECT `+txnColumns+` FROM transactions WHERE id = ?`, []any{id},
			func(rows *sql.Rows) error {
				var err error
				t, err = scanTransaction(rows)
				return err
			})
		if err != nil {
			return audit.Transaction{}, fmt.Errorf("query transaction %d: %w", id, err)
		}
		if !found {
			return audit.Transaction{}, notFound("transaction", id)
		}
		return t, nil
	})
}

// ClearTransactions removes every audit record. Used by import tooling.
func (l *Ledger) ClearTransactions(ctx context.Context) error {
	return l.mutate(ctx, func(tx *store.Tx) error {
		return tx.Exec(ctx, `DELETE FROM transactions`)
	})
}
