package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/avelis/stockbook/internal/audit"
	"github.com/avelis/stockbook/internal/item"
	"github.com/avelis/stockbook/internal/store"
)

const itemColumns = `id, remote_id, version, name, code, warehouse, shelf_row, shelf_position,
	shelf_side, box_count, boxes, qr_codes, image_path, total_quantity, total_value,
	is_deleted, needs_sync, synced_at`

// scanItem decodes one items row. Works for both *sql.Rows positioned on a
// row, via the shared column list above.
func scanItem(rows *sql.Rows) (item.Item, error) {
	var (
		it         item.Item
		boxesRaw   string
		qrRaw      string
		totalValue string
		syncedAt   sql.NullInt64
	)
	if err := rows.Scan(
		&it.ID, &it.RemoteID, &it.Version, &it.Name, &it.Code, &it.Warehouse,
		&it.Row, &it.Position, &it.Side, &it.BoxCount, &boxesRaw, &qrRaw,
		&it.ImagePath, &it.TotalQuantity, &totalValue,
		&it.IsDeleted, &it.NeedsSync, &syncedAt,
	); err != nil {
		return item.Item{}, fmt.Errorf("scan item: %w", err)
	}

	boxes, err := item.DecodeBoxes(boxesRaw)
	if err != nil {
		return item.Item{}, err
	}
	it.Boxes = boxes

	if qrRaw != "" {
		if err := json.Unmarshal([]byte(qrRaw), &it.QRCodes); err != nil {
			return item.Item{}, fmt.Errorf("decode qr codes: %w", err)
		}
	}

	it.TotalValue, err = decimal.NewFromString(totalValue)
	if err != nil {
		return item.Item{}, fmt.Errorf("decode total value: %w", err)
	}
	if syncedAt.Valid {
		it.SyncedAt = &syncedAt.Int64
	}
	return it, nil
}

func encodeQRCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("encode qr codes: %w", err)
	}
	return string(raw), nil
}

// fetchItemTx loads one item inside a transaction.
func fetchItemTx(ctx context.Context, tx *store.Tx, id int64) (item.Item, bool, error) {
	var it item.Item
	found, err := tx.FetchFirst(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, []any{id},
		func(rows *sql.Rows) error {
			var err error
			it, err = scanItem(rows)
			return err
		})
	return it, found, err
}

// appendRecord inserts an audit record inside the same transaction as the
// mutation it documents.
func appendRecord(ctx context.Context, tx *store.Tx, action audit.Action, itemID *int64, itemName string, ts int64, payload any) (int64, error) {
	details, err := audit.MarshalDetails(payload)
	if err != nil {
		return 0, err
	}
	res, err := tx.Run(ctx,
		`INSERT INTO transactions (action, item_id, item_name, ts, details) VALUES (?, ?, ?, ?, ?)`,
		string(action), itemID, itemName, ts, string(details))
	if err != nil {
		return 0, fmt.Errorf("append %s record: %w", action, err)
	}
	return res.LastInsertID, nil
}

// sizeSnapshot converts a breakdown into deterministic {size, quantity}
// lines for create/delete payloads.
func sizeSnapshot(breakdown map[item.SizeKey]int) []audit.SizeCount {
	sizes := item.SortedSizes(breakdown)
	snapshot := make([]audit.SizeCount, 0, len(sizes))
	for _, s := range sizes {
		snapshot = append(snapshot, audit.SizeCount{Size: s, Quantity: breakdown[s]})
	}
	return snapshot
}

// CreateItem inserts a new item and its create record in one transaction.
// Totals are recomputed from the matrix regardless of what the caller set;
// the cached aggregates are an invariant the ledger owns.
func (l *Ledger) CreateItem(ctx context.Context, it item.Item) (item.Item, error) {
	if it.Boxes == nil {
		it.Boxes = []item.Box{}
	}
	it.BoxCount = len(it.Boxes)
	it.TotalQuantity, it.TotalValue = item.Totals(it.Boxes)
	if it.Version == 0 {
		it.Version = 1
	}

	boxesRaw, err := item.EncodeBoxes(it.Boxes)
	if err != nil {
		return item.Item{}, err
	}
	qrRaw, err := encodeQRCodes(it.QRCodes)
	if err != nil {
		return item.Item{}, err
	}

	ts := l.now()
	err = l.mutate(ctx, func(tx *store.Tx) error {
		res, err := tx.Run(ctx, `
			INSERT INTO items
			(remote_id, version, name, code, warehouse, shelf_row, shelf_position, shelf_side,
			 box_count, boxes, qr_codes, image_path, total_quantity, total_value,
			 is_deleted, needs_sync, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			it.RemoteID, it.Version, it.Name, it.Code, it.Warehouse,
			it.Row, it.Position, it.Side, it.BoxCount, boxesRaw, qrRaw,
			it.ImagePath, it.TotalQuantity, it.TotalValue.String(),
			it.IsDeleted, it.NeedsSync, it.SyncedAt,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		it.ID = res.LastInsertID

		_, err = appendRecord(ctx, tx, audit.ActionCreate, &it.ID, it.Name, ts, audit.CreateDetails{
			Sizes:         sizeSnapshot(item.SizeBreakdown(it.Boxes)),
			TotalQuantity: it.TotalQuantity,
			TotalValue:    it.TotalValue,
		})
		return err
	})
	if err != nil {
		return item.Item{}, err
	}
	return it, nil
}

// UpdateQuantity writes a new box matrix for an item and appends the audit
// record describing what changed:
//
//   - any per-size quantity change: an update record with the full delta list
//   - a changed matrix with no quantity change: a price_update record
//   - a byte-identical matrix: no record at all
//
// The new totals are written unconditionally. The caller-provided totals are
// cross-checked against the matrix; on mismatch the computed values win and
// the discrepancy is logged.
func (l *Ledger) UpdateQuantity(ctx context.Context, id int64, boxes []item.Box, totalQty int, totalValue decimal.Decimal) error {
	if boxes == nil {
		boxes = []item.Box{}
	}
	computedQty, computedValue := item.Totals(boxes)
	if computedQty != totalQty || !computedValue.Equal(totalValue) {
		l.log.Warn("caller totals disagree with box matrix, using computed values",
			zap.Int64("item", id),
			zap.Int("callerQuantity", totalQty),
			zap.Int("computedQuantity", computedQty))
	}

	newRaw, err := item.EncodeBoxes(boxes)
	if err != nil {
		return err
	}

	ts := l.now()
	return l.mutate(ctx, func(tx *store.Tx) error {
		cur, found, err := fetchItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return notFound("item", id)
		}

		res, err := tx.Run(ctx, `
			UPDATE items SET boxes = ?, box_count = ?, total_quantity = ?, total_value = ?
			WHERE id = ?
		`, newRaw, len(boxes), computedQty, computedValue.String(), id)
		if err != nil {
			return fmt.Errorf("update item %d: %w", id, err)
		}
		if res.Affected == 0 {
			// Row vanished between fetch and write. Surface it; a silent
			// no-op here is a lost update.
			return updateFailed("item", id)
		}

		deltas := item.DiffBreakdowns(item.SizeBreakdown(cur.Boxes), item.SizeBreakdown(boxes))
		switch {
		case len(deltas) > 0:
			_, err = appendRecord(ctx, tx, audit.ActionUpdate, &id, cur.Name, ts, audit.UpdateDetails{
				Type:    audit.UpdateTypeQuantity,
				Changes: deltas,
			})
			return err
		default:
			oldRaw, err := item.EncodeBoxes(cur.Boxes)
			if err != nil {
				return err
			}
			if oldRaw == newRaw {
				return nil // cosmetically identical, nothing to document
			}
			oldValue := cur.TotalValue
			oldRec := item.RecommendedSum(cur.Boxes)
			newRec := item.RecommendedSum(boxes)
			_, err = appendRecord(ctx, tx, audit.ActionUpdate, &id, cur.Name, ts, audit.UpdateDetails{
				Type:              audit.UpdateTypePriceUpdate,
				OldTotalValue:     &oldValue,
				NewTotalValue:     &computedValue,
				OldRecommendedSum: &oldRec,
				NewRecommendedSum: &newRec,
			})
			return err
		}
	})
}

// Metadata is the set of descriptive item fields updatable without an audit
// record. Callers must not expect a history entry for these edits.
type Metadata struct {
	Name      string
	Code      string
	Warehouse string
	Row       int
	Position  int
	Side      string
	ImagePath string
}

// UpdateItem updates descriptive fields only. No audit record is written.
func (l *Ledger) UpdateItem(ctx context.Context, id int64, meta Metadata) error {
	return l.mutate(ctx, func(tx *store.Tx) error {
		res, err := tx.Run(ctx, `
			UPDATE items SET name = ?, code = ?, warehouse = ?, shelf_row = ?,
				shelf_position = ?, shelf_side = ?, image_path = ?
			WHERE id = ?
		`, meta.Name, meta.Code, meta.Warehouse, meta.Row, meta.Position, meta.Side, meta.ImagePath, id)
		if err != nil {
			return fmt.Errorf("update item metadata %d: %w", id, err)
		}
		if res.Affected == 0 {
			return updateFailed("item", id)
		}
		return nil
	})
}

// UpdateQRCodes replaces the item's QR payload list, issuing a fresh opaque
// token for every empty slot. No audit record is written. Returns the list
// as stored.
func (l *Ledger) UpdateQRCodes(ctx context.Context, id int64, codes []string) ([]string, error) {
	filled := make([]string, len(codes))
	for i, c := range codes {
		if c == "" {
			c = uuid.NewString()
		}
		filled[i] = c
	}
	raw, err := encodeQRCodes(filled)
	if err != nil {
		return nil, err
	}

	err = l.mutate(ctx, func(tx *store.Tx) error {
		res, err := tx.Run(ctx, `UPDATE items SET qr_codes = ? WHERE id = ?`, raw, id)
		if err != nil {
			return fmt.Errorf("update qr codes %d: %w", id, err)
		}
		if res.Affected == 0 {
			return updateFailed("item", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filled, nil
}

// DeleteItem removes the item row and appends its delete record in one
// transaction, then removes the image artifact best-effort outside it.
func (l *Ledger) DeleteItem(ctx context.Context, id int64) error {
	ts := l.now()
	var imagePath string
	err := l.mutate(ctx, func(tx *store.Tx) error {
		cur, found, err := fetchItemTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return notFound("item", id)
		}
		imagePath = cur.ImagePath

		res, err := tx.Run(ctx, `DELETE FROM items WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete item %d: %w", id, err)
		}
		if res.Affected == 0 {
			return deleteFailed("item", id)
		}

		_, err = appendRecord(ctx, tx, audit.ActionDelete, &id, cur.Name, ts, audit.DeleteDetails{
			Sizes:         sizeSnapshot(item.SizeBreakdown(cur.Boxes)),
			TotalQuantity: cur.TotalQuantity,
			TotalValue:    cur.TotalValue,
		})
		return err
	})
	if err != nil {
		return err
	}

	// Artifact cleanup happens after commit. A failure here never unwinds
	// the delete; the orphaned file is logged and left behind.
	if imagePath != "" && l.artifacts != nil {
		if rmErr := l.artifacts.Remove(imagePath); rmErr != nil {
			l.log.Warn("image cleanup failed", zap.String("path", imagePath), zap.Error(rmErr))
		}
	}
	return nil
}

// Items returns every item, ordered by name.
func (l *Ledger) Items(ctx context.Context) ([]item.Item, error) {
	return read(l, ctx, func(db *store.DB) ([]item.Item, error) {
		var items []item.Item
		err := db.FetchAll(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name ASC, id ASC`, nil,
			func(rows *sql.Rows) error {
				items = items[:0]
				for rows.Next() {
					it, err := scanItem(rows)
					if err != nil {
						return err
					}
					items = append(items, it)
				}
				return rows.Err()
			})
		if err != nil {
			return nil, fmt.Errorf("query items: %w", err)
		}
		if items == nil {
			items = []item.Item{}
		}
		return items, nil
	})
}

// ItemByID returns one item or a NotFound error.
func (l *Ledger) ItemByID(ctx context.Context, id int64) (item.Item, error) {
	return read(l, ctx, func(db *store.DB) (item.Item, error) {
		var it item.Item
		found, err := db.FetchFirst(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, []any{id},
			func(rows *sql.Rows) error {
				var err error
				it, err = scanItem(rows)
				return err
			})
		if err != nil {
			return item.Item{}, fmt.Errorf("query item %d: %w", id, err)
		}
		if !found {
			return item.Item{}, notFound("item", id)
		}
		return it, nil
	})
}

// ItemFilter narrows an ItemPage request. Search matches name or code,
// case-insensitively. Type matches the SKU code prefix.
type ItemFilter struct {
	Limit     int
	Offset    int
	Search    string
	Warehouse string
	Type      string
}

// Page is one page of items plus a has-more indicator.
type Page struct {
	Items   []item.Item
	HasMore bool
}

// ItemPage returns a filtered page of items in collated name order.
func (l *Ledger) ItemPage(ctx context.Context, f ItemFilter) (Page, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var (
		conds []string
		args  []any
	)
	if f.Search != "" {
		needle := "%" + strings.ToLower(f.Search) + "%"
		conds = append(conds, `(LOWER(name) LIKE ? OR LOWER(code) LIKE ?)`)
		args = append(args, needle, needle)
	}
	if f.Warehouse != "" {
		conds = append(conds, `warehouse = ?`)
		args = append(args, f.Warehouse)
	}
	if f.Type != "" {
		conds = append(conds, `code LIKE ?`)
		args = append(args, f.Type+"%")
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY name ASC, id ASC`

	return read(l, ctx, func(db *store.DB) (Page, error) {
		var items []item.Item
		err := db.FetchAll(ctx, query, args, func(rows *sql.Rows) error {
			items = items[:0]
			for rows.Next() {
				it, err := scanItem(rows)
				if err != nil {
					return err
				}
				items = append(items, it)
			}
			return rows.Err()
		})
		if err != nil {
			return Page{}, fmt.Errorf("query item page: %w", err)
		}

		// SQLite orders names by byte value, which misplaces accented names.
		// Collate the full result before slicing so page boundaries agree
		// with display order; the SQL ORDER BY keeps the input stable.
		c := collate.New(language.English)
		sort.SliceStable(items, func(i, j int) bool {
			return c.CompareString(items[i].Name, items[j].Name) < 0
		})

		start := f.Offset
		if start < 0 {
			start = 0
		}
		if start > len(items) {
			start = len(items)
		}
		end := start + f.Limit
		page := Page{HasMore: end < len(items)}
		if end > len(items) {
			end = len(items)
		}
		page.Items = items[start:end]
		if page.Items == nil {
			page.Items = []item.Item{}
		}
		return page, nil
	})
}

// ClearItems removes every item row. Used by import tooling, never exposed
// to end users directly.
func (l *Ledger) ClearItems(ctx context.Context) error {
	return l.mutate(ctx, func(tx *store.Tx) error {
		return tx.Exec(ctx, `DELETE FROM items`)
	})
}
