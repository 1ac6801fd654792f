package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avelis/stockbook/internal/audit"
	"github.com/avelis/stockbook/internal/item"
	"github.com/avelis/stockbook/internal/store"
)

// correlationWindow is the timestamp distance, in seconds, within which
// records for the same item are treated as parts of one logical sale.
// Inclusive on both ends.
const correlationWindow = 5

// ReversalOutcome describes what Reverse did. When ItemMissing is set the
// stock could not be restored because the item row no longer exists; the
// audit records were still removed.
type ReversalOutcome struct {
	Restored       *item.Item
	ItemMissing    bool
	DeletedRecords []int64
}

// Reverse undoes the sale that produced the given audit record: the sold
// stock is put back into the item's box matrix and every record of the
// correlated group is deleted, all in one transaction.
//
// The group is the target record plus every sale, wholesale, and update
// record for the same item within the correlation window around the target's
// timestamp. A single tap in the UI writes the sale record and the quantity
// update it implies as separate rows with nothing linking them but time, so
// reversing one without the other would leave a half-undone sale in the log.
//
// Within the group, a wholesale record wins over a plain sale as the source
// of what to restore, the target over its siblings, and lower ids over
// higher. A group with no sale in it at all is not reversible.
func (l *Ledger) Reverse(ctx context.Context, txID int64) (ReversalOutcome, error) {
	var out ReversalOutcome
	err := l.mutate(ctx, func(tx *store.Tx) error {
		out = ReversalOutcome{}

		target, found, err := fetchTransactionTx(ctx, tx, txID)
		if err != nil {
			return err
		}
		if !found {
			return notFound("transaction", txID)
		}

		group, err := correlatedGroup(ctx, tx, target)
		if err != nil {
			return err
		}

		source, ok := pickReversalSource(target, group)
		if !ok {
			return notASale(txID)
		}

		for _, g := range group {
			out.DeletedRecords = append(out.DeletedRecords, g.ID)
		}

		if target.ItemID == nil {
			out.ItemMissing = true
			return deleteRecords(ctx, tx, group)
		}
		it, found, err := fetchItemTx(ctx, tx, *target.ItemID)
		if err != nil {
			return err
		}
		if !found {
			// The item was deleted after the sale. There is no stock to put
			// back; removing the records is still the right thing to do.
			l.log.Info("reversing sale for deleted item",
				zap.Int64("transaction", txID), zap.Int64("item", *target.ItemID))
			out.ItemMissing = true
			return deleteRecords(ctx, tx, group)
		}

		if audit.IsWholesaleRecord(source) {
			wd, err := audit.WholesaleOf(source)
			if err != nil {
				return err
			}
			it.Boxes = restoreWholesale(it.Boxes, wd)
		} else {
			sale, err := audit.SaleOf(source)
			if err != nil {
				return err
			}
			it.Boxes = restoreSale(it.Boxes, sale)
		}

		boxesRaw, err := item.EncodeBoxes(it.Boxes)
		if err != nil {
			return err
		}
		it.BoxCount = len(it.Boxes)
		it.TotalQuantity, it.TotalValue = item.Totals(it.Boxes)

		res, err := tx.Run(ctx, `
			UPDATE items SET boxes = ?, box_count = ?, total_quantity = ?, total_value = ?
			WHERE id = ?
		`, boxesRaw, it.BoxCount, it.TotalQuantity, it.TotalValue.String(), it.ID)
		if err != nil {
			return fmt.Errorf("restore item %d: %w", it.ID, err)
		}
		if res.Affected == 0 {
			return updateFailed("item", it.ID)
		}

		out.Restored = &it
		return deleteRecords(ctx, tx, group)
	})
	if err != nil {
		return ReversalOutcome{}, err
	}
	return out, nil
}

func fetchTransactionTx(ctx context.Context, tx *store.Tx, id int64) (audit.Transaction, bool, error) {
	var t audit.Transaction
	found, err := tx.FetchFirst(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = ?`, []any{id},
		func(rows *sql.Rows) error {
			var err error
			t, err = scanTransaction(rows)
			return err
		})
	return t, found, err
}

// correlatedGroup returns the target plus its time-correlated siblings,
// target first, the rest in id order. A record without an item id has
// nothing to correlate on and forms a group of one.
func correlatedGroup(ctx context.Context, tx *store.Tx, target audit.Transaction) ([]audit.Transaction, error) {
	group := []audit.Transaction{target}
	if target.ItemID == nil {
		return group, nil
	}

	var siblings []audit.Transaction
	err := tx.FetchAll(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE item_id = ? AND id != ?
		  AND action IN ('sale', 'wholesale', 'update')
		  AND ts >= ? AND ts <= ?
		ORDER BY id ASC
	`, []any{*target.ItemID, target.ID, target.Timestamp - correlationWindow, target.Timestamp + correlationWindow},
		func(rows *sql.Rows) error {
			siblings = siblings[:0]
			for rows.Next() {
				t, err := scanTransaction(rows)
				if err != nil {
					return err
				}
				siblings = append(siblings, t)
			}
			return rows.Err()
		})
	if err != nil {
		return nil, fmt.Errorf("query correlated records: %w", err)
	}
	return append(group, siblings...), nil
}

// pickReversalSource chooses which record of the group describes the sold
// stock. Group order already encodes the target-first, then id tiebreak.
func pickReversalSource(target audit.Transaction, group []audit.Transaction) (audit.Transaction, bool) {
	for _, t := range group {
		if audit.IsWholesaleRecord(t) {
			return t, true
		}
	}
	for _, t := range group {
		if audit.IsSaleRecord(t) {
			return t, true
		}
	}
	return audit.Transaction{}, false
}

func deleteRecords(ctx context.Context, tx *store.Tx, group []audit.Transaction) error {
	for _, t := range group {
		res, err := tx.Run(ctx, `DELETE FROM transactions WHERE id = ?`, t.ID)
		if err != nil {
			return fmt.Errorf("delete record %d: %w", t.ID, err)
		}
		if res.Affected == 0 {
			return deleteFailed("transaction", t.ID)
		}
	}
	return nil
}

// restoreSale puts a single sale's quantity back into the matrix. The
// recorded box index is tried first; if it is stale or missing the size is
// restored wherever it still exists, and failing that into the first box.
// A size that was pruned from the matrix after selling out is re-inserted
// at its recorded cost price.
func restoreSale(boxes []item.Box, sale audit.SaleDetails) []item.Box {
	if sale.BoxIndex != nil {
		i := *sale.BoxIndex
		if i >= 0 && i < len(boxes) {
			boxes[i].Sizes = restoreSize(boxes[i].Sizes, sale.Size, sale.Quantity, sale.CostPrice)
			return boxes
		}
	}

	for i := range boxes {
		for j := range boxes[i].Sizes {
			if boxes[i].Sizes[j].Size == sale.Size {
				boxes[i].Sizes[j].Quantity += sale.Quantity
				return boxes
			}
		}
	}

	if len(boxes) == 0 {
		boxes = append(boxes, item.Box{})
	}
	boxes[0].Sizes = restoreSize(boxes[0].Sizes, sale.Size, sale.Quantity, sale.CostPrice)
	return boxes
}

// restoreWholesale puts every sold box's sizes back into the matrix. Each
// line is restored into its recorded box when the index still exists, and
// into the first box otherwise.
func restoreWholesale(boxes []item.Box, wd audit.WholesaleDetails) []item.Box {
	for _, line := range wd.Boxes {
		if len(boxes) == 0 {
			boxes = append(boxes, item.Box{})
		}
		i := line.BoxIndex
		if i < 0 || i >= len(boxes) {
			i = 0
		}
		for _, sold := range line.Sizes {
			boxes[i].Sizes = restoreSize(boxes[i].Sizes, sold.Size, sold.Quantity, sold.Price)
		}
	}
	return boxes
}

func restoreSize(sizes []item.SizeEntry, size item.SizeKey, qty int, price decimal.Decimal) []item.SizeEntry {
	for i := range sizes {
		if sizes[i].Size == size {
			sizes[i].Quantity += qty
			return sizes
		}
	}
	return append(sizes, item.SizeEntry{Size: size, Quantity: qty, Price: price})
}
