package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelis/stockbook/internal/audit"
	"github.com/avelis/stockbook/internal/item"
)

func appendSale(t *testing.T, l *Ledger, it item.Item, ts int64, sale audit.SaleDetails) int64 {
	t.Helper()
	sale.Type = "sale"
	details, err := audit.MarshalDetails(sale)
	require.NoError(t, err)
	id, err := l.Append(context.Background(), audit.Transaction{
		Action: audit.ActionSale, ItemID: &it.ID, ItemName: it.Name,
		Timestamp: ts, Details: details,
	})
	require.NoError(t, err)
	return id
}

func appendUpdate(t *testing.T, l *Ledger, it item.Item, ts int64, changes []item.QuantityDelta) int64 {
	t.Helper()
	details, err := audit.MarshalDetails(audit.UpdateDetails{Type: audit.UpdateTypeQuantity, Changes: changes})
	require.NoError(t, err)
	id, err := l.Append(context.Background(), audit.Transaction{
		Action: audit.ActionUpdate, ItemID: &it.ID, ItemName: it.Name,
		Timestamp: ts, Details: details,
	})
	require.NoError(t, err)
	return id
}

func boxIndex(i int) *int { return &i }

// applySale deducts a sale from the item the way the selling frontend would,
// so the reversal has something real to undo.
func applySale(t *testing.T, l *Ledger, it item.Item, size item.SizeKey, qty int) item.Item {
	t.Helper()
	ctx := context.Background()
	cur, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	for i := range cur.Boxes {
		for j := range cur.Boxes[i].Sizes {
			if cur.Boxes[i].Sizes[j].Size == size {
				cur.Boxes[i].Sizes[j].Quantity -= qty
			}
		}
	}
	total, value := item.Totals(cur.Boxes)
	require.NoError(t, l.UpdateQuantity(ctx, it.ID, cur.Boxes, total, value))
	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	return back
}

func TestReverse_RestoresSoldQuantityAndDeletesGroup(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	it := mustCreate(t, l, twoSizeBoxes(3, 2))
	applySale(t, l, it, sizeM(), 1) // writes the correlated update record

	saleID := appendSale(t, l, it, 1_700_000_000, audit.SaleDetails{
		Size: sizeM(), Quantity: 1,
		CostPrice: dec("10"), SalePrice: dec("25"), Profit: dec("15"),
		PreviousQuantity: 3, BoxIndex: boxIndex(0),
	})

	out, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)
	require.NotNil(t, out.Restored)
	assert.False(t, out.ItemMissing)
	// The sale record plus the update record it was correlated with.
	assert.Len(t, out.DeletedRecords, 2)

	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, back.TotalQuantity, "sold unit restored")
	assert.True(t, back.TotalValue.Equal(dec("54")))

	// Only the untouched create record survives.
	txs, err := l.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, audit.ActionCreate, txs[0].Action)
}

func TestReverse_CorrelationWindowBoundaries(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	it := mustCreate(t, l, twoSizeBoxes(5, 5))

	base := int64(1_700_000_000)
	saleID := appendSale(t, l, it, base, audit.SaleDetails{
		Size: sizeM(), Quantity: 1, CostPrice: dec("10"), SalePrice: dec("20"),
	})
	within := appendUpdate(t, l, it, base+4, nil)
	outside := appendUpdate(t, l, it, base+6, nil)

	out, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{saleID, within}, out.DeletedRecords,
		"4s is inside the window, 6s is outside")

	txs, err := l.Transactions(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.ID)
	}
	assert.Contains(t, ids, outside)
	assert.NotContains(t, ids, within)
}

func TestReverse_TargetMayBeTheUpdateRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	it := mustCreate(t, l, twoSizeBoxes(3, 2))
	applySale(t, l, it, sizeM(), 1)

	base := int64(1_700_000_000)
	updateID := appendUpdate(t, l, it, base+1, []item.QuantityDelta{
		{Size: sizeM(), OldQuantity: 3, NewQuantity: 2, Delta: -1},
	})
	appendSale(t, l, it, base, audit.SaleDetails{
		Size: sizeM(), Quantity: 1, CostPrice: dec("10"), SalePrice: dec("20"), BoxIndex: boxIndex(0),
	})

	// Reversing via the update row still finds the sale sibling and restores
	// the stock it describes.
	out, err := l.Reverse(ctx, updateID)
	require.NoError(t, err)
	require.NotNil(t, out.Restored)

	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, back.TotalQuantity)
}

func TestReverse_GroupWithoutSaleIsRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	it := mustCreate(t, l, twoSizeBoxes(3, 2))

	updateID := appendUpdate(t, l, it, 1_800_000_000, []item.QuantityDelta{
		{Size: sizeM(), OldQuantity: 3, NewQuantity: 4, Delta: 1},
	})

	_, err := l.Reverse(context.Background(), updateID)
	assert.True(t, IsNotASale(err), "err = %v", err)
}

func TestReverse_UnknownTransaction(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Reverse(context.Background(), 424242)
	assert.True(t, IsNotFound(err), "err = %v", err)
}

func TestReverse_PrunedSizeReinsertedAtCostPrice(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// The size sold out and was pruned from the matrix entirely.
	it := mustCreate(t, l, []item.Box{{Sizes: []item.SizeEntry{
		{Size: sizeL(), Quantity: 2, Price: dec("12")},
	}}})

	saleID := appendSale(t, l, it, 1_700_000_000, audit.SaleDetails{
		Size: sizeM(), Quantity: 1, CostPrice: dec("10"), SalePrice: dec("30"), BoxIndex: boxIndex(0),
	})

	_, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)

	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, back.Boxes, 1)
	require.Len(t, back.Boxes[0].Sizes, 2)
	restored := back.Boxes[0].Sizes[1]
	assert.Equal(t, sizeM(), restored.Size)
	assert.Equal(t, 1, restored.Quantity)
	assert.True(t, restored.Price.Equal(dec("10")), "re-inserted at recorded cost price")
}

func TestReverse_StaleBoxIndexFallsBackToMatchingSize(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// Size M lives in the second box only; the recorded index points past the
	// end of the matrix.
	it := mustCreate(t, l, []item.Box{
		{Sizes: []item.SizeEntry{{Size: sizeL(), Quantity: 1, Price: dec("12")}}},
		{Sizes: []item.SizeEntry{{Size: sizeM(), Quantity: 2, Price: dec("10")}}},
	})

	saleID := appendSale(t, l, it, 1_700_000_000, audit.SaleDetails{
		Size: sizeM(), Quantity: 1, CostPrice: dec("10"), SalePrice: dec("20"), BoxIndex: boxIndex(9),
	})

	_, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)

	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Boxes[1].Sizes[0].Quantity, "restored where the size still lives")
	require.Len(t, back.Boxes[0].Sizes, 1, "first box untouched")
}

func TestReverse_NoMatchingSizeGoesToFirstBox(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	it := mustCreate(t, l, []item.Box{
		{Sizes: []item.SizeEntry{{Size: sizeL(), Quantity: 1, Price: dec("12")}}},
		{Sizes: []item.SizeEntry{{Size: item.TextSize("XL"), Quantity: 1, Price: dec("14")}}},
	})

	saleID := appendSale(t, l, it, 1_700_000_000, audit.SaleDetails{
		Size: sizeM(), Quantity: 2, CostPrice: dec("10"), SalePrice: dec("20"),
	})

	_, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)

	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, back.Boxes[0].Sizes, 2, "last-resort restore targets the first box")
	assert.Equal(t, sizeM(), back.Boxes[0].Sizes[1].Size)
	assert.Equal(t, 2, back.Boxes[0].Sizes[1].Quantity)
	require.Len(t, back.Boxes[1].Sizes, 1, "never the last box")
}

func TestReverse_WholesaleTakesPriorityOverSale(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	it := mustCreate(t, l, []item.Box{
		{Sizes: []item.SizeEntry{{Size: sizeM(), Quantity: 1, Price: dec("10")}}},
	})

	base := int64(1_700_000_000)
	// A single-unit sale landed in the same window as the whole-box sale.
	saleID := appendSale(t, l, it, base+1, audit.SaleDetails{
		Size: sizeM(), Quantity: 1, CostPrice: dec("10"), SalePrice: dec("20"),
	})
	wdDetails, err := audit.MarshalDetails(audit.WholesaleDetails{
		Type: "wholesale",
		Boxes: []audit.WholesaleLine{{
			BoxIndex: 1, Quantity: 3, CostPrice: dec("30"), SalePrice: dec("60"), Profit: dec("30"),
			Sizes: []audit.SoldSize{
				{Size: sizeM(), Quantity: 2, Price: dec("10")},
				{Size: sizeL(), Quantity: 1, Price: dec("12")},
			},
		}},
		TotalQuantity: 3, TotalCost: dec("30"), TotalRevenue: dec("60"), TotalProfit: dec("30"),
	})
	require.NoError(t, err)
	_, err = l.Append(ctx, audit.Transaction{
		Action: audit.ActionWholesale, ItemID: &it.ID, ItemName: it.Name,
		Timestamp: base, Details: wdDetails,
	})
	require.NoError(t, err)

	out, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)
	assert.Len(t, out.DeletedRecords, 2)

	// The wholesale payload was restored, not the single sale. Its recorded
	// box index no longer exists, so everything lands in the first box.
	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, back.TotalQuantity, "1 on hand + 3 from the wholesale line")
	require.Len(t, back.Boxes, 1)
	assert.Equal(t, 3, back.Boxes[0].Sizes[0].Quantity, "M: 1 + 2")
}

func TestReverse_ItemDeletedStillRemovesRecords(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	it := mustCreate(t, l, twoSizeBoxes(1, 1))
	saleID := appendSale(t, l, it, 1_700_000_000, audit.SaleDetails{
		Size: sizeM(), Quantity: 1, CostPrice: dec("10"), SalePrice: dec("20"),
	})

	// Remove the item row out from under the record.
	require.NoError(t, l.ClearItems(ctx))

	out, err := l.Reverse(ctx, saleID)
	require.NoError(t, err)
	assert.True(t, out.ItemMissing)
	assert.Nil(t, out.Restored)
	assert.NotEmpty(t, out.DeletedRecords)

	txs, err := l.Transactions(ctx)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.NotEqual(t, saleID, tx.ID, "sale record must be gone")
	}
}

func TestReverse_LegacyEmbeddedSalePayload(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	it := mustCreate(t, l, twoSizeBoxes(2, 2))

	// Old records carry action "update" with the sale nested under a "sale"
	// key instead of a typed payload.
	raw := []byte(`{"sale":{"size":"M","quantity":1,"costPrice":"10","salePrice":"22","previousQuantity":3,"profit":"12"}}`)
	legacyID, err := l.Append(ctx, audit.Transaction{
		Action: audit.ActionUpdate, ItemID: &it.ID, ItemName: it.Name,
		Timestamp: 1_700_000_000, Details: raw,
	})
	require.NoError(t, err)

	out, err := l.Reverse(ctx, legacyID)
	require.NoError(t, err)
	require.NotNil(t, out.Restored)

	back, err := l.ItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, back.TotalQuantity)
}
