package item

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func numKey(t *testing.T, literal string) SizeKey {
	t.Helper()
	k, err := NumericSize(literal)
	require.NoError(t, err)
	return k
}

func TestTotals_SkipsNonPositiveEntries(t *testing.T) {
	boxes := []Box{
		{Sizes: []SizeEntry{
			{Size: TextSize("M"), Quantity: 3, Price: dec("10")},
			{Size: TextSize("L"), Quantity: 0, Price: dec("999")},
			{Size: TextSize("XL"), Quantity: -2, Price: dec("999")},
		}},
		{Sizes: []SizeEntry{
			{Size: TextSize("M"), Quantity: 1, Price: dec("12.50")},
		}},
	}

	qty, value := Totals(boxes)
	assert.Equal(t, 4, qty)
	assert.True(t, value.Equal(dec("42.50")), "got %s", value)
}

func TestTotals_Empty(t *testing.T) {
	qty, value := Totals(nil)
	assert.Equal(t, 0, qty)
	assert.True(t, value.IsZero())
}

func TestSizeBreakdown_AggregatesAcrossBoxes(t *testing.T) {
	m := TextSize("M")
	boxes := []Box{
		{Sizes: []SizeEntry{{Size: m, Quantity: 2, Price: dec("5")}}},
		{Sizes: []SizeEntry{{Size: m, Quantity: 3, Price: dec("5")}}},
	}
	assert.Equal(t, map[SizeKey]int{m: 5}, SizeBreakdown(boxes))
}

func TestRecommendedSum_OnlyPricedPositiveEntries(t *testing.T) {
	rec := dec("20")
	boxes := []Box{
		{Sizes: []SizeEntry{
			{Size: TextSize("S"), Quantity: 1, Price: dec("8"), RecommendedPrice: &rec},
			{Size: TextSize("M"), Quantity: 0, Price: dec("8"), RecommendedPrice: &rec},
			{Size: TextSize("L"), Quantity: 4, Price: dec("8")},
		}},
	}
	assert.True(t, RecommendedSum(boxes).Equal(dec("20")))
}

func TestDiffBreakdowns_MissingSizeCountsAsZero(t *testing.T) {
	m, l := TextSize("M"), TextSize("L")
	old := map[SizeKey]int{m: 3}
	new := map[SizeKey]int{m: 3, l: 2}

	deltas := DiffBreakdowns(old, new)
	require.Len(t, deltas, 1)
	assert.Equal(t, QuantityDelta{Size: l, OldQuantity: 0, NewQuantity: 2, Delta: 2}, deltas[0])
}

func TestDiffBreakdowns_DeterministicOrder(t *testing.T) {
	n38 := numKey(t, "38")
	n40 := numKey(t, "40")
	s := TextSize("S")

	old := map[SizeKey]int{n40: 1, s: 1, n38: 1}
	deltas := DiffBreakdowns(old, map[SizeKey]int{})
	require.Len(t, deltas, 3)
	assert.Equal(t, n38, deltas[0].Size)
	assert.Equal(t, n40, deltas[1].Size)
	assert.Equal(t, s, deltas[2].Size)
}

func TestDiffBreakdowns_NoChange(t *testing.T) {
	m := TextSize("M")
	assert.Empty(t, DiffBreakdowns(map[SizeKey]int{m: 2}, map[SizeKey]int{m: 2}))
}

func TestEncodeDecodeBoxes_RoundTrip(t *testing.T) {
	rec := dec("30")
	boxes := []Box{
		{Sizes: []SizeEntry{
			{Size: numKey(t, "42"), Quantity: 2, Price: dec("15.5"), RecommendedPrice: &rec},
			{Size: TextSize("XL"), Quantity: 1, Price: dec("9")},
		}},
		{Sizes: []SizeEntry{}},
	}

	raw, err := EncodeBoxes(boxes)
	require.NoError(t, err)
	assert.Contains(t, raw, `"size":42`, "numeric size stays a bare number on the wire")
	assert.Contains(t, raw, `"size":"XL"`)

	back, err := DecodeBoxes(raw)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, boxes[0].Sizes[0].Size, back[0].Sizes[0].Size)
	assert.True(t, back[0].Sizes[0].Price.Equal(dec("15.5")))
	require.NotNil(t, back[0].Sizes[0].RecommendedPrice)
	assert.True(t, back[0].Sizes[0].RecommendedPrice.Equal(rec))
}

func TestDecodeBoxes_EmptyInputs(t *testing.T) {
	for _, raw := range []string{"", "[]"} {
		boxes, err := DecodeBoxes(raw)
		require.NoError(t, err)
		assert.NotNil(t, boxes)
		assert.Empty(t, boxes)
	}
}

func TestEncodeBoxes_NilIsEmptyArray(t *testing.T) {
	raw, err := EncodeBoxes(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}
