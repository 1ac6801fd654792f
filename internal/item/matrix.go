package item

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// EncodeBoxes serializes a box matrix to its JSON wire form.
// A nil matrix encodes as an empty array.
func EncodeBoxes(boxes []Box) (string, error) {
	if boxes == nil {
		boxes = []Box{}
	}
	raw, err := json.Marshal(boxes)
	if err != nil {
		return "", fmt.Errorf("encode boxes: %w", err)
	}
	return string(raw), nil
}

// DecodeBoxes parses the JSON wire form of a box matrix.
// Empty input decodes to an empty matrix.
func DecodeBoxes(raw string) ([]Box, error) {
	if raw == "" {
		return []Box{}, nil
	}
	var boxes []Box
	if err := json.Unmarshal([]byte(raw), &boxes); err != nil {
		return nil, fmt.Errorf("decode boxes: %w", err)
	}
	if boxes == nil {
		boxes = []Box{}
	}
	return boxes, nil
}

// Totals computes the cached aggregates from a box matrix. Entries with a
// non-positive quantity contribute nothing; they may linger in the structure
// after a reversal and must not distort totals.
func Totals(boxes []Box) (quantity int, value decimal.Decimal) {
	value = decimal.Zero
	for _, b := range boxes {
		for _, e := range b.Sizes {
			if e.Quantity <= 0 {
				continue
			}
			quantity += e.Quantity
			value = value.Add(e.Price.Mul(decimal.NewFromInt(int64(e.Quantity))))
		}
	}
	return quantity, value
}

// SizeBreakdown aggregates quantities per size across all boxes.
func SizeBreakdown(boxes []Box) map[SizeKey]int {
	breakdown := make(map[SizeKey]int)
	for _, b := range boxes {
		for _, e := range b.Sizes {
			breakdown[e.Size] += e.Quantity
		}
	}
	return breakdown
}

// RecommendedSum totals the recommended selling price over positive-quantity
// entries that carry one.
func RecommendedSum(boxes []Box) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range boxes {
		for _, e := range b.Sizes {
			if e.Quantity <= 0 || e.RecommendedPrice == nil {
				continue
			}
			sum = sum.Add(*e.RecommendedPrice)
		}
	}
	return sum
}

// QuantityDelta records one size whose aggregate quantity changed.
type QuantityDelta struct {
	Size        SizeKey `json:"size"`
	OldQuantity int     `json:"oldQuantity"`
	NewQuantity int     `json:"newQuantity"`
	Delta       int     `json:"delta"`
}

// DiffBreakdowns compares two per-size breakdowns and returns one delta per
// size whose quantity changed, in deterministic size order. A size absent
// from one side counts as zero.
func DiffBreakdowns(old, new map[SizeKey]int) []QuantityDelta {
	keys := make(map[SizeKey]struct{}, len(old)+len(new))
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}

	var deltas []QuantityDelta
	for k := range keys {
		before, after := old[k], new[k]
		if before == after {
			continue
		}
		deltas = append(deltas, QuantityDelta{
			Size:        k,
			OldQuantity: before,
			NewQuantity: after,
			Delta:       after - before,
		})
	}

	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].Size.Less(deltas[j].Size)
	})
	return deltas
}

// SortedSizes returns the sizes of a breakdown in deterministic order.
func SortedSizes(breakdown map[SizeKey]int) []SizeKey {
	keys := make([]SizeKey, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
