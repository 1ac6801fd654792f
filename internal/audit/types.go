// Package audit defines the transaction log record model.
//
// A transaction documents one mutation's effect on an item. Records are
// immutable once written; the only thing that ever removes them is the
// reversal engine undoing a sale. Records produced by a single logical user
// action (a sale plus the quantity update it implies) carry no foreign key
// linking them; they are correlated by item id and timestamp proximity.
package audit

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/avelis/stockbook/internal/item"
)

// Action classifies what a transaction record documents.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionSale      Action = "sale"
	ActionWholesale Action = "wholesale"
)

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionSale, ActionWholesale:
		return true
	}
	return false
}

// Transaction is one audit record. ItemID is nullable: the item row may be
// deleted after the record was written. ItemName is a denormalized snapshot
// for the same reason. Timestamp is in seconds.
type Transaction struct {
	ID        int64
	Action    Action
	ItemID    *int64
	ItemName  string
	Timestamp int64
	Details   json.RawMessage
}

// SizeCount is one {size, quantity} line in a create or delete snapshot.
type SizeCount struct {
	Size     item.SizeKey `json:"size"`
	Quantity int          `json:"quantity"`
}

// CreateDetails is the payload of a create record: the initial per-size
// quantities and the starting aggregates.
type CreateDetails struct {
	Sizes         []SizeCount     `json:"sizes"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

// UpdateDetails is the payload of an update record. Type distinguishes the
// two shapes: "quantity" carries per-size deltas, "price_update" carries the
// old and new value aggregates for a price-only edit.
type UpdateDetails struct {
	Type string `json:"type"`

	Changes []item.QuantityDelta `json:"changes,omitempty"`

	OldTotalValue     *decimal.Decimal `json:"oldTotalValue,omitempty"`
	NewTotalValue     *decimal.Decimal `json:"newTotalValue,omitempty"`
	OldRecommendedSum *decimal.Decimal `json:"oldRecommendedSum,omitempty"`
	NewRecommendedSum *decimal.Decimal `json:"newRecommendedSum,omitempty"`
}

// Update detail type values.
const (
	UpdateTypeQuantity    = "quantity"
	UpdateTypePriceUpdate = "price_update"
)

// DeleteDetails is the payload of a delete record: the final per-size
// quantities and aggregates at the moment of deletion.
type DeleteDetails struct {
	Sizes         []SizeCount     `json:"sizes"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

// SaleDetails is the payload of a single-unit sale. BoxIndex is the box the
// stock was taken from; it may be nil on records written before box tracking
// existed, and it may be stale if boxes were rearranged after the sale.
type SaleDetails struct {
	Type             string          `json:"type,omitempty"`
	Size             item.SizeKey    `json:"size"`
	Quantity         int             `json:"quantity"`
	CostPrice        decimal.Decimal `json:"costPrice"`
	SalePrice        decimal.Decimal `json:"salePrice"`
	PreviousQuantity int             `json:"previousQuantity"`
	Profit           decimal.Decimal `json:"profit"`
	BoxIndex         *int            `json:"boxIndex,omitempty"`
}

// WholesaleLine is one sold box inside a wholesale record.
type WholesaleLine struct {
	BoxIndex  int             `json:"boxIndex"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
	SalePrice decimal.Decimal `json:"salePrice"`
	Profit    decimal.Decimal `json:"profit"`
	Sizes     []SoldSize      `json:"sizes"`
}

// SoldSize is one size line inside a sold box.
type SoldSize struct {
	Size     item.SizeKey    `json:"size"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// WholesaleDetails is the payload of a whole-box sale.
type WholesaleDetails struct {
	Type          string          `json:"type,omitempty"`
	Boxes         []WholesaleLine `json:"boxes"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
}

// MarshalDetails serializes a typed payload for the details column.
func MarshalDetails(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return raw, nil
}

// detailsProbe is the minimal shape needed to classify a details payload
// without committing to a full decode.
type detailsProbe struct {
	Type string          `json:"type"`
	Sale json.RawMessage `json:"sale"`
}

// IsSaleRecord reports whether a record represents a sale that the reversal
// engine can undo. The action column is authoritative when present; older
// records encode the sale nature only inside details, either as a type tag
// or as an embedded sale payload.
func IsSaleRecord(t Transaction) bool {
	if t.Action == ActionSale || t.Action == ActionWholesale {
		return true
	}
	var probe detailsProbe
	if err := json.Unmarshal(t.Details, &probe); err != nil {
		return false
	}
	if probe.Type == "sale" || probe.Type == "wholesale" {
		return true
	}
	return len(probe.Sale) > 0 && string(probe.Sale) != "null"
}

// IsWholesaleRecord reports whether a record represents a whole-box sale.
func IsWholesaleRecord(t Transaction) bool {
	if t.Action == ActionWholesale {
		return true
	}
	var probe detailsProbe
	if err := json.Unmarshal(t.Details, &probe); err != nil {
		return false
	}
	return probe.Type == "wholesale"
}

// SaleOf decodes the sale payload of a record classified by IsSaleRecord.
// Records that embed the payload under a "sale" key are unwrapped.
func SaleOf(t Transaction) (SaleDetails, error) {
	var probe detailsProbe
	if err := json.Unmarshal(t.Details, &probe); err != nil {
		return SaleDetails{}, fmt.Errorf("decode sale details: %w", err)
	}
	raw := t.Details
	if len(probe.Sale) > 0 && string(probe.Sale) != "null" {
		raw = probe.Sale
	}
	var sale SaleDetails
	if err := json.Unmarshal(raw, &sale); err != nil {
		return SaleDetails{}, fmt.Errorf("decode sale details: %w", err)
	}
	return sale, nil
}

// WholesaleOf decodes the wholesale payload of a record.
func WholesaleOf(t Transaction) (WholesaleDetails, error) {
	var wd WholesaleDetails
	if err := json.Unmarshal(t.Details, &wd); err != nil {
		return WholesaleDetails{}, fmt.Errorf("decode wholesale details: %w", err)
	}
	return wd, nil
}
