package item

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// SizeKey identifies a size slot inside a box. Sizes are dual-typed in the
// wire format: shoe sizes arrive as JSON numbers (42, 42.5) while apparel
// sizes arrive as strings ("M", "XL"). The distinction must survive a
// round-trip, so the key carries its original representation.
//
// SizeKey is comparable and safe to use as a map key.
type SizeKey struct {
	label   string
	numeric bool
}

// NumericSize builds a SizeKey from a numeric literal such as "42" or "42.5".
// Returns an error if the literal is not a valid number.
func NumericSize(literal string) (SizeKey, error) {
	if _, err := strconv.ParseFloat(literal, 64); err != nil {
		return SizeKey{}, fmt.Errorf("numeric size %q: %w", literal, err)
	}
	return SizeKey{label: literal, numeric: true}, nil
}

// TextSize builds a SizeKey from a textual label ("M", "XL", "38-40").
func TextSize(label string) SizeKey {
	return SizeKey{label: label}
}

// String returns the size label without type information.
func (k SizeKey) String() string { return k.label }

// IsNumeric reports whether the size was a JSON number on the wire.
func (k SizeKey) IsNumeric() bool { return k.numeric }

// Less orders sizes deterministically: numeric sizes first in numeric order,
// then textual sizes lexicographically.
func (k SizeKey) Less(other SizeKey) bool {
	if k.numeric != other.numeric {
		return k.numeric
	}
	if k.numeric {
		a, _ := strconv.ParseFloat(k.label, 64)
		b, _ := strconv.ParseFloat(other.label, 64)
		if a != b {
			return a < b
		}
		return k.label < other.label
	}
	return k.label < other.label
}

// MarshalJSON emits the original representation: a bare number for numeric
// sizes, a quoted string otherwise.
func (k SizeKey) MarshalJSON() ([]byte, error) {
	if k.numeric {
		return []byte(k.label), nil
	}
	return []byte(strconv.Quote(k.label)), nil
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (k *SizeKey) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty size key")
	}
	if data[0] == '"' {
		label, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("size key: %w", err)
		}
		*k = SizeKey{label: label}
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("size key %s: %w", data, err)
	}
	*k = SizeKey{label: string(data), numeric: true}
	return nil
}

// SizeEntry is one {size, quantity, price} tuple inside a box.
type SizeEntry struct {
	Size             SizeKey          `json:"size"`
	Quantity         int              `json:"quantity"`
	Price            decimal.Decimal  `json:"price"`
	RecommendedPrice *decimal.Decimal `json:"recommendedSellingPrice,omitempty"`
}

// Box is one physical container holding zero or more size entries.
type Box struct {
	Sizes []SizeEntry `json:"sizes"`
}

// Item is a stock-keeping unit. TotalQuantity and TotalValue are cached
// aggregates over Boxes; every mutator recomputes them via Totals so readers
// never have to. IsDeleted, NeedsSync, SyncedAt, RemoteID and Version are
// owned by the external sync engine and are preserved, never interpreted.
type Item struct {
	ID            int64
	RemoteID      string
	Version       int64
	Name          string
	Code          string
	Warehouse     string
	Row           int
	Position      int
	Side          string
	BoxCount      int
	Boxes         []Box
	QRCodes       []string
	ImagePath     string
	TotalQuantity int
	TotalValue    decimal.Decimal
	IsDeleted     bool
	NeedsSync     bool
	SyncedAt      *int64
}
