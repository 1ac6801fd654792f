// Package seed implements bulk item import. Seed files are YAML documents
// validated against an embedded CUE schema before any write happens; a valid
// file replaces the whole item table through the ledger, so every imported
// item gets its create record.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/avelis/stockbook/internal/item"
	"github.com/avelis/stockbook/internal/ledger"
)

//go:embed schema.cue
var schemaCUE string

// Entry is one item in a seed file.
type Entry struct {
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Warehouse string     `json:"warehouse"`
	Row       int        `json:"row"`
	Position  int        `json:"position"`
	Side      string     `json:"side"`
	Boxes     []item.Box `json:"boxes"`
}

// File is a parsed, validated seed document.
type File struct {
	Items []Entry `json:"items"`
}

// Parse validates a YAML seed document against the schema and decodes it.
func Parse(raw []byte) (File, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return File{}, fmt.Errorf("compile seed schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Seed"))
	if err := def.Err(); err != nil {
		return File{}, fmt.Errorf("resolve seed schema: %w", err)
	}

	expr, err := cueyaml.Extract("seed.yaml", raw)
	if err != nil {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	doc := ctx.BuildFile(expr)
	if err := doc.Err(); err != nil {
		return File{}, fmt.Errorf("build seed document: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return File{}, fmt.Errorf("invalid seed file: %w", err)
	}

	// Route through JSON so the size keys keep their number-vs-string kind.
	concrete, err := unified.MarshalJSON()
	if err != nil {
		return File{}, fmt.Errorf("encode seed document: %w", err)
	}
	var f File
	if err := json.Unmarshal(concrete, &f); err != nil {
		return File{}, fmt.Errorf("decode seed document: %w", err)
	}
	return f, nil
}

// ParseFile reads and parses a seed file from disk.
func ParseFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

// Import replaces the item table with the seed file's contents. Existing
// items are wiped first; each entry is created through the ledger so the
// transaction log documents the import. Returns the number of items created.
func Import(ctx context.Context, l *ledger.Ledger, f File) (int, error) {
	if err := l.ClearItems(ctx); err != nil {
		return 0, fmt.Errorf("clear items: %w", err)
	}
	for i, e := range f.Items {
		_, err := l.CreateItem(ctx, item.Item{
			Name:      e.Name,
			Code:      e.Code,
			Warehouse: e.Warehouse,
			Row:       e.Row,
			Position:  e.Position,
			Side:      e.Side,
			Boxes:     e.Boxes,
		})
		if err != nil {
			return i, fmt.Errorf("create item %q: %w", e.Name, err)
		}
	}
	return len(f.Items), nil
}
