package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/avelis/stockbook/internal/item"
)

// Schema version tracking:
// 0 - initial schema (pre-migration)
// 1 - added items.qr_codes column
// 2 - folded the legacy flat items.sizes column into the nested boxes matrix
const currentSchemaVersion = 2

// rebuildInProgress guards the v2 table rebuild against two near-simultaneous
// startups racing to rebuild the same table. The second caller skips; the
// first owns the rebuild.
var rebuildInProgress atomic.Bool

// MigrationError marks a failed schema migration. Fatal for the startup
// attempt that hit it; the connection is closed and the next open retries
// the migration from scratch.
type MigrationError struct {
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration %s: %v", e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// IsMigrationFailure reports whether err is a schema migration failure.
func IsMigrationFailure(err error) bool {
	var me *MigrationError
	return errors.As(err, &me)
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent: safe to call on every open.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return &MigrationError{Step: "apply schema", Err: err}
	}
	return runMigrations(db)
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return &MigrationError{Step: "read user_version", Err: err}
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		applied, err := migrateToV2(db)
		if err != nil {
			return err
		}
		if !applied {
			// A concurrent startup owns the rebuild. Stamp only v1 so the
			// next open runs the fold again instead of trusting a version
			// the rebuild may never reach.
			if _, err := db.Exec("PRAGMA user_version = 1"); err != nil {
				return &MigrationError{Step: "set user_version", Err: err}
			}
			return nil
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return &MigrationError{Step: "set user_version", Err: err}
	}
	return nil
}

// migrateToV1 adds the qr_codes column to databases created before v1.
// Checked against table_info first: ADD COLUMN has no IF NOT EXISTS.
func migrateToV1(db *sql.DB) error {
	has, err := hasColumn(db, "items", "qr_codes")
	if err != nil {
		return &MigrationError{Step: "v1 inspect items", Err: err}
	}
	if has {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE items ADD COLUMN qr_codes TEXT NOT NULL DEFAULT '[]'`); err != nil {
		return &MigrationError{Step: "v1 add qr_codes", Err: err}
	}
	return nil
}

// legacyItemRow is one row of the pre-v2 items table, which stored a single
// flat list of size entries instead of the nested box matrix.
type legacyItemRow struct {
	id            int64
	remoteID      string
	version       int64
	name          string
	code          string
	warehouse     string
	row           int
	position      int
	side          string
	boxCount      int
	sizes         string
	qrCodes       string
	imagePath     string
	totalQuantity int
	totalValue    string
	isDeleted     bool
	needsSync     bool
	syncedAt      sql.NullInt64
}

// migrateToV2 rebuilds the items table, folding the legacy flat sizes column
// into a single-box matrix. The rebuild is the one non-idempotent hazard in
// the lifecycle: it drops and recreates the table, so it runs inside one
// transaction and under the process-wide busy flag. The bool reports whether
// the schema is known to be at v2 when the call returns; a busy-flag skip
// returns false so the caller leaves user_version behind and the next open
// retries the fold.
func migrateToV2(db *sql.DB) (bool, error) {
	hasSizes, err := hasColumn(db, "items", "sizes")
	if err != nil {
		return false, &MigrationError{Step: "v2 inspect items", Err: err}
	}
	hasBoxes, err := hasColumn(db, "items", "boxes")
	if err != nil {
		return false, &MigrationError{Step: "v2 inspect items", Err: err}
	}
	if !hasSizes || hasBoxes {
		return true, nil
	}

	if !rebuildInProgress.CompareAndSwap(false, true) {
		// Another startup owns the rebuild. Skip; do not retry blindly.
		return false, nil
	}
	defer rebuildInProgress.Store(false)

	tx, err := db.Begin()
	if err != nil {
		return false, &MigrationError{Step: "v2 begin", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE items_new (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id      TEXT NOT NULL DEFAULT '',
			version        INTEGER NOT NULL DEFAULT 1,
			name           TEXT NOT NULL,
			code           TEXT NOT NULL DEFAULT '',
			warehouse      TEXT NOT NULL DEFAULT '',
			shelf_row      INTEGER NOT NULL DEFAULT 0,
			shelf_position INTEGER NOT NULL DEFAULT 0,
			shelf_side     TEXT NOT NULL DEFAULT '',
			box_count      INTEGER NOT NULL DEFAULT 0,
			boxes          TEXT NOT NULL DEFAULT '[]',
			qr_codes       TEXT NOT NULL DEFAULT '[]',
			image_path     TEXT NOT NULL DEFAULT '',
			total_quantity INTEGER NOT NULL DEFAULT 0,
			total_value    TEXT NOT NULL DEFAULT '0',
			is_deleted     INTEGER NOT NULL DEFAULT 0,
			needs_sync     INTEGER NOT NULL DEFAULT 0,
			synced_at      INTEGER
		)
	`); err != nil {
		return false, &MigrationError{Step: "v2 create items_new", Err: err}
	}

	legacy, err := readLegacyItems(tx)
	if err != nil {
		return false, err
	}

	for _, row := range legacy {
		boxes, err := foldLegacySizes(row.sizes)
		if err != nil {
			return false, &MigrationError{Step: fmt.Sprintf("v2 fold item %d", row.id), Err: err}
		}
		if _, err := tx.Exec(`
			INSERT INTO items_new
			(id, remote_id, version, name, code, warehouse, shelf_row, shelf_position, shelf_side,
			 box_count, boxes, qr_codes, image_path, total_quantity, total_value,
			 is_deleted, needs_sync, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			row.id, row.remoteID, row.version, row.name, row.code, row.warehouse,
			row.row, row.position, row.side, row.boxCount, boxes, row.qrCodes,
			row.imagePath, row.totalQuantity, row.totalValue,
			row.isDeleted, row.needsSync, row.syncedAt,
		); err != nil {
			return false, &MigrationError{Step: fmt.Sprintf("v2 copy item %d", row.id), Err: err}
		}
	}

	if _, err := tx.Exec(`DROP TABLE items`); err != nil {
		return false, &MigrationError{Step: "v2 drop items", Err: err}
	}
	if _, err := tx.Exec(`ALTER TABLE items_new RENAME TO items`); err != nil {
		return false, &MigrationError{Step: "v2 rename items_new", Err: err}
	}
	// Indexes were dropped with the old table.
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_items_name ON items(name)`); err != nil {
		return false, &MigrationError{Step: "v2 recreate idx_items_name", Err: err}
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_items_warehouse ON items(warehouse)`); err != nil {
		return false, &MigrationError{Step: "v2 recreate idx_items_warehouse", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return false, &MigrationError{Step: "v2 commit", Err: err}
	}
	return true, nil
}

// readLegacyItems materializes the whole legacy table before any insert runs.
// The pool is pinned to one connection, so the cursor must be drained first.
func readLegacyItems(tx *sql.Tx) ([]legacyItemRow, error) {
	rows, err := tx.Query(`
		SELECT id, remote_id, version, name, code, warehouse, shelf_row, shelf_position,
		       shelf_side, box_count, sizes, qr_codes, image_path, total_quantity,
		       total_value, is_deleted, needs_sync, synced_at
		FROM items
	`)
	if err != nil {
		return nil, &MigrationError{Step: "v2 read legacy items", Err: err}
	}
	defer rows.Close()

	var legacy []legacyItemRow
	for rows.Next() {
		var r legacyItemRow
		if err := rows.Scan(
			&r.id, &r.remoteID, &r.version, &r.name, &r.code, &r.warehouse,
			&r.row, &r.position, &r.side, &r.boxCount, &r.sizes, &r.qrCodes,
			&r.imagePath, &r.totalQuantity, &r.totalValue,
			&r.isDeleted, &r.needsSync, &r.syncedAt,
		); err != nil {
			return nil, &MigrationError{Step: "v2 scan legacy item", Err: err}
		}
		legacy = append(legacy, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &MigrationError{Step: "v2 iterate legacy items", Err: err}
	}
	return legacy, nil
}

// foldLegacySizes wraps a flat size-entry list into a one-box matrix.
func foldLegacySizes(sizes string) (string, error) {
	if sizes == "" || sizes == "[]" || sizes == "null" {
		return "[]", nil
	}
	var entries []item.SizeEntry
	if err := json.Unmarshal([]byte(sizes), &entries); err != nil {
		return "", err
	}
	return item.EncodeBoxes([]item.Box{{Sizes: entries}})
}

// hasColumn checks table_info for a column's presence.
func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
