package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the single cached store handle. The ledger never holds a *DB
// across operations; it asks the manager inside each queued operation, so
// invalidation takes effect on the very next one.
//
// Invalidation is the system's only recovery mechanism for corrupted
// connection state: after an aborted multi-statement transaction the
// in-memory connection is not trusted, the handle is dropped, and the next
// Acquire re-opens and re-validates the schema from scratch. Coarse on
// purpose.
type Manager struct {
	path  string
	retry RetryPolicy
	log   *zap.Logger

	mu sync.Mutex
	db *DB
}

// NewManager creates a manager for the database at path. Nothing is opened
// until the first Acquire.
func NewManager(path string, retry RetryPolicy, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{path: path, retry: retry, log: log}
}

// Acquire returns the cached handle, opening and bootstrapping the database
// on first use or after an invalidation.
func (m *Manager) Acquire(ctx context.Context) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}

	db, err := Open(m.path, m.retry)
	if err != nil {
		m.log.Error("store open failed", zap.String("path", m.path), zap.Error(err))
		return nil, err
	}
	m.log.Info("store opened", zap.String("path", m.path))
	m.db = db
	return db, nil
}

// Invalidate closes and forgets the cached handle. Safe to call when no
// handle is open.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return
	}
	if err := m.db.Close(); err != nil {
		m.log.Warn("closing invalidated store handle", zap.Error(err))
	}
	m.db = nil
	m.log.Info("store handle invalidated")
}

// Close releases the cached handle at shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
