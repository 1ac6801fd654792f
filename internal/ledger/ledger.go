// Package ledger implements the inventory ledger: item CRUD with audit
// records appended in the same transaction, the transaction log read paths,
// and the reversal engine that undoes a committed sale.
//
// Every public operation, reads included, runs through one FIFO mutation
// queue. The embedded store is single-writer; the queue guarantees a read
// never observes (or interleaves with) a half-applied multi-statement
// mutation. Any failed mutation rolls back and invalidates the cached store
// handle, forcing the next operation to re-open and re-validate from
// scratch.
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avelis/stockbook/internal/queue"
	"github.com/avelis/stockbook/internal/store"
)

// ArtifactRemover removes a file artifact associated with an item, e.g. its
// photo. Removal is best-effort and happens outside the delete transaction;
// failures are logged and swallowed.
type ArtifactRemover interface {
	Remove(path string) error
}

// Ledger is the single entry point for all store access.
type Ledger struct {
	store     *store.Manager
	queue     *queue.Queue
	log       *zap.Logger
	clock     func() time.Time
	artifacts ArtifactRemover
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source. Used by tests to place audit
// records at exact offsets around the correlation window.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithArtifactRemover wires the external filesystem collaborator that
// removes item images on deletion.
func WithArtifactRemover(r ArtifactRemover) Option {
	return func(l *Ledger) { l.artifacts = r }
}

// New creates a ledger over the given store manager.
func New(mgr *store.Manager, log *zap.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		store: mgr,
		queue: queue.New(),
		log:   log,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// now returns the current ledger timestamp in seconds.
func (l *Ledger) now() int64 {
	return l.clock().Unix()
}

// mutate runs fn as one atomic transaction on the queue. On any error the
// transaction is rolled back and the cached handle invalidated; the caller
// sees the original error, never a synthetic one.
func (l *Ledger) mutate(ctx context.Context, fn func(tx *store.Tx) error) error {
	_, err := queue.Do(l.queue, func() (struct{}, error) {
		db, err := l.store.Acquire(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if err := db.WithTx(ctx, fn); err != nil {
			l.store.Invalidate()
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// read runs fn on the queue without transaction or invalidation semantics.
func read[T any](l *Ledger, ctx context.Context, fn func(db *store.DB) (T, error)) (T, error) {
	return queue.Do(l.queue, func() (T, error) {
		db, err := l.store.Acquire(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(db)
	})
}
