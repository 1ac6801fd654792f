// Package store provides the SQLite-backed persistence layer for the
// inventory ledger: a thin adapter exposing four retryable primitives, the
// retry policy that absorbs transient writer contention, and the schema
// lifecycle (idempotent bootstrap plus versioned migrations).
//
// # Single-writer model
//
// SQLite permits one in-flight statement sequence. The connection pool is
// pinned to a single connection and every caller is expected to already be
// serialized by the mutation queue; the busy_timeout pragma and the retry
// policy exist for the residual contention (checkpointing, external
// processes on the same file).
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// # Migrations
//
// Versioned via PRAGMA user_version. v1 is additive (qr_codes column). v2 is
// a structural rebuild folding the legacy flat sizes column into the nested
// box matrix; it is guarded by a process-wide busy flag so two concurrent
// startups cannot race the drop/recreate, and any failure rolls back and
// closes the connection so the next open retries from scratch.
package store
