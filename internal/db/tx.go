package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nshi/gtfs-rt/internal/schedule"
)

// Tx is one storage transaction. It implements schedule.Store.
type Tx struct {
	tx *sql.Tx
	db *DB
}

var _ schedule.Store = (*Tx)(nil)

// View runs fn in a transaction that is rolled back afterwards.
func (db *DB) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(&Tx{tx: tx, db: db})
}

// Update runs fn in a write transaction and commits it if fn succeeds.
// Writers are serialized by the write mutex.
func (db *DB) Update(ctx context.Context, fn func(*Tx) error) error {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx, db: db}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReadTx implements schedule.TxRunner.
func (db *DB) ReadTx(ctx context.Context, fn func(schedule.Store) error) error {
	return db.View(ctx, func(tx *Tx) error { return fn(tx) })
}

// WriteTx implements schedule.TxRunner.
func (db *DB) WriteTx(ctx context.Context, fn func(schedule.Store) error) error {
	return db.Update(ctx, func(tx *Tx) error { return fn(tx) })
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.db.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.db.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.db.rebind(query), args...)
}

func (t *Tx) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	return t.tx.PrepareContext(ctx, t.db.rebind(query))
}
