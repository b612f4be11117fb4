package sqldb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

// ErrNestedTx is returned when Tx is called on a transaction-scoped store.
var ErrNestedTx = errors.New("sqldb: nested transactions are not supported")

// Store hands out repositories bound to the pool. Drivers embed it and add
// ApplyMigrations.
type Store struct {
	db *sql.DB
	d  Dialect
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d}
}

// DB exposes the pool for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.d }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) conn() conn { return conn{q: s.db, d: s.d} }

func (s *Store) Users() store.Users                             { return &usersRepo{c: s.conn()} }
func (s *Store) Roles() store.Roles                             { return &rolesRepo{c: s.conn()} }
func (s *Store) UserRoles() store.UserRoles                     { return &userRolesRepo{c: s.conn()} }
func (s *Store) PermissionOverrides() store.PermissionOverrides { return &overridesRepo{c: s.conn()} }
func (s *Store) UserTokens() store.UserTokens                   { return &userTokensRepo{c: s.conn()} }

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, d: s.d}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// safe to call even after commit
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

type txStore struct {
	tx *sql.Tx
	d  Dialect
}

func (t *txStore) conn() conn { return conn{q: t.tx, d: t.d} }

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer Store owns the pool.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

// ApplyMigrations is a no-op; migrations run on the pool at start-up.
func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, ErrNestedTx }

// WithTx on a transaction joins it. The outermost caller commits.
func (t *txStore) WithTx(_ context.Context, fn func(tx store.Tx) error) error {
	return fn(t)
}

func (t *txStore) Users() store.Users                             { return &usersRepo{c: t.conn()} }
func (t *txStore) Roles() store.Roles                             { return &rolesRepo{c: t.conn()} }
func (t *txStore) UserRoles() store.UserRoles                     { return &userRolesRepo{c: t.conn()} }
func (t *txStore) PermissionOverrides() store.PermissionOverrides { return &overridesRepo{c: t.conn()} }
func (t *txStore) UserTokens() store.UserTokens                   { return &userTokensRepo{c: t.conn()} }
