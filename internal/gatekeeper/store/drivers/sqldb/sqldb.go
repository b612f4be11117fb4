// Package sqldb implements the store repositories on database/sql. The
// sqlite and postgres drivers wrap it with their own connection setup,
// placeholder style, error mapping and migrations.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string

	// Rebind rewrites "?" placeholders into the engine's native form.
	Rebind func(query string) string

	// MapError turns engine specific errors into store sentinels. It is
	// only called with non-nil errors.
	MapError func(err error) error
}

// RebindDollar rewrites "?" placeholders as $1, $2, ... for postgres.
// Queries in this package never contain a literal question mark.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a querier (db or tx) to a dialect.
type conn struct {
	q querier
	d Dialect
}

func (c conn) rebind(query string) string {
	if c.d.Rebind == nil {
		return query
	}
	return c.d.Rebind(query)
}

func (c conn) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if c.d.MapError != nil {
		return c.d.MapError(err)
	}
	return err
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.rebind(query), args...)
	return res, c.mapErr(err)
}

// execAffected runs query and returns ErrNotFound when no row changed.
func (c conn) execAffected(ctx context.Context, query string, args ...any) error {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.rebind(query), args...)
	return rows, c.mapErr(err)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// exists reports whether query returns at least one row.
func (c conn) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := c.queryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, c.mapErr(err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// utc normalises times before they reach the database so stored values
// compare consistently across drivers.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(*t), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// page converts a ListQuery into LIMIT/OFFSET arguments.
func page(q store.ListQuery) (limit, offset int) {
	limit = q.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return limit, max(q.Offset, 0)
}

func likePattern(filter string) string {
	return "%" + strings.ToLower(strings.TrimSpace(filter)) + "%"
}
