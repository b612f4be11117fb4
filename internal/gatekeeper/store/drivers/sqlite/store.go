package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqldb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the embedded SQLite backend.
type Store struct {
	*sqldb.Store
}

// NewStore opens the database at path. ":memory:" gives a private
// in-memory database, which is what the tests use.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}

	// SQLite serialises writers anyway. One connection also keeps an
	// in-memory database alive and shared for the life of the pool.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	return &Store{Store: sqldb.New(db, Dialect)}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// Dialect is the sqldb dialect for SQLite.
var Dialect = sqldb.Dialect{
	Name:     "sqlite",
	MapError: mapError,
}

func mapError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", store.ErrAlreadyExists, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	default:
		return err
	}
}

var _ store.Store = (*Store)(nil)
