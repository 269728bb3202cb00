// Package sqldb owns the SQL store handle shared by the repositories. It
// opens SQLite (modernc.org/sqlite) or PostgreSQL (pgx) behind sqlx, creates
// the schema, builds queries with goqu and runs transactions.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	_ "github.com/jackc/pgx/v5/stdlib"                  // database/sql driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/mkrupp/library/internal/infra/logging"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Config holds the store connection settings.
type Config struct {
	// Driver is "sqlite" or "pgx"
	Driver string `env:"DRIVER" default:"sqlite"`

	// DSN is a file path or "file:" URI for sqlite, a connection URL for pgx
	DSN string `env:"DSN" default:"var/storage/library.db"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" default:"5m"`

	// BusyTimeout bounds how long a sqlite connection waits for the write lock
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

// DB is the explicitly constructed store handle. It is safe for concurrent
// use and must be closed at shutdown.
type DB struct {
	x         *sqlx.DB
	dialect   goqu.DialectWrapper
	driver    string
	writeLock *sync.Mutex // modernc sqlite allows a single writer
	log       logging.Logger
}

// Querier is satisfied by *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Open connects to the store, verifies the connection and creates the schema.
func Open(ctx context.Context, cfg Config) (db *DB, err error) {
	log := logging.GetLogger("repo.sqldb").With(logging.Group("db", "driver", cfg.Driver))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "open db failed", "error", err)
		} else {
			log.DebugContext(ctx, "db opened")
		}
	}()

	var dialect string

	dsn := cfg.DSN

	switch cfg.Driver {
	case DriverSQLite:
		dialect = "sqlite3"

		if dsn, err = sqliteDSN(cfg); err != nil {
			return nil, err
		}
	case DriverPostgres:
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	x, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		maxOpen = 1 // every connection would see its own database
	}

	x.SetMaxOpenConns(maxOpen)
	x.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := x.PingContext(ctx); err != nil {
		_ = x.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	db = &DB{
		x:       x,
		dialect: goqu.Dialect(dialect),
		driver:  cfg.Driver,
		log:     log,
	}

	if cfg.Driver == DriverSQLite {
		db.writeLock = new(sync.Mutex)
	}

	if err := db.migrate(ctx); err != nil {
		_ = x.Close()

		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// sqliteDSN turns a plain path into a file: URI carrying the per-connection
// pragmas. foreign_keys must be enabled on every connection of the pool.
func sqliteDSN(cfg Config) (string, error) {
	dsn := cfg.DSN

	if !strings.HasPrefix(dsn, "file:") {
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return "", fmt.Errorf("mkdir all: %w", err)
			}
		}

		dsn = "file:" + dsn
	}

	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + params.Encode(), nil
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Conn returns the pooled connection handle for non-transactional statements.
func (db *DB) Conn() Querier {
	return db.x
}

// Ping verifies the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.x.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	return nil
}

// From starts a prepared SELECT on table.
func (db *DB) From(table any) *goqu.SelectDataset {
	return db.dialect.From(table).Prepared(true)
}

// Insert starts a prepared INSERT into table.
func (db *DB) Insert(table any) *goqu.InsertDataset {
	return db.dialect.Insert(table).Prepared(true)
}

// Update starts a prepared UPDATE of table.
func (db *DB) Update(table any) *goqu.UpdateDataset {
	return db.dialect.Update(table).Prepared(true)
}

// Delete starts a prepared DELETE from table.
func (db *DB) Delete(table any) *goqu.DeleteDataset {
	return db.dialect.Delete(table).Prepared(true)
}

// LockWrites serializes writers on sqlite. It is a no-op on PostgreSQL, where
// row locks of the conditional updates serialize competing writers.
func (db *DB) LockWrites() (unlock func()) {
	if db.writeLock == nil {
		return func() {}
	}

	db.writeLock.Lock()

	return db.writeLock.Unlock
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise; the connection is released on every
// path.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	unlock := db.LockWrites()
	defer unlock()

	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()

			panic(p)
		}

		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.log.ErrorContext(ctx, "rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	if err := db.x.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	db.log.Debug("db closed")

	return nil
}
