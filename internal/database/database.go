// Package database opens the shared connection pool and hides the few
// places where MySQL, PostgreSQL and SQLite disagree.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrConnect           = errors.New("database connection failed")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Config describes how to reach the database.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// sqlOpen allows tests to override opening behavior.
var sqlOpen = sqlx.Open

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open creates the connection pool for cfg and verifies it with a ping.
// The returned handle is meant to be created once and passed to every
// repository that needs it.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case "mysql":
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid mysql dsn: %w", ErrConnect, err)
		}
		// DATETIME columns scan into time.Time only with parseTime.
		parsed.ParseTime = true
		dsn = parsed.FormatDSN()
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sqlOpen(cfg.Driver, dsn)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Driver).Msg("failed to open database")
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		log.Error().Err(err).Str("driver", cfg.Driver).Msg("failed to connect to database")
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	log.Debug().Str("driver", cfg.Driver).Msg("database connection established")
	return db, nil
}

// InsertID runs an INSERT written with ? placeholders and returns the id of
// the new row. PostgreSQL has no LastInsertId, so it gets RETURNING id.
func InsertID(ctx context.Context, db *sqlx.DB, query string, args ...any) (int64, error) {
	query = db.Rebind(query)
	if db.DriverName() == "postgres" {
		var id int64
		if err := db.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// IsDuplicateColumn reports whether err means ALTER TABLE ADD COLUMN hit an
// existing column.
func IsDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1060
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42701"
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
