package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shiftboard/shiftauth"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqliteTimeLayout is fixed width so text comparison orders timestamps.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const sqliteDefaultPragmas = "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"

var (
	_ shiftauth.UserRepository   = (*Store)(nil)
	_ shiftauth.TokenRecordStore = (*Store)(nil)
)

// Store is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to dsn with the named driver and pings it.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	sqlDriver, dsn, err := driverDSN(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	return New(db, driver)
}

// New wraps an existing handle. driver selects the SQL dialect.
func New(db *sql.DB, driver string) (*Store, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	return &Store{db: db, dialect: dialect(driver)}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

func driverDSN(driver, dsn string) (string, string, error) {
	switch driver {
	case DriverPostgres:
		return "pgx", dsn, nil
	case DriverSQLite:
		if strings.Contains(dsn, "_pragma=") {
			return "sqlite", dsn, nil
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return "sqlite", dsn + sep + sqliteDefaultPragmas, nil
	default:
		return "", "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

/*
====================================
DIALECT
====================================
*/

type dialect string

// q rewrites ? placeholders to $n for PostgreSQL.
func (d dialect) q(query string) string {
	if d != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) ts(t time.Time) any {
	t = t.UTC().Truncate(time.Microsecond)
	if d == DriverSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

func (d dialect) tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.ts(*t)
}

// dbTime scans timestamps from either dialect.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (n *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = x.UTC(), true
		return nil
	case string:
		return n.parse(x)
	case []byte:
		return n.parse(string(x))
	default:
		return fmt.Errorf("sqlstore: cannot scan %T into timestamp", v)
	}
}

func (n *dbTime) parse(s string) error {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("sqlstore: bad timestamp %q: %w", s, err)
		}
	}
	n.Time, n.Valid = t.UTC(), true
	return nil
}

func (n dbTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
