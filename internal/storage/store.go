// Package storage is the user-scoped table store behind the HTTP API.
//
// One implementation serves both SQLite (modernc) and Postgres (pgx stdlib).
// Queries are written with ? placeholders and rebound for Postgres. Every
// read and write on user data filters by the owning user id.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"finsight/internal/core"
	"finsight/internal/log"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// tsLayout is fixed width so text timestamps sort correctly in SQLite.
const tsLayout = "2006-01-02T15:04:05.000000Z"

type Config struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
	now     func() time.Time
}

// Open connects, pings and migrates the configured database.
func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	var dialect Dialect
	var dsn string
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dialect = SQLite
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = sqliteDSN(cfg.SQLitePath)
	case "postgres", "pgx":
		dialect = Postgres
		dsn = cfg.DatabaseURL
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// modernc serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithComponent(log.ComponentStorage).Info("Database ready", "dialect", string(dialect))
	return &Store{db: db, dialect: dialect, logger: logger.WithComponent(log.ComponentStorage), now: time.Now}, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Dialect() Dialect { return s.dialect }

// rebind rewrites ? placeholders to $n for Postgres. Queries in this package
// never contain a literal question mark.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// timestamp returns the current time truncated to the stored precision,
// and its text form.
func (s *Store) timestamp() (time.Time, string) {
	t := s.now().UTC().Truncate(time.Microsecond)
	return t, t.Format(tsLayout)
}

// mustAffect maps a zero-row write to core.ErrNotFound.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// scanTime accepts the TEXT timestamps stored by SQLite and the time.Time
// values returned by pgx.
type scanTime struct{ t time.Time }

func (s *scanTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.t = time.Time{}
	case time.Time:
		s.t = x
	case string:
		return s.parse(x)
	case []byte:
		return s.parse(string(x))
	default:
		return fmt.Errorf("scan time: unsupported type %T", v)
	}
	return nil
}

func (s *scanTime) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("scan time %q: %w", v, err)
	}
	s.t = t
	return nil
}

// scanDate is the calendar-date counterpart of scanTime.
type scanDate struct {
	d     core.Date
	valid bool
}

func (s *scanDate) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.d, s.valid = core.Date{}, false
		return nil
	case time.Time:
		s.d, s.valid = core.DateOf(x), true
		return nil
	case string:
		return s.parse(x)
	case []byte:
		return s.parse(string(x))
	default:
		return fmt.Errorf("scan date: unsupported type %T", v)
	}
}

func (s *scanDate) parse(v string) error {
	d, err := core.ParseDate(v)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", v, err)
	}
	s.d, s.valid = d, true
	return nil
}

func (s *scanDate) ptr() *core.Date {
	if !s.valid {
		return nil
	}
	d := s.d
	return &d
}

func nullableDate(d *core.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}
