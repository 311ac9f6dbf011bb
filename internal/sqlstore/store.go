// Package sqlstore wraps a database/sql handle as the SQL executor used by
// mapping tables: dialect-aware placeholder rebinding, table restrictions,
// and single-transaction bulk work.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

// DatabaseFile is the SQLite file created inside Config.DataDir.
const DatabaseFile = "idmap.db"

// Conn executes statements written with ? placeholders. *Store and the
// handle passed to InTx callbacks implement it.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Dialect() Dialect
}

// Row is the result of QueryRow. Scan reports any error that prevented the
// query from running.
type Row struct {
	row *sql.Row
	err error
}

// Scan copies the row's columns into dest, or returns sql.ErrNoRows.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

// Compile-time interface checks.
var (
	_ Conn = (*Store)(nil)
	_ Conn = (*txConn)(nil)
)

// Store is the shared connection to the backing database.
type Store struct {
	mu           sync.RWMutex
	db           *sql.DB
	dialect      Dialect
	restrictions *Restrictions
	logger       *slog.Logger
	closed       bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for statement tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRestrictions replaces the store's restriction set.
func WithRestrictions(r *Restrictions) Option {
	return func(s *Store) {
		if r != nil {
			s.restrictions = r
		}
	}
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:           db,
		dialect:      dialect,
		restrictions: NewRestrictions(),
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the backend described by cfg and verifies the connection,
// retrying the ping cfg.ConnectRetries times with exponential backoff.
// Restrictions listed in cfg are installed on the returned store.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := DialectFor(cfg.Backend)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if cfg.Backend == types.BackendSQLite {
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, DatabaseFile)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Backend, err)
	}

	s := New(db, dialect, opts...)
	if err := s.ping(ctx, cfg.ConnectRetries); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Backend, err)
	}
	for _, rc := range cfg.Restrictions {
		s.restrictions.Set(rc.Table, rc.Column, rc.Value)
	}
	return s, nil
}

func (s *Store) ping(ctx context.Context, retries int) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.db.PingContext(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "ping failed", "backend", s.dialect.Name(), "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx))
}

// Close releases the database handle. Close is idempotent. Statements run
// after Close fail with types.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// conn returns the handle, or types.ErrStoreClosed after Close.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.ErrStoreClosed
	}
	return s.db, nil
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Restrictions returns the store's table restrictions.
func (s *Store) Restrictions() *Restrictions { return s.restrictions }

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = s.dialect.Rebind(query)
	s.logger.DebugContext(ctx, "exec", "query", query, "args", len(args))
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = s.dialect.Rebind(query)
	s.logger.DebugContext(ctx, "query", "query", query, "args", len(args))
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *Row {
	query = s.dialect.Rebind(query)
	s.logger.DebugContext(ctx, "query row", "query", query, "args", len(args))
	db, err := s.conn()
	if err != nil {
		return &Row{err: err}
	}
	return &Row{row: db.QueryRowContext(ctx, query, args...)}
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(Conn) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txConn{tx: tx, store: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type txConn struct {
	tx    *sql.Tx
	store *Store
}

func (c *txConn) Dialect() Dialect { return c.store.dialect }

func (c *txConn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = c.store.dialect.Rebind(query)
	c.store.logger.DebugContext(ctx, "tx exec", "query", query, "args", len(args))
	return c.tx.ExecContext(ctx, query, args...)
}

func (c *txConn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = c.store.dialect.Rebind(query)
	c.store.logger.DebugContext(ctx, "tx query", "query", query, "args", len(args))
	return c.tx.QueryContext(ctx, query, args...)
}

func (c *txConn) QueryRow(ctx context.Context, query string, args ...any) *Row {
	query = c.store.dialect.Rebind(query)
	c.store.logger.DebugContext(ctx, "tx query row", "query", query, "args", len(args))
	return &Row{row: c.tx.QueryRowContext(ctx, query, args...)}
}
