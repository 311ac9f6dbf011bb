// Package session stores opaque session payloads in the mapping database.
// Writes insert first and fall back to an update when a concurrent writer
// created the row in between.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/idmap/internal/sqlstore"
)

// DefaultTable is the session table name.
const DefaultTable = "sessions"

// ErrInvalidID is returned for empty session ids.
var ErrInvalidID = errors.New("invalid session ID")

// Store reads and writes sessions.
type Store struct {
	db    *sqlstore.Store
	table string
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long a written session stays valid.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a session store on db.
func New(db *sqlstore.Store, opts ...Option) *Store {
	s := &Store{
		db:    db,
		table: DefaultTable,
		ttl:   24 * time.Minute,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID generates a session id (UUID v7).
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}

// Install creates the session table.
func (s *Store) Install(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
    "id" VARCHAR(128) NOT NULL PRIMARY KEY,
    "data" TEXT NOT NULL,
    "expires_at" %s NOT NULL
)`, s.table, s.db.Dialect().BigIntType()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q ("expires_at")`, "idx_"+s.table+"_expires_at", s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("installing %s: %w", s.table, err)
		}
	}
	return nil
}

// Read returns the payload of an unexpired session.
func (s *Store) Read(ctx context.Context, id string) ([]byte, bool, error) {
	if id == "" {
		return nil, false, ErrInvalidID
	}
	var data string
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT "data" FROM %q WHERE "id" = ? AND "expires_at" >= ?`, s.table),
		id, s.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading session %s: %w", id, err)
	}
	return []byte(data), true, nil
}

// Write stores data under id and extends its expiry.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	if id == "" {
		return ErrInvalidID
	}
	expires := s.now().Add(s.ttl).Unix()

	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %q ("id", "data", "expires_at") VALUES (?, ?, ?)`, s.table),
		id, string(data), expires)
	if err == nil {
		return nil
	}
	if !s.db.Dialect().IsUniqueViolation(err) {
		return fmt.Errorf("writing session %s: %w", id, err)
	}

	// The row exists, possibly created by a concurrent writer.
	if _, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE %q SET "data" = ?, "expires_at" = ? WHERE "id" = ?`, s.table),
		string(data), expires, id); err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	return nil
}

// Destroy removes a session. Removing a missing session is not an error.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %q WHERE "id" = ?`, s.table), id); err != nil {
		return fmt.Errorf("destroying session %s: %w", id, err)
	}
	return nil
}

// GC removes expired sessions and returns how many were removed.
func (s *Store) GC(ctx context.Context) (int64, error) {
	res, err := s.db.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE "expires_at" < ?`, s.table), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("collecting expired sessions: %w", err)
	}
	return res.RowsAffected()
}
