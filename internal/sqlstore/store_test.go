package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idmap/pkg/types"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	t.Run("sqlite creates data dir and file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "data")
		s, err := Open(context.Background(), types.Config{
			Backend: types.BackendSQLite,
			DataDir: dir,
			Restrictions: []types.RestrictionConfig{
				{Table: "map", Column: "tenant", Value: 3},
			},
		})
		require.NoError(t, err)
		defer s.Close()

		_, err = os.Stat(filepath.Join(dir, DatabaseFile))
		assert.NoError(t, err)
		assert.Equal(t, SQLite, s.Dialect())
		assert.Equal(t, []Restriction{{Table: "map", Column: "tenant", Value: 3}}, s.Restrictions().For("map"))
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := Open(context.Background(), types.Config{})
		assert.ErrorIs(t, err, types.ErrBackendEmpty)

		_, err = Open(context.Background(), types.Config{Backend: types.BackendPostgres})
		assert.ErrorIs(t, err, types.ErrDSNEmpty)
	})
}

func TestClose_Idempotent(t *testing.T) {
	s := openSQLite(t)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestStatementsAfterClose(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.Close())

	_, err := s.Exec(ctx, "CREATE TABLE t (id INTEGER)")
	assert.ErrorIs(t, err, types.ErrStoreClosed)

	_, err = s.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, types.ErrStoreClosed)

	var n int
	assert.ErrorIs(t, s.QueryRow(ctx, "SELECT 1").Scan(&n), types.ErrStoreClosed)

	err = s.InTx(ctx, func(Conn) error { return nil })
	assert.ErrorIs(t, err, types.ErrStoreClosed)
}

func TestInTx(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	_, err := s.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, s.QueryRow(ctx, "SELECT COUNT(*) FROM t").Scan(&n))
		return n
	}

	t.Run("commit", func(t *testing.T) {
		err := s.InTx(ctx, func(c Conn) error {
			for _, id := range []int{1, 2} {
				if _, err := c.Exec(ctx, "INSERT INTO t (id) VALUES (?)", id); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count())
	})

	t.Run("rollback on error", func(t *testing.T) {
		err := s.InTx(ctx, func(c Conn) error {
			if _, err := c.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 3); err != nil {
				return err
			}
			_, err := c.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 1)
			return err
		})
		require.Error(t, err)
		assert.True(t, s.Dialect().IsUniqueViolation(err))
		assert.Equal(t, 2, count())
	})
}

func TestSQLiteIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	_, err := s.Exec(ctx, "CREATE TABLE u (a INTEGER PRIMARY KEY, b TEXT UNIQUE, c TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = s.Exec(ctx, "INSERT INTO u (a, b, c) VALUES (1, 'x', 'y')")
	require.NoError(t, err)

	_, err = s.Exec(ctx, "INSERT INTO u (a, b, c) VALUES (1, 'z', 'y')")
	assert.True(t, SQLite.IsUniqueViolation(err), "primary key: %v", err)

	_, err = s.Exec(ctx, "INSERT INTO u (a, b, c) VALUES (2, 'x', 'y')")
	assert.True(t, SQLite.IsUniqueViolation(err), "unique: %v", err)

	_, err = s.Exec(ctx, "INSERT INTO u (a, b) VALUES (3, 'w')")
	require.Error(t, err)
	assert.False(t, SQLite.IsUniqueViolation(err), "not null is not a unique violation")
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

func TestPostgresStatementsAreRebound(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "m" SET "host_id" = $1 WHERE "id" = $2`).
		WithArgs(int64(5), "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	res, err := s.Exec(ctx, `UPDATE "m" SET "host_id" = ? WHERE "id" = ?`, int64(5), "a")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectQuery(`SELECT "host_id" FROM "m" WHERE "id" = $1`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"host_id"}).AddRow(5))
	var got int64
	require.NoError(t, s.QueryRow(ctx, `SELECT "host_id" FROM "m" WHERE "id" = ?`, "a").Scan(&got))
	assert.Equal(t, int64(5), got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInTxRollback(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "m" ("id") VALUES ($1)`).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "m" ("id") VALUES ($1)`).WithArgs("b").WillReturnError(boom)
	mock.ExpectRollback()

	err := s.InTx(ctx, func(c Conn) error {
		for _, id := range []string{"a", "b"} {
			if _, err := c.Exec(ctx, `INSERT INTO "m" ("id") VALUES (?)`, id); err != nil {
				return err
			}
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInTxCommit(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "m"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := s.InTx(ctx, func(c Conn) error {
		assert.Equal(t, Postgres, c.Dialect())
		_, err := c.Exec(ctx, `DELETE FROM "m"`)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
