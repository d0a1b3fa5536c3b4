package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"
)

// Dialect captures the few statements that differ between SQL backends.
type Dialect struct {
	Name        string
	BlobType    string
	placeholder func(n int) string
}

var (
	Postgres = Dialect{Name: "postgres", BlobType: "BYTEA", placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
	SQLite   = Dialect{Name: "sqlite", BlobType: "BLOB", placeholder: func(int) string { return "?" }}
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL stores blobs as rows of a two-column table. Upserts are single
// statements, so they are atomic under both supported dialects.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	table   string
	ownsDB  bool
}

// NewSQL uses an existing connection pool and creates table if needed. The
// caller keeps ownership of db.
func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*SQL, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &SQL{db: db, dialect: dialect, table: table}
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, data %s NOT NULL)",
		table, dialect.BlobType,
	)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating table %q: %w", table, err)
	}
	return s, nil
}

// OpenSQLite opens (or creates) a SQLite database file and stores blobs in
// table. The returned store closes the database on Close.
func OpenSQLite(ctx context.Context, path, table string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	s, err := NewSQL(ctx, db, SQLite, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQL) p(n int) string { return s.dialect.placeholder(n) }

func (s *SQL) Put(ctx context.Context, name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	if data == nil {
		data = []byte{}
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (name, data) VALUES (%s, %s) ON CONFLICT (name) DO UPDATE SET data = excluded.data",
		s.table, s.p(1), s.p(2),
	)
	if _, err := s.db.ExecContext(ctx, query, name, data); err != nil {
		return fmt.Errorf("upserting %q: %w", name, err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE name = %s", s.table, s.p(1))
	var data []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting %q: %w", name, err)
	}
	return data, nil
}

func (s *SQL) List(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT name FROM %s WHERE substr(name, 1, %s) = %s ORDER BY name",
		s.table, s.p(1), s.p(2),
	)
	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQL) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = %s", s.table, s.p(1))
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	return nil
}

func (s *SQL) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
