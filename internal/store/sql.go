package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// Supported database/sql driver names.
const (
	DriverPgx     = "pgx"
	DriverSQLite3 = "sqlite3"
)

// DefaultTable is the table records are stored in.
const DefaultTable = "card_records"

// SQLStore keeps records in a SQL table through database/sql. Postgres (pgx)
// and SQLite are supported.
type SQLStore struct {
	db     *sql.DB
	driver string
	table  string

	schemaMu    sync.Mutex
	schemaReady bool
}

// OpenSQL opens a database with the given driver and verifies the connection.
func OpenSQL(ctx context.Context, driver, dsn, table string) (*SQLStore, error) {
	if driver != DriverPgx && driver != DriverSQLite3 {
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	if driver == DriverSQLite3 {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(db, driver, table), nil
}

// NewSQLStore wraps an open database. An empty table name uses DefaultTable.
func NewSQLStore(db *sql.DB, driver, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}
	return &SQLStore{db: db, driver: driver, table: table}
}

func (s *SQLStore) quotedTable() string {
	return pq.QuoteIdentifier(s.table)
}

// bind rewrites ? placeholders into the driver's syntax.
func (s *SQLStore) bind(query string) string {
	if s.driver != DriverPgx {
		return query
	}
	var b strings.Builder
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

// ensureSchema creates the table on first use. A failed attempt is retried
// by the next call.
func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  document TEXT NOT NULL,
  default_includes TEXT NOT NULL DEFAULT '[]',
  version TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMP NOT NULL
)`, s.quotedTable()))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	s.schemaReady = true
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec      Record
		document string
		includes string
	)
	if err := row.Scan(&rec.ID, &document, &includes, &rec.Version, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(document), &rec.Document); err != nil {
		return nil, fmt.Errorf("decoding document of '%s': %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(includes), &rec.DefaultIncludes); err != nil {
		return nil, fmt.Errorf("decoding default includes of '%s': %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, s.bind(fmt.Sprintf(
		`SELECT id, document, default_includes, version, updated_at FROM %s WHERE id = ?`, s.quotedTable())), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, card.NotFound(id)
		}
		return nil, fmt.Errorf("loading card '%s': %w", id, err)
	}
	return rec, nil
}

func (s *SQLStore) Put(ctx context.Context, rec *Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	document, err := json.Marshal(rec.Document)
	if err != nil {
		return fmt.Errorf("encoding document of '%s': %w", rec.ID, err)
	}
	includes := rec.DefaultIncludes
	if includes == nil {
		includes = []string{}
	}
	encodedIncludes, err := json.Marshal(includes)
	if err != nil {
		return fmt.Errorf("encoding default includes of '%s': %w", rec.ID, err)
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, s.bind(fmt.Sprintf(`
INSERT INTO %s (id, document, default_includes, version, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id)
DO UPDATE SET document=EXCLUDED.document,
  default_includes=EXCLUDED.default_includes,
  version=EXCLUDED.version,
  updated_at=EXCLUDED.updated_at`, s.quotedTable())),
		rec.ID, string(document), string(encodedIncludes), rec.Version, updatedAt)
	if err != nil {
		return fmt.Errorf("storing card '%s': %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.bind(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.quotedTable())), id)
	if err != nil {
		return fmt.Errorf("deleting card '%s': %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting card '%s': %w", id, err)
	}
	if n == 0 {
		return card.NotFound(id)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, document, default_includes, version, updated_at FROM %s ORDER BY id`, s.quotedTable()))
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()

	out := make([]*Record, 0, 32)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
