// Package sqlstore is the SQLite catalog: it maps expression IDs to matrix
// files and records issued download tickets.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/hupe1980/rnaget/internal/ticket"
	"github.com/hupe1980/rnaget/model"
)

// ErrNotFound is returned for unknown expression IDs. It matches fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("sqlstore: %w", fs.ErrNotExist)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS expressions (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	study TEXT NOT NULL DEFAULT '',
	units TEXT NOT NULL DEFAULT 'unspecified',
	created INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	source TEXT NOT NULL,
	format TEXT NOT NULL,
	content_type TEXT NOT NULL,
	payload_key TEXT NOT NULL,
	size INTEGER NOT NULL,
	raw_size INTEGER NOT NULL,
	compression TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS tickets_source ON tickets(source);
`

// Expression is one catalog entry.
type Expression struct {
	ID      string
	Path    string
	Study   string
	Units   model.Units
	Created time.Time
}

// Store is a SQLite-backed catalog and ticket ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "rnaget.db"
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterExpression inserts or replaces a catalog entry.
func (s *Store) RegisterExpression(ctx context.Context, e Expression) error {
	if e.ID == "" || e.Path == "" {
		return fmt.Errorf("register expression: id and path are required")
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO expressions (id, path, study, units, created)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET path = excluded.path, study = excluded.study,
			units = excluded.units, created = excluded.created`,
		e.ID, e.Path, e.Study, e.Units.String(), e.Created.UnixNano())
	if err != nil {
		return fmt.Errorf("register expression %s: %w", e.ID, err)
	}
	return nil
}

// ResolveExpression returns the matrix path of expression id.
func (s *Store) ResolveExpression(ctx context.Context, id string) (string, error) {
	e, err := s.Expression(ctx, id)
	if err != nil {
		return "", err
	}
	return e.Path, nil
}

// Expression returns the catalog entry of id.
func (s *Store) Expression(ctx context.Context, id string) (Expression, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, path, study, units, created FROM expressions WHERE id = ?`, id)
	e, err := scanExpression(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Expression{}, fmt.Errorf("%w: expression %s", ErrNotFound, id)
	}
	return e, err
}

// Expressions lists the catalog ordered by ID.
func (s *Store) Expressions(ctx context.Context) ([]Expression, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, study, units, created FROM expressions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select expressions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Expression
	for rows.Next() {
		e, err := scanExpression(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExpressionsByPath returns the IDs registered for a matrix path.
func (s *Store) ExpressionsByPath(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM expressions WHERE path = ? ORDER BY id`, path)
	if err != nil {
		return nil, fmt.Errorf("select expressions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpression removes a catalog entry.
func (s *Store) DeleteExpression(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM expressions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expression %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpression(sc scanner) (Expression, error) {
	var (
		e       Expression
		units   string
		created int64
	)
	if err := sc.Scan(&e.ID, &e.Path, &e.Study, &units, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Expression{}, err
		}
		return Expression{}, fmt.Errorf("scan: %w", err)
	}
	u, err := model.ParseUnits(units)
	if err != nil {
		return Expression{}, fmt.Errorf("expression %s: %w", e.ID, err)
	}
	e.Units = u
	e.Created = time.Unix(0, created).UTC()
	return e, nil
}

// Save records a Ready artifact.
func (s *Store) Save(ctx context.Context, a ticket.Artifact) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO tickets
		(id, fingerprint, source, format, content_type, payload_key, size, raw_size, compression, state, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TicketID, a.Fingerprint, a.Source, string(a.Format), a.ContentType, a.PayloadKey,
		a.Size, a.RawSize, a.Compression, a.State.String(), a.CreatedAt.UnixNano(), a.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save ticket %s: %w", a.TicketID, err)
	}
	return nil
}

// Delete removes a ticket record.
func (s *Store) Delete(ctx context.Context, ticketID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, ticketID); err != nil {
		return fmt.Errorf("delete ticket %s: %w", ticketID, err)
	}
	return nil
}

// Load returns every recorded ticket ordered by creation time.
func (s *Store) Load(ctx context.Context) ([]ticket.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fingerprint, source, format, content_type, payload_key,
		size, raw_size, compression, state, created_at, expires_at FROM tickets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ticket.Artifact
	for rows.Next() {
		var (
			a                ticket.Artifact
			format, state    string
			created, expires int64
		)
		if err := rows.Scan(&a.TicketID, &a.Fingerprint, &a.Source, &format, &a.ContentType, &a.PayloadKey,
			&a.Size, &a.RawSize, &a.Compression, &state, &created, &expires); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if a.State, err = ticket.ParseState(state); err != nil {
			return nil, err
		}
		a.Format = model.Format(format)
		a.CreatedAt = time.Unix(0, created).UTC()
		a.ExpiresAt = time.Unix(0, expires).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ ticket.Ledger = (*Store)(nil)
