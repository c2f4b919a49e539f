package journal

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/dashlink/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the journal. ":memory:" gives a private in-memory journal.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "open sqlite database").
			WithContext("path", dbPath).
			Build()
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "initialize journal schema").Build()
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS journal (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		at INTEGER NOT NULL,
		payload BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_kind ON journal(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO journal (id, kind, at, payload) VALUES (?, ?, ?, ?)",
		e.ID, string(e.Kind), e.At.UnixMilli(), []byte(e.Payload),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryJournal, "insert journal entry").
			WithContext("kind", string(e.Kind)).
			Build()
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, kind events.Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, kind, at, payload FROM journal ORDER BY id DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT id, kind, at, payload FROM journal WHERE kind = ? ORDER BY id DESC LIMIT ?", string(kind), limit)
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "query journal").Build()
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			k     string
			atMS  int64
			bytes []byte
		)
		if err := rows.Scan(&e.ID, &k, &atMS, &bytes); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "scan journal entry").Build()
		}
		e.Kind = events.Kind(k)
		e.At = time.UnixMilli(atMS).UTC()
		e.Payload = bytes
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryJournal, "iterate journal").Build()
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
