package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS namespaces (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS entities (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	id        TEXT NOT NULL,
	doc       TEXT NOT NULL,
	UNIQUE (namespace, id)
);
`

// SQLite is an EntityPersister on a single SQLite file. Documents keep their
// insertion order through the autoincrement sequence; replacing a document
// keeps its row and therefore its position.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s := &SQLite{db: db, logger: logging.Component(logger, "persist-sqlite")}
	s.logger.Debug("sqlite persister opened", "path", path)
	return s, nil
}

func (s *SQLite) Read(ctx context.Context, key string) ([]model.Document, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM namespaces WHERE name = ?`, key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace %s: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM entities WHERE namespace = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc([]byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Write replaces the whole namespace inside one transaction.
func (s *SQLite) Write(ctx context.Context, key string, docs []model.Document) ([]model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO namespaces (name) VALUES (?)`, key); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE namespace = ?`, key); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if err := upsert(ctx, tx, key, doc); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}
	return model.CloneAll(docs), nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE namespace = ?`, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE name = ?`, key); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM namespaces ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) ReadEntity(ctx context.Context, key, id string) (model.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM entities WHERE namespace = ? AND id = ?`, key, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.Errorf(model.ErrNotFound, "entity %s not found in %s", id, key)
	}
	if err != nil {
		return nil, err
	}
	return decodeDoc([]byte(raw))
}

func (s *SQLite) WriteEntity(ctx context.Context, key string, doc model.Document) (model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO namespaces (name) VALUES (?)`, key); err != nil {
		return nil, err
	}
	if err := upsert(ctx, tx, key, doc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *SQLite) DeleteEntity(ctx context.Context, key, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE namespace = ? AND id = ?`, key, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func upsert(ctx context.Context, tx *sql.Tx, key string, doc model.Document) error {
	id, err := requireID(doc)
	if err != nil {
		return err
	}
	raw, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (namespace, id, doc) VALUES (?, ?, ?)
		ON CONFLICT (namespace, id) DO UPDATE SET doc = excluded.doc`, key, id, string(raw))
	if err != nil {
		return fmt.Errorf("failed to store entity %s: %w", id, err)
	}
	return nil
}
