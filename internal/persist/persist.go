// Package persist stores collections of documents for the offline
// repository. Every persister keeps whole collections under a string key;
// entity persisters additionally address single documents by _id.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/syntrixbase/kinsync/internal/config"
	"github.com/syntrixbase/kinsync/pkg/model"
)

// Persister stores arrays of documents by key.
type Persister interface {
	// Read returns the documents under key, or nil with no error when the key
	// has never been written.
	Read(ctx context.Context, key string) ([]model.Document, error)
	// Write replaces the documents under key and returns what was stored.
	Write(ctx context.Context, key string, docs []model.Document) ([]model.Document, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists the keys currently stored.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// EntityPersister also reads and writes single documents, so callers can
// avoid rewriting a whole collection for one change.
type EntityPersister interface {
	Persister
	// ReadEntity fails with model.ErrNotFound when id is not stored under key.
	ReadEntity(ctx context.Context, key, id string) (model.Document, error)
	// WriteEntity inserts or replaces doc by its _id, keeping the position of
	// a replaced document.
	WriteEntity(ctx context.Context, key string, doc model.Document) (model.Document, error)
	// DeleteEntity reports whether a document was removed.
	DeleteEntity(ctx context.Context, key, id string) (bool, error)
}

// Config configures the file-backed persisters.
type Config struct {
	// Dir holds the database files.
	Dir    string
	Logger *slog.Logger
}

// File names inside Config.Dir.
const (
	SQLiteFile = "kinsync.db"
	PebbleDir  = "kinsync.pebble"
)

// Open creates the persister of the given kind (config.StorageMemory,
// config.StorageSQLite or config.StoragePebble).
func Open(kind string, cfg Config) (Persister, error) {
	switch kind {
	case config.StorageMemory:
		return NewMemory(), nil
	case config.StorageSQLite:
		if err := ensureDir(cfg.Dir); err != nil {
			return nil, err
		}
		return OpenSQLite(filepath.Join(cfg.Dir, SQLiteFile), cfg.Logger)
	case config.StoragePebble:
		if err := ensureDir(cfg.Dir); err != nil {
			return nil, err
		}
		return OpenPebble(filepath.Join(cfg.Dir, PebbleDir), cfg.Logger)
	}
	return nil, model.Errorf(model.ErrMissingConfiguration, "unknown storage kind %q", kind)
}

func ensureDir(dir string) error {
	if dir == "" {
		return model.NewError(model.ErrMissingConfiguration, "storage path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

func encodeDoc(doc model.Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return b, nil
}

func decodeDoc(b []byte) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func requireID(doc model.Document) (string, error) {
	id := doc.ID()
	if id == "" {
		return "", model.NewError(model.ErrInvalidIdentifier, "entity has no _id")
	}
	return id, nil
}
