package persist

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/pkg/model"
)

// Key layout, with \x00 separating the namespace from the rest:
//
//	n\x00{ns}            -> next sequence number (uint64, big endian)
//	e\x00{ns}\x00{seq}   -> document JSON
//	i\x00{ns}\x00{id}    -> seq of the document with that _id
//
// Iterating the e-prefix of a namespace yields documents in insertion order.
const (
	prefixNamespace = 'n'
	prefixEntity    = 'e'
	prefixIndex     = 'i'
)

// Pebble is an EntityPersister on a Pebble key-value store.
type Pebble struct {
	db     DB
	mu     sync.Mutex // serializes writers; sequence allocation is read-modify-write
	logger *slog.Logger
}

func OpenPebble(path string, logger *slog.Logger) (*Pebble, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}
	p := newPebble(&pebbleDB{db: db}, logger)
	p.logger.Debug("pebble persister opened", "path", path)
	return p, nil
}

func newPebble(db DB, logger *slog.Logger) *Pebble {
	return &Pebble{db: db, logger: logging.Component(logger, "persist-pebble")}
}

func namespaceKey(ns string) []byte {
	return append([]byte{prefixNamespace, 0}, ns...)
}

func entityPrefix(ns string) []byte {
	k := append([]byte{prefixEntity, 0}, ns...)
	return append(k, 0)
}

func entityKey(ns string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(entityPrefix(ns), seq)
}

func indexPrefix(ns string) []byte {
	k := append([]byte{prefixIndex, 0}, ns...)
	return append(k, 0)
}

func indexKey(ns, id string) []byte {
	return append(indexPrefix(ns), id...)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (p *Pebble) get(key []byte) ([]byte, bool, error) {
	v, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (p *Pebble) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *Pebble) Read(ctx context.Context, key string) ([]model.Document, error) {
	if _, ok, err := p.get(namespaceKey(key)); err != nil || !ok {
		return nil, err
	}
	docs := []model.Document{}
	err := p.scan(entityPrefix(key), func(_, value []byte) error {
		doc, err := decodeDoc(value)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return docs, nil
}

// Write replaces the namespace in a single batch.
func (p *Pebble) Write(ctx context.Context, key string, docs []model.Document) ([]model.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.db.NewBatch()
	defer batch.Close()

	if err := p.clearInto(batch, key); err != nil {
		return nil, err
	}

	var seq uint64
	seen := make(map[string]uint64, len(docs))
	for _, doc := range docs {
		id, err := requireID(doc)
		if err != nil {
			return nil, err
		}
		raw, err := encodeDoc(doc)
		if err != nil {
			return nil, err
		}
		s, dup := seen[id]
		if !dup {
			s = seq
			seq++
			seen[id] = s
		}
		if err := batch.Set(entityKey(key, s), raw, nil); err != nil {
			return nil, err
		}
		if err := batch.Set(indexKey(key, id), binary.BigEndian.AppendUint64(nil, s), nil); err != nil {
			return nil, err
		}
	}
	if err := batch.Set(namespaceKey(key), binary.BigEndian.AppendUint64(nil, seq), nil); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}
	return model.CloneAll(docs), nil
}

func (p *Pebble) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := p.clearInto(batch, key); err != nil {
		return err
	}
	if err := batch.Delete(namespaceKey(key), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (p *Pebble) clearInto(batch Batch, key string) error {
	for _, prefix := range [][]byte{entityPrefix(key), indexPrefix(key)} {
		err := p.scan(prefix, func(k, _ []byte) error {
			return batch.Delete(k, nil)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pebble) Keys(context.Context) ([]string, error) {
	var keys []string
	prefix := []byte{prefixNamespace, 0}
	err := p.scan(prefix, func(k, _ []byte) error {
		keys = append(keys, string(k[len(prefix):]))
		return nil
	})
	return keys, err
}

func (p *Pebble) ReadEntity(_ context.Context, key, id string) (model.Document, error) {
	seq, ok, err := p.get(indexKey(key, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "entity %s not found in %s", id, key)
	}
	raw, ok, err := p.get(entityKey(key, binary.BigEndian.Uint64(seq)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "entity %s not found in %s", id, key)
	}
	return decodeDoc(raw)
}

func (p *Pebble) WriteEntity(_ context.Context, key string, doc model.Document) (model.Document, error) {
	id, err := requireID(doc)
	if err != nil {
		return nil, err
	}
	raw, err := encodeDoc(doc)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.db.NewBatch()
	defer batch.Close()

	var seq uint64
	if existing, ok, err := p.get(indexKey(key, id)); err != nil {
		return nil, err
	} else if ok {
		seq = binary.BigEndian.Uint64(existing)
	} else {
		next, _, err := p.get(namespaceKey(key))
		if err != nil {
			return nil, err
		}
		if len(next) == 8 {
			seq = binary.BigEndian.Uint64(next)
		}
		if err := batch.Set(namespaceKey(key), binary.BigEndian.AppendUint64(nil, seq+1), nil); err != nil {
			return nil, err
		}
		if err := batch.Set(indexKey(key, id), binary.BigEndian.AppendUint64(nil, seq), nil); err != nil {
			return nil, err
		}
	}
	if err := batch.Set(entityKey(key, seq), raw, nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to write entity %s: %w", id, err)
	}
	return doc.Clone(), nil
}

func (p *Pebble) DeleteEntity(_ context.Context, key, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq, ok, err := p.get(indexKey(key, id))
	if err != nil || !ok {
		return false, err
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(indexKey(key, id), nil); err != nil {
		return false, err
	}
	if err := batch.Delete(entityKey(key, binary.BigEndian.Uint64(seq)), nil); err != nil {
		return false, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pebble) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close pebble database: %w", err)
	}
	return nil
}
