package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syntrixbase/kinsync/internal/live"
	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/persist"
	"github.com/syntrixbase/kinsync/internal/queue"
	"github.com/syntrixbase/kinsync/pkg/aggregation"
	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

// Notifier receives successful offline mutations.
type Notifier interface {
	Notify(ctx context.Context, ev live.Event) error
}

// Offline serves collections from a Persister. Mutations of one collection
// run one at a time through the shared queue; reads go straight to the
// persister and may observe state before or after a queued write.
type Offline struct {
	queue     *queue.Queue
	persister persist.Persister
	entities  persist.EntityPersister
	appKey    string
	notifier  Notifier
	logger    *slog.Logger
}

// OfflineOption configures an Offline repository.
type OfflineOption func(*Offline)

func WithNotifier(n Notifier) OfflineOption {
	return func(o *Offline) { o.notifier = n }
}

func WithLogger(logger *slog.Logger) OfflineOption {
	return func(o *Offline) { o.logger = logger }
}

// NewOffline uses per-entity writes when p is a persist.EntityPersister.
func NewOffline(q *queue.Queue, p persist.Persister, appKey string, opts ...OfflineOption) *Offline {
	o := &Offline{queue: q, persister: p, appKey: appKey}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.Component(o.logger, "repository-offline")
	if ep, ok := p.(persist.EntityPersister); ok {
		o.entities = ep
	}
	return o
}

// Key returns the queue and storage key of a collection.
func (o *Offline) Key(collection string) string {
	return o.appKey + "." + collection
}

func (o *Offline) Create(ctx context.Context, collection string, docs []model.Document) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	created := withIDs(docs)
	key := o.Key(collection)

	err := o.enqueue(ctx, key, func(ctx context.Context) error {
		if o.entities != nil {
			return o.writeEntities(ctx, key, created)
		}
		existing, err := o.persister.Read(ctx, key)
		if err != nil {
			return err
		}
		_, err = o.persister.Write(ctx, key, append(existing, created...))
		return err
	})
	if err != nil {
		return nil, err
	}
	o.publish(ctx, collection, live.OpCreate, created)
	return model.CloneAll(created), nil
}

func (o *Offline) Update(ctx context.Context, collection string, docs []model.Document) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	updated := withIDs(docs)
	key := o.Key(collection)

	err := o.enqueue(ctx, key, func(ctx context.Context) error {
		if o.entities != nil {
			return o.writeEntities(ctx, key, updated)
		}
		existing, err := o.persister.Read(ctx, key)
		if err != nil {
			return err
		}
		_, err = o.persister.Write(ctx, key, upsert(existing, updated))
		return err
	})
	if err != nil {
		return nil, err
	}
	o.publish(ctx, collection, live.OpUpdate, updated)
	return model.CloneAll(updated), nil
}

// upsert replaces existing documents by _id and appends the unseen ones in
// input order. A later incoming document wins over an earlier one with the
// same _id.
func upsert(existing, incoming []model.Document) []model.Document {
	byID := make(map[string]model.Document, len(incoming))
	order := make([]string, 0, len(incoming))
	for _, doc := range incoming {
		id := doc.ID()
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = doc
	}

	out := make([]model.Document, 0, len(existing)+len(incoming))
	for _, doc := range existing {
		if repl, ok := byID[doc.ID()]; ok {
			out = append(out, repl)
			delete(byID, doc.ID())
			continue
		}
		out = append(out, doc)
	}
	for _, id := range order {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	return out
}

// writeEntities writes docs concurrently. Only the batch is ordered against
// other operations on the key.
func (o *Offline) writeEntities(ctx context.Context, key string, docs []model.Document) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			_, err := o.entities.WriteEntity(ctx, key, doc)
			return err
		})
	}
	return g.Wait()
}

func (o *Offline) Read(ctx context.Context, collection string, q *query.Query) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	docs, err := o.persister.Read(ctx, o.Key(collection))
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	if q == nil {
		return docs, nil
	}
	return q.Process(docs)
}

func (o *Offline) ReadByID(ctx context.Context, collection string, id string) (model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	key := o.Key(collection)
	if o.entities != nil {
		return o.entities.ReadEntity(ctx, key, id)
	}

	docs, err := o.persister.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.ID() == id {
			return doc, nil
		}
	}
	return nil, model.Errorf(model.ErrNotFound, "entity %s not found in %s", id, collection)
}

// Count counts the documents Read would return for q.
func (o *Offline) Count(ctx context.Context, collection string, q *query.Query) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	docs, err := o.persister.Read(ctx, o.Key(collection))
	if err != nil {
		return 0, err
	}
	if q == nil {
		return len(docs), nil
	}
	selected, err := q.Select(docs)
	if err != nil {
		return 0, err
	}
	return len(selected), nil
}

func (o *Offline) Delete(ctx context.Context, collection string, q *query.Query) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	key := o.Key(collection)
	var removedIDs []string

	err := o.enqueue(ctx, key, func(ctx context.Context) error {
		existing, err := o.persister.Read(ctx, key)
		if err != nil {
			return err
		}
		matched := existing
		if q != nil {
			if matched, err = q.Select(existing); err != nil {
				return err
			}
		}
		remove := make(map[string]bool, len(matched))
		for _, doc := range matched {
			remove[doc.ID()] = true
		}

		if o.entities != nil {
			for id := range remove {
				ok, err := o.entities.DeleteEntity(ctx, key, id)
				if err != nil {
					return err
				}
				if ok {
					removedIDs = append(removedIDs, id)
				}
			}
			return nil
		}

		remaining := make([]model.Document, 0, len(existing))
		for _, doc := range existing {
			if remove[doc.ID()] {
				removedIDs = append(removedIDs, doc.ID())
				continue
			}
			remaining = append(remaining, doc)
		}
		if len(removedIDs) == 0 {
			return nil
		}
		_, err = o.persister.Write(ctx, key, remaining)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(removedIDs) > 0 {
		o.publishIDs(ctx, collection, live.OpDelete, removedIDs)
	}
	return len(removedIDs), nil
}

func (o *Offline) DeleteByID(ctx context.Context, collection string, id string) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	if err := checkID(id); err != nil {
		return 0, err
	}
	key := o.Key(collection)

	count, err := queue.Run(ctx, o.queue, key, func(ctx context.Context) (int, error) {
		if o.entities != nil {
			ok, err := o.entities.DeleteEntity(ctx, key, id)
			if err != nil || !ok {
				return 0, err
			}
			return 1, nil
		}

		existing, err := o.persister.Read(ctx, key)
		if err != nil {
			return 0, err
		}
		for i, doc := range existing {
			if doc.ID() != id {
				continue
			}
			remaining := append(existing[:i:i], existing[i+1:]...)
			if _, err := o.persister.Write(ctx, key, remaining); err != nil {
				return 0, err
			}
			return 1, nil
		}
		return 0, nil
	})
	if err != nil {
		return 0, model.WrapError(err)
	}
	if count > 0 {
		o.publishIDs(ctx, collection, live.OpDelete, []string{id})
	}
	return count, nil
}

// Clear drops a collection, or every collection of the app when collection
// is empty. Collections that vanish while clearing are skipped.
func (o *Offline) Clear(ctx context.Context, collection string) error {
	if collection != "" {
		return o.clear(ctx, collection)
	}

	keys, err := o.persister.Keys(ctx)
	if err != nil {
		return err
	}
	prefix := o.appKey + "."
	for _, key := range keys {
		name, ok := strings.CutPrefix(key, prefix)
		if !ok || name == "" {
			continue
		}
		if err := o.clear(ctx, name); err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (o *Offline) clear(ctx context.Context, collection string) error {
	key := o.Key(collection)
	err := o.enqueue(ctx, key, func(ctx context.Context) error {
		return o.persister.Delete(ctx, key)
	})
	if err != nil {
		return err
	}
	o.publishIDs(ctx, collection, live.OpClear, nil)
	return nil
}

// Group runs agg over the stored collection.
func (o *Offline) Group(ctx context.Context, collection string, agg *aggregation.Aggregation) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	docs, err := o.persister.Read(ctx, o.Key(collection))
	if err != nil {
		return nil, err
	}
	return agg.Process(docs)
}

func (o *Offline) enqueue(ctx context.Context, key string, op queue.Op) error {
	return model.WrapError(o.queue.Enqueue(ctx, key, op))
}

func (o *Offline) publish(ctx context.Context, collection string, op live.Op, docs []model.Document) {
	if o.notifier == nil {
		return
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID()
	}
	o.notify(ctx, live.Event{AppKey: o.appKey, Collection: collection, Op: op, IDs: ids, Documents: model.CloneAll(docs)})
}

func (o *Offline) publishIDs(ctx context.Context, collection string, op live.Op, ids []string) {
	if o.notifier == nil {
		return
	}
	o.notify(ctx, live.Event{AppKey: o.appKey, Collection: collection, Op: op, IDs: ids})
}

func (o *Offline) notify(ctx context.Context, ev live.Event) {
	if err := o.notifier.Notify(ctx, ev); err != nil {
		o.logger.Warn("failed to publish change event",
			"collection", ev.Collection,
			"op", ev.Op,
			"error", err,
		)
	}
}

// withIDs copies docs and assigns ids to those without one.
func withIDs(docs []model.Document) []model.Document {
	out := model.CloneAll(docs)
	for _, doc := range out {
		doc.GenerateIDIfEmpty()
	}
	if out == nil {
		out = []model.Document{}
	}
	return out
}
