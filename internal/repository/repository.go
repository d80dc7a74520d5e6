// Package repository exposes collection CRUD over two backends: the REST
// API (Network) and a local persister (Offline). Both satisfy Repository so
// callers can switch between them through a SyncContext.
package repository

import (
	"context"

	"github.com/syntrixbase/kinsync/pkg/aggregation"
	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

// Kind selects a repository backend.
type Kind string

const (
	KindNetwork Kind = "network"
	KindOffline Kind = "offline"
)

// Repository is the collection contract shared by every backend. A nil query
// selects every document.
type Repository interface {
	// Create saves new entities and returns them as stored.
	Create(ctx context.Context, collection string, docs []model.Document) ([]model.Document, error)

	// Read returns the documents selected by q.
	Read(ctx context.Context, collection string, q *query.Query) ([]model.Document, error)

	// ReadByID fails with model.ErrNotFound when id is absent.
	ReadByID(ctx context.Context, collection string, id string) (model.Document, error)

	// Update upserts entities by _id: known ids are replaced in place, unseen
	// ids are appended.
	Update(ctx context.Context, collection string, docs []model.Document) ([]model.Document, error)

	// Delete removes the documents selected by q and returns how many went.
	Delete(ctx context.Context, collection string, q *query.Query) (int, error)

	// DeleteByID returns 1 when the entity was removed and 0 otherwise.
	DeleteByID(ctx context.Context, collection string, id string) (int, error)

	Count(ctx context.Context, collection string, q *query.Query) (int, error)

	// Group runs agg over the collection.
	Group(ctx context.Context, collection string, agg *aggregation.Aggregation) ([]model.Document, error)
}

func checkCollection(collection string) error {
	if collection == "" {
		return model.NewError(model.ErrInvalidIdentifier, "collection name is required")
	}
	return nil
}

func checkID(id string) error {
	if id == "" {
		return model.NewError(model.ErrInvalidIdentifier, "entity id is required")
	}
	return nil
}
