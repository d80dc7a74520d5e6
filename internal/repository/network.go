package repository

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/request"
	"github.com/syntrixbase/kinsync/pkg/aggregation"
	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

// Network talks to the /appdata REST endpoints.
type Network struct {
	client *request.Client
	appKey string
	logger *slog.Logger
}

// NewNetwork returns the REST repository for appKey.
func NewNetwork(client *request.Client, appKey string, logger *slog.Logger) *Network {
	return &Network{client: client, appKey: appKey, logger: logging.Component(logger, "repository-network")}
}

func (n *Network) path(collection string, parts ...string) string {
	p := "/appdata/" + url.PathEscape(n.appKey) + "/" + url.PathEscape(collection)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (n *Network) execute(ctx context.Context, method, path string, q *query.Query, body interface{}) (*request.Response, error) {
	req := &request.Request{Method: method, URL: path, Body: body, Auth: request.AuthDefault}
	if q != nil {
		values, err := q.Values()
		if err != nil {
			return nil, err
		}
		req.Query = values
	}
	return n.client.Execute(ctx, req)
}

// Create POSTs every entity concurrently; results keep the input order.
func (n *Network) Create(ctx context.Context, collection string, docs []model.Document) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return n.each(ctx, docs, func(ctx context.Context, doc model.Document) (*request.Response, error) {
		return n.execute(ctx, http.MethodPost, n.path(collection), nil, doc)
	})
}

// Update PUTs entities with an _id and POSTs the others.
func (n *Network) Update(ctx context.Context, collection string, docs []model.Document) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	return n.each(ctx, docs, func(ctx context.Context, doc model.Document) (*request.Response, error) {
		if id := doc.ID(); id != "" {
			return n.execute(ctx, http.MethodPut, n.path(collection, id), nil, doc)
		}
		return n.execute(ctx, http.MethodPost, n.path(collection), nil, doc)
	})
}

func (n *Network) each(ctx context.Context, docs []model.Document, send func(context.Context, model.Document) (*request.Response, error)) ([]model.Document, error) {
	out := make([]model.Document, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			resp, err := send(ctx, doc)
			if err != nil {
				return err
			}
			out[i] = model.Document(resp.Object())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Read GETs the collection with q as querystring parameters.
func (n *Network) Read(ctx context.Context, collection string, q *query.Query) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	resp, err := n.execute(ctx, http.MethodGet, n.path(collection), q, nil)
	if err != nil {
		return nil, err
	}
	return documents(resp.Data)
}

// ReadByID GETs a single entity. A missing entity fails with
// model.ErrNotFound.
func (n *Network) ReadByID(ctx context.Context, collection string, id string) (model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	resp, err := n.execute(ctx, http.MethodGet, n.path(collection, id), nil, nil)
	if err != nil {
		return nil, err
	}
	return model.Document(resp.Object()), nil
}

// Delete removes the entities matching q (all of them when q is nil) and
// returns the count the server reports.
func (n *Network) Delete(ctx context.Context, collection string, q *query.Query) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	if q == nil {
		q = query.New()
	}
	resp, err := n.execute(ctx, http.MethodDelete, n.path(collection), q, nil)
	if err != nil {
		return 0, err
	}
	return countOf(resp), nil
}

// DeleteByID removes one entity and returns the reported count.
func (n *Network) DeleteByID(ctx context.Context, collection string, id string) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	if err := checkID(id); err != nil {
		return 0, err
	}
	resp, err := n.execute(ctx, http.MethodDelete, n.path(collection, id), nil, nil)
	if err != nil {
		return 0, err
	}
	return countOf(resp), nil
}

// Count asks the _count action how many entities match q.
func (n *Network) Count(ctx context.Context, collection string, q *query.Query) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	resp, err := n.execute(ctx, http.MethodGet, n.path(collection, "_count"), q, nil)
	if err != nil {
		return 0, err
	}
	return countOf(resp), nil
}

// Group POSTs the aggregation to the _group action. Custom reducers have no
// wire form and fail with model.ErrFeatureUnavailable before any request.
func (n *Network) Group(ctx context.Context, collection string, agg *aggregation.Aggregation) ([]model.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	payload, err := agg.Payload()
	if err != nil {
		return nil, err
	}
	resp, err := n.execute(ctx, http.MethodPost, n.path(collection, "_group"), nil, payload)
	if err != nil {
		return nil, err
	}
	return documents(resp.Data)
}

func documents(data interface{}) ([]model.Document, error) {
	if data == nil {
		return []model.Document{}, nil
	}
	items, ok := data.([]interface{})
	if !ok {
		return nil, model.Errorf(model.ErrKinvey, "expected an array of entities, got %T", data)
	}
	out := make([]model.Document, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, model.Errorf(model.ErrKinvey, "expected an entity, got %T", item)
		}
		out = append(out, model.Document(obj))
	}
	return out, nil
}

func countOf(resp *request.Response) int {
	switch c := resp.Object()["count"].(type) {
	case float64:
		return int(c)
	case int:
		return c
	}
	return 0
}
