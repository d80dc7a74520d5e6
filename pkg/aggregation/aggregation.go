// Package aggregation groups documents by key fields and folds each group
// with a reducer. Built-in reducers can also be shipped to the REST `_group`
// endpoint; custom reducers only run locally.
package aggregation

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tiendc/go-deepcopy"

	"github.com/syntrixbase/kinsync/pkg/model"
	"github.com/syntrixbase/kinsync/pkg/query"
)

// Kind identifies the reducer of an aggregation.
type Kind string

const (
	KindCount       Kind = "count"
	KindSum         Kind = "sum"
	KindMin         Kind = "min"
	KindMax         Kind = "max"
	KindAverage     Kind = "average"
	KindCustom      Kind = "custom"
	KindCustomKeyed Kind = "custom_keyed"
)

// ReduceFunc folds one document into the accumulator.
type ReduceFunc func(doc model.Document, acc model.Document) model.Document

// KeyedReduceFunc is the single-accumulator shape: it is called once per
// document and key field, and the key fields do not partition the input.
type KeyedReduceFunc func(acc model.Document, doc model.Document, field string) model.Document

// Aggregation groups documents and folds each group with a reducer.
type Aggregation struct {
	query   *query.Query
	initial model.Document
	key     []string
	kind    Kind
	field   string
	reduce  ReduceFunc
	keyed   KeyedReduceFunc
}

// Custom returns an aggregation folding documents with fn.
func Custom(initial model.Document, fn ReduceFunc) *Aggregation {
	return &Aggregation{initial: initial, kind: KindCustom, reduce: fn}
}

// CustomKeyed returns an aggregation folding with the keyed reducer shape.
func CustomKeyed(initial model.Document, fn KeyedReduceFunc) *Aggregation {
	return &Aggregation{initial: initial, kind: KindCustomKeyed, keyed: fn}
}

// Count groups by field and counts the documents of each group.
func Count(field string) *Aggregation {
	a := &Aggregation{initial: model.Document{"count": 0}, kind: KindCount, field: field}
	if field != "" {
		a.By(field)
	}
	return a
}

// Sum adds up field across the input.
func Sum(field string) *Aggregation {
	return &Aggregation{initial: model.Document{"sum": 0.0}, kind: KindSum, field: field}
}

// Min keeps the smallest value of field.
func Min(field string) *Aggregation {
	return &Aggregation{initial: model.Document{"min": math.Inf(1)}, kind: KindMin, field: field}
}

// Max keeps the largest value of field.
func Max(field string) *Aggregation {
	return &Aggregation{initial: model.Document{"max": math.Inf(-1)}, kind: KindMax, field: field}
}

// Average keeps a running mean of field together with the sample count.
func Average(field string) *Aggregation {
	return &Aggregation{initial: model.Document{"count": 0, "average": 0.0}, kind: KindAverage, field: field}
}

// By adds group-by fields.
func (a *Aggregation) By(fields ...string) *Aggregation {
	for _, f := range fields {
		if !contains(a.key, f) {
			a.key = append(a.key, f)
		}
	}
	return a
}

// WithQuery restricts the input to documents selected by q.
func (a *Aggregation) WithQuery(q *query.Query) *Aggregation {
	a.query = q
	return a
}

// SetQuery sets the query from an untyped value. Only *query.Query is
// accepted; plain objects are rejected, never coerced.
func (a *Aggregation) SetQuery(v interface{}) error {
	switch q := v.(type) {
	case nil:
		a.query = nil
		return nil
	case *query.Query:
		a.query = q
		return nil
	default:
		return model.Errorf(model.ErrQuery, "aggregation query must be a *query.Query, got %T", v)
	}
}

func (a *Aggregation) Query() *query.Query { return a.query }
func (a *Aggregation) Key() []string       { return a.key }
func (a *Aggregation) Kind() Kind          { return a.kind }

// Initial returns a fresh copy of the initial accumulator.
func (a *Aggregation) Initial() model.Document {
	return freshCopy(a.initial)
}

// FromMap builds a built-in aggregation from a decoded JSON object of the
// form {"kind","field","key","query"}. A "query" that is not a *query.Query
// fails with model.ErrQuery.
func FromMap(m map[string]interface{}) (*Aggregation, error) {
	kind, _ := m["kind"].(string)
	field, _ := m["field"].(string)

	var a *Aggregation
	switch Kind(kind) {
	case KindCount:
		a = Count(field)
	case KindSum:
		a = Sum(field)
	case KindMin:
		a = Min(field)
	case KindMax:
		a = Max(field)
	case KindAverage:
		a = Average(field)
	default:
		return nil, model.Errorf(model.ErrQuery, "unknown aggregation kind %q", kind)
	}

	if raw, ok := m["key"]; ok {
		keys, ok := raw.([]interface{})
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "aggregation key must be an array")
		}
		for _, k := range keys {
			s, ok := k.(string)
			if !ok {
				return nil, model.Errorf(model.ErrQuery, "aggregation key entries must be strings")
			}
			a.By(s)
		}
	}
	if raw, ok := m["query"]; ok {
		if err := a.SetQuery(raw); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func freshCopy(doc model.Document) model.Document {
	if doc == nil {
		return model.Document{}
	}
	var out model.Document
	if err := deepcopy.Copy(&out, &doc); err != nil {
		return doc.Clone()
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (a *Aggregation) String() string {
	b, err := json.Marshal(map[string]interface{}{"kind": a.kind, "field": a.field, "key": a.key})
	if err != nil {
		return fmt.Sprintf("aggregation<%s>", a.kind)
	}
	return string(b)
}
