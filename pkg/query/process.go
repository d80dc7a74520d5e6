package query

import (
	"sort"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Process applies filter, sort, skip/limit and field projection to docs.
// The input slice is not modified; documents are shared unless projected.
func (q *Query) Process(docs []model.Document) ([]model.Document, error) {
	selected, err := q.Select(docs)
	if err != nil {
		return nil, err
	}
	return q.project(selected), nil
}

// Select applies filter, sort and skip/limit without projection.
func (q *Query) Select(docs []model.Document) ([]model.Document, error) {
	out, err := q.filterDocs(docs)
	if err != nil {
		return nil, err
	}
	q.sortDocs(out)
	return q.page(out), nil
}

func (q *Query) filterDocs(docs []model.Document) ([]model.Document, error) {
	out := make([]model.Document, 0, len(docs))
	if len(q.filter) == 0 {
		return append(out, docs...), nil
	}
	p, err := Compile(q.filter)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if p.Match(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// sortDocs is a stable multi-key sort. Absent values (missing or null) are
// equal to each other and order before present values when ascending.
func (q *Query) sortDocs(docs []model.Document) {
	if len(q.sort) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return compareDocs(docs[i], docs[j], q.sort) < 0
	})
}

func compareDocs(a, b model.Document, fields []SortField) int {
	for _, f := range fields {
		modifier := int(f.Direction)
		if modifier == 0 {
			modifier = 1
		}
		av, aok := model.Nested(a, f.Field)
		bv, bok := model.Nested(b, f.Field)
		aAbsent := !aok || av == nil
		bAbsent := !bok || bv == nil

		switch {
		case aAbsent && bAbsent:
			continue
		case bAbsent:
			return modifier
		case aAbsent:
			return -modifier
		}
		if cmp := compareValues(av, bv); cmp != 0 {
			return cmp * modifier
		}
	}
	return 0
}

func (q *Query) page(docs []model.Document) []model.Document {
	if q.skip > 0 {
		if q.skip >= len(docs) {
			return docs[:0]
		}
		docs = docs[q.skip:]
	}
	if limit, ok := q.LimitCount(); ok && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// project keeps only the requested fields. _id and _acl are always kept.
func (q *Query) project(docs []model.Document) []model.Document {
	if len(q.fields) == 0 {
		return docs
	}
	keep := append([]string{model.FieldID, model.FieldACL}, q.fields...)
	out := make([]model.Document, len(docs))
	for i, doc := range docs {
		projected := model.Document{}
		for _, field := range keep {
			if v, ok := model.Nested(doc, field); ok {
				if _, direct := doc[field]; direct {
					projected[field] = v
				} else {
					model.SetNested(projected, field, v)
				}
			}
		}
		out[i] = projected
	}
	return out
}
