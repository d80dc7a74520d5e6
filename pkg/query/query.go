// Package query builds MongoDB-style queries and evaluates them against
// in-memory documents. The same Query drives network reads (serialized to
// the querystring) and local reads (Process), so results agree.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Direction is a sort modifier: 1 ascending, -1 descending.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// SortField is one field of an ordered sort.
type SortField struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Query selects, orders, pages and projects documents.
type Query struct {
	filter   map[string]interface{}
	sort     []SortField
	fields   []string
	skip     int
	limit    int
	hasLimit bool
}

// New returns an empty query that matches everything.
func New() *Query {
	return &Query{filter: map[string]interface{}{}}
}

// FromFilter returns a query with the given raw filter.
func FromFilter(filter map[string]interface{}) *Query {
	q := New()
	for k, v := range filter {
		q.filter[k] = v
	}
	return q
}

// Filter returns the raw filter expression.
func (q *Query) Filter() map[string]interface{} {
	return q.filter
}

// Sort returns the sort fields in order.
func (q *Query) Sort() []SortField {
	return q.sort
}

// FieldList returns the projected fields.
func (q *Query) FieldList() []string {
	return q.fields
}

// SkipCount returns the skip value; negative means unset.
func (q *Query) SkipCount() int {
	return q.skip
}

// LimitCount returns the limit and whether one is set.
func (q *Query) LimitCount() (int, bool) {
	return q.limit, q.hasLimit && q.limit >= 0
}

// EqualTo matches documents whose field equals value. It replaces any
// operator conditions already set on field.
func (q *Query) EqualTo(field string, value interface{}) *Query {
	q.filter[field] = value
	return q
}

// NotEqualTo adds a $ne condition.
func (q *Query) NotEqualTo(field string, value interface{}) *Query {
	return q.addOperator(field, "$ne", value)
}

// GreaterThan adds a $gt condition.
func (q *Query) GreaterThan(field string, value interface{}) *Query {
	return q.addOperator(field, "$gt", value)
}

// GreaterThanOrEqualTo adds a $gte condition.
func (q *Query) GreaterThanOrEqualTo(field string, value interface{}) *Query {
	return q.addOperator(field, "$gte", value)
}

// LessThan adds a $lt condition.
func (q *Query) LessThan(field string, value interface{}) *Query {
	return q.addOperator(field, "$lt", value)
}

// LessThanOrEqualTo adds a $lte condition.
func (q *Query) LessThanOrEqualTo(field string, value interface{}) *Query {
	return q.addOperator(field, "$lte", value)
}

// ContainedIn matches documents whose field equals one of values ($in).
func (q *Query) ContainedIn(field string, values ...interface{}) *Query {
	return q.addOperator(field, "$in", values)
}

// NotContainedIn matches documents whose field equals none of values ($nin).
func (q *Query) NotContainedIn(field string, values ...interface{}) *Query {
	return q.addOperator(field, "$nin", values)
}

// ContainsAll matches array fields holding every one of values ($all).
func (q *Query) ContainsAll(field string, values ...interface{}) *Query {
	return q.addOperator(field, "$all", values)
}

// Size matches array fields of exactly size elements.
func (q *Query) Size(field string, size int) *Query {
	return q.addOperator(field, "$size", size)
}

// Exists matches documents where field is present (or absent when exists
// is false).
func (q *Query) Exists(field string, exists bool) *Query {
	return q.addOperator(field, "$exists", exists)
}

// Matches adds a $regex condition. options follows MongoDB ("i", "m", "s").
func (q *Query) Matches(field, pattern, options string) *Query {
	q.addOperator(field, "$regex", pattern)
	if options != "" {
		q.addOperator(field, "$options", options)
	}
	return q
}

// Not negates the operator conditions of field taken from other.
func (q *Query) Not(field string, other *Query) *Query {
	cond, ok := other.filter[field]
	if !ok {
		return q
	}
	if _, isOps := cond.(map[string]interface{}); !isOps {
		cond = map[string]interface{}{"$eq": cond}
	}
	return q.addOperator(field, "$not", cond)
}

// And replaces the filter with a $and of itself and queries.
func (q *Query) And(queries ...*Query) *Query {
	return q.join("$and", queries)
}

// Or replaces the filter with a $or of itself and queries.
func (q *Query) Or(queries ...*Query) *Query {
	return q.join("$or", queries)
}

// Nor replaces the filter with a $nor of itself and queries.
func (q *Query) Nor(queries ...*Query) *Query {
	return q.join("$nor", queries)
}

// Ascending sorts by field, smallest first. Sorting by a field already
// present changes its direction in place.
func (q *Query) Ascending(field string) *Query {
	return q.addSort(field, Ascending)
}

// Descending sorts by field, largest first.
func (q *Query) Descending(field string) *Query {
	return q.addSort(field, Descending)
}

// Fields limits results to fields; _id and _acl are always kept.
func (q *Query) Fields(fields ...string) *Query {
	q.fields = append([]string(nil), fields...)
	return q
}

// Skip drops the first n results. Negative values are ignored.
func (q *Query) Skip(n int) *Query {
	q.skip = n
	return q
}

// Limit caps the result count. Limit(0) returns nothing; negative values
// are ignored.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	q.hasLimit = true
	return q
}

// Clone returns a deep copy of the query.
func (q *Query) Clone() *Query {
	c := &Query{
		filter:   model.Document(q.filter).Clone(),
		sort:     append([]SortField(nil), q.sort...),
		fields:   append([]string(nil), q.fields...),
		skip:     q.skip,
		limit:    q.limit,
		hasLimit: q.hasLimit,
	}
	if c.filter == nil {
		c.filter = map[string]interface{}{}
	}
	return c
}

func (q *Query) addOperator(field, op string, value interface{}) *Query {
	ops, ok := q.filter[field].(map[string]interface{})
	if !ok {
		ops = map[string]interface{}{}
	}
	ops[op] = value
	q.filter[field] = ops
	return q
}

func (q *Query) addSort(field string, dir Direction) *Query {
	for i := range q.sort {
		if q.sort[i].Field == field {
			q.sort[i].Direction = dir
			return q
		}
	}
	q.sort = append(q.sort, SortField{Field: field, Direction: dir})
	return q
}

func (q *Query) join(op string, queries []*Query) *Query {
	clauses := make([]interface{}, 0, len(queries)+1)
	if len(q.filter) > 0 {
		clauses = append(clauses, q.filter)
	}
	for _, other := range queries {
		if other == nil {
			continue
		}
		clauses = append(clauses, other.filter)
	}
	q.filter = map[string]interface{}{op: clauses}
	return q
}

type plainQuery struct {
	Filter map[string]interface{} `json:"filter"`
	Sort   []SortField            `json:"sort,omitempty"`
	Fields []string               `json:"fields,omitempty"`
	Skip   int                    `json:"skip,omitempty"`
	Limit  *int                   `json:"limit,omitempty"`
}

// MarshalJSON encodes the query as {filter, sort, fields, skip, limit}.
func (q *Query) MarshalJSON() ([]byte, error) {
	p := plainQuery{Filter: q.filter, Sort: q.sort, Fields: q.fields}
	if q.skip > 0 {
		p.Skip = q.skip
	}
	if limit, ok := q.LimitCount(); ok {
		p.Limit = &limit
	}
	return json.Marshal(p)
}

// UnmarshalJSON decodes the MarshalJSON form. Sort directions other than 1
// and -1 fail with model.ErrQuery.
func (q *Query) UnmarshalJSON(data []byte) error {
	var p plainQuery
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Errorf(model.ErrQuery, "invalid query: %v", err)
	}
	for _, s := range p.Sort {
		if s.Direction != Ascending && s.Direction != Descending {
			return model.Errorf(model.ErrQuery, "invalid sort direction %d for %q", s.Direction, s.Field)
		}
	}
	*q = Query{filter: p.Filter, sort: p.Sort, fields: p.Fields, skip: p.Skip}
	if q.filter == nil {
		q.filter = map[string]interface{}{}
	}
	if p.Limit != nil {
		q.Limit(*p.Limit)
	}
	return nil
}

func (q *Query) String() string {
	b, err := q.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("query<%v>", err)
	}
	return string(b)
}
