package query

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/schema"

	"github.com/syntrixbase/kinsync/pkg/model"
)

var encoder = schema.NewEncoder()

// restParams is the querystring shape understood by the REST backend.
type restParams struct {
	Query  string `schema:"query,omitempty"`
	Fields string `schema:"fields,omitempty"`
	Limit  string `schema:"limit,omitempty"`
	Skip   string `schema:"skip,omitempty"`
	Sort   string `schema:"sort,omitempty"`
}

// Values serializes the query to querystring parameters: query (JSON
// filter), fields (comma-joined), limit, skip and sort (JSON object in
// declaration order).
func (q *Query) Values() (url.Values, error) {
	var p restParams
	if len(q.filter) > 0 {
		b, err := json.Marshal(q.filter)
		if err != nil {
			return nil, model.Errorf(model.ErrQuery, "encode filter: %v", err)
		}
		p.Query = string(b)
	}
	if len(q.fields) > 0 {
		p.Fields = strings.Join(q.fields, ",")
	}
	if limit, ok := q.LimitCount(); ok {
		p.Limit = strconv.Itoa(limit)
	}
	if q.skip > 0 {
		p.Skip = strconv.Itoa(q.skip)
	}
	if len(q.sort) > 0 {
		p.Sort = encodeSort(q.sort)
	}

	values := url.Values{}
	if err := encoder.Encode(p, values); err != nil {
		return nil, model.Errorf(model.ErrQuery, "encode querystring: %v", err)
	}
	return values, nil
}

// encodeSort writes {"a":1,"b":-1} keeping field order, which a Go map
// cannot carry.
func encodeSort(fields []SortField) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.Field)
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(int(f.Direction)))
	}
	buf.WriteByte('}')
	return buf.String()
}
