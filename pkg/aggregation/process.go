package aggregation

import (
	"encoding/json"
	"math"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Process runs the query (without projection) over docs, then groups and
// reduces. Grouped aggregations return one record per distinct key tuple,
// in first-seen order, holding the key values merged with the accumulator.
// Ungrouped aggregations return exactly one record.
func (a *Aggregation) Process(docs []model.Document) ([]model.Document, error) {
	if a.query != nil {
		selected, err := a.query.Select(docs)
		if err != nil {
			return nil, err
		}
		docs = selected
	}

	if a.kind == KindCustomKeyed {
		return a.processKeyed(docs), nil
	}

	if len(a.key) == 0 {
		acc := a.Initial()
		for _, doc := range docs {
			acc = a.apply(doc, acc)
		}
		return []model.Document{acc}, nil
	}

	groups := map[string]model.Document{}
	order := make([]string, 0)
	for _, doc := range docs {
		groupKey, keyValues := a.groupOf(doc)
		acc, ok := groups[groupKey]
		if !ok {
			acc = a.Initial()
			order = append(order, groupKey)
			for field, v := range keyValues {
				acc[field] = v
			}
		}
		groups[groupKey] = a.apply(doc, acc)
	}

	out := make([]model.Document, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out, nil
}

func (a *Aggregation) processKeyed(docs []model.Document) []model.Document {
	acc := a.Initial()
	for _, field := range a.key {
		for _, doc := range docs {
			acc = a.keyed(acc, doc, field)
			if acc == nil {
				acc = model.Document{}
			}
		}
	}
	return []model.Document{acc}
}

func (a *Aggregation) groupOf(doc model.Document) (string, map[string]interface{}) {
	values := make([]interface{}, len(a.key))
	present := make(map[string]interface{}, len(a.key))
	for i, field := range a.key {
		if v, ok := model.Nested(doc, field); ok {
			values[i] = v
			present[field] = v
		} else {
			values[i] = absentMarker{}
		}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", present
	}
	return string(b), present
}

// absentMarker keeps a missing key distinct from an explicit null.
type absentMarker struct{}

func (absentMarker) MarshalJSON() ([]byte, error) {
	return []byte(`{"$absent":true}`), nil
}

func (a *Aggregation) apply(doc model.Document, acc model.Document) model.Document {
	switch a.kind {
	case KindCount:
		acc["count"] = asInt(acc["count"]) + 1
	case KindSum:
		if x, ok := fieldNumber(doc, a.field); ok {
			acc["sum"] = asFloat(acc["sum"]) + x
		}
	case KindMin:
		if x, ok := fieldNumber(doc, a.field); ok {
			acc["min"] = math.Min(asFloat(acc["min"]), x)
		}
	case KindMax:
		if x, ok := fieldNumber(doc, a.field); ok {
			acc["max"] = math.Max(asFloat(acc["max"]), x)
		}
	case KindAverage:
		if x, ok := fieldNumber(doc, a.field); ok {
			count := asInt(acc["count"])
			avg := asFloat(acc["average"])
			acc["average"] = (avg*float64(count) + x) / float64(count+1)
			acc["count"] = count + 1
		}
	case KindCustom:
		if out := a.reduce(doc, acc); out != nil {
			return out
		}
	}
	return acc
}

// Finite returns copies of records with infinite or NaN numbers replaced by
// nil, so that a min or max accumulator no value reached encodes as JSON
// null. Records themselves are not modified.
func Finite(records []model.Document) []model.Document {
	out := make([]model.Document, len(records))
	for i, r := range records {
		c := make(model.Document, len(r))
		for k, v := range r {
			if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
				v = nil
			}
			c[k] = v
		}
		out[i] = c
	}
	return out
}

func fieldNumber(doc model.Document, field string) (float64, bool) {
	v, ok := model.Nested(doc, field)
	if !ok {
		return 0, false
	}
	return toNumber(v)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asFloat(v interface{}) float64 {
	f, _ := toNumber(v)
	return f
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return int(asFloat(v))
}
