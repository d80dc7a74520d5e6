package aggregation

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Payload is the body of a REST `_group` request.
type Payload struct {
	Key       map[string]bool        `json:"key"`
	Initial   model.Document         `json:"initial"`
	Reduce    string                 `json:"reduce"`
	Condition map[string]interface{} `json:"condition,omitempty"`
}

// Payload renders the aggregation for server-side execution. Only built-in
// kinds have a wire form; custom reducers fail with ErrFeatureUnavailable.
func (a *Aggregation) Payload() (*Payload, error) {
	reduce, err := a.reduceSource()
	if err != nil {
		return nil, err
	}

	p := &Payload{
		Key:     make(map[string]bool, len(a.key)),
		Initial: wireSafe(a.Initial()),
		Reduce:  reduce,
	}
	for _, k := range a.key {
		p.Key[k] = true
	}
	if a.query != nil && len(a.query.Filter()) > 0 {
		p.Condition = a.query.Filter()
	}
	return p, nil
}

// reduceSource maps each built-in kind to its canonical reducer text.
func (a *Aggregation) reduceSource() (string, error) {
	field, err := json.Marshal(a.field)
	if err != nil {
		return "", err
	}
	f := string(field)
	switch a.kind {
	case KindCount:
		return "function(doc, out) { out.count++; return out; }", nil
	case KindSum:
		return fmt.Sprintf("function(doc, out) { out.sum += doc[%s]; return out; }", f), nil
	case KindMin:
		return fmt.Sprintf("function(doc, out) { out.min = Math.min(out.min, doc[%s]); return out; }", f), nil
	case KindMax:
		return fmt.Sprintf("function(doc, out) { out.max = Math.max(out.max, doc[%s]); return out; }", f), nil
	case KindAverage:
		return fmt.Sprintf("function(doc, out) { out.average = (out.average * out.count + doc[%s]) / (out.count + 1); out.count++; return out; }", f), nil
	}
	return "", model.Errorf(model.ErrFeatureUnavailable, "%s reducers run client-side only", a.kind)
}

// wireSafe replaces infinities, which JSON cannot carry, with the largest
// finite floats.
func wireSafe(doc model.Document) model.Document {
	for k, v := range doc {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		switch {
		case math.IsInf(f, 1):
			doc[k] = math.MaxFloat64
		case math.IsInf(f, -1):
			doc[k] = -math.MaxFloat64
		}
	}
	return doc
}
