package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Predicate is a compiled filter. Compiling checks the whole filter tree, so
// a malformed filter fails the same way whatever documents it meets.
type Predicate struct {
	match docMatcher
}

type (
	docMatcher   func(doc model.Document) bool
	valueMatcher func(value interface{}, found bool) bool
)

// Compile validates filter and returns its predicate. An empty filter
// matches every document. Malformed filters fail with model.ErrQuery.
func Compile(filter map[string]interface{}) (*Predicate, error) {
	m, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	return &Predicate{match: m}, nil
}

// Match reports whether doc satisfies the predicate. Missing fields are
// treated as absent and never fail.
func (p *Predicate) Match(doc model.Document) bool {
	return p.match(doc)
}

// Match compiles filter and applies it to doc.
func Match(filter map[string]interface{}, doc model.Document) (bool, error) {
	p, err := Compile(filter)
	if err != nil {
		return false, err
	}
	return p.Match(doc), nil
}

func compileFilter(filter map[string]interface{}) (docMatcher, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]docMatcher, 0, len(keys))
	for _, key := range keys {
		m, err := compileClause(key, filter[key])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, m)
	}
	return func(doc model.Document) bool {
		for _, m := range clauses {
			if !m(doc) {
				return false
			}
		}
		return true
	}, nil
}

func compileClause(key string, cond interface{}) (docMatcher, error) {
	switch key {
	case "$and", "$or", "$nor":
		return compileLogical(key, cond)
	}
	if strings.HasPrefix(key, "$") {
		return nil, model.Errorf(model.ErrQuery, "unknown top-level operator %s", key)
	}

	var match valueMatcher
	if ops, ok := cond.(map[string]interface{}); ok && isOperatorMap(ops) {
		m, err := compileOperators(ops)
		if err != nil {
			return nil, err
		}
		match = m
	} else {
		match = func(value interface{}, found bool) bool {
			return matchEquality(value, found, cond)
		}
	}
	return func(doc model.Document) bool {
		value, found := model.Nested(doc, key)
		return match(value, found)
	}, nil
}

func compileLogical(op string, cond interface{}) (docMatcher, error) {
	raw, ok := toSlice(cond)
	if !ok {
		return nil, model.Errorf(model.ErrQuery, "%s requires an array", op)
	}
	clauses := make([]docMatcher, 0, len(raw))
	for _, c := range raw {
		sub, ok := c.(map[string]interface{})
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "%s clauses must be objects", op)
		}
		m, err := compileFilter(sub)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, m)
	}

	return func(doc model.Document) bool {
		for _, m := range clauses {
			matched := m(doc)
			switch op {
			case "$and":
				if !matched {
					return false
				}
			case "$or":
				if matched {
					return true
				}
			case "$nor":
				if matched {
					return false
				}
			}
		}
		return op != "$or" || len(clauses) == 0
	}, nil
}

func isOperatorMap(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func compileOperators(ops map[string]interface{}) (valueMatcher, error) {
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	matchers := make([]valueMatcher, 0, len(names))
	for _, op := range names {
		m, err := compileOperator(op, ops[op], ops)
		if err != nil {
			return nil, err
		}
		if m != nil {
			matchers = append(matchers, m)
		}
	}
	return func(value interface{}, found bool) bool {
		for _, m := range matchers {
			if !m(value, found) {
				return false
			}
		}
		return true
	}, nil
}

// compileOperator returns nil for operators that only modify a sibling,
// such as $options.
func compileOperator(op string, arg interface{}, ops map[string]interface{}) (valueMatcher, error) {
	switch op {
	case "$eq":
		return func(v interface{}, found bool) bool { return matchEquality(v, found, arg) }, nil
	case "$ne":
		return func(v interface{}, found bool) bool { return !matchEquality(v, found, arg) }, nil
	case "$gt", "$gte", "$lt", "$lte":
		return func(v interface{}, found bool) bool { return matchComparison(op, v, found, arg) }, nil
	case "$in", "$nin":
		list, ok := toSlice(arg)
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "%s requires an array", op)
		}
		negate := op == "$nin"
		return func(v interface{}, found bool) bool { return matchIn(list, v, found) != negate }, nil
	case "$all":
		list, ok := toSlice(arg)
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "$all requires an array")
		}
		return func(v interface{}, _ bool) bool { return matchAll(list, v) }, nil
	case "$size":
		n, ok := toFloat(arg)
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "$size requires a number")
		}
		return func(v interface{}, _ bool) bool {
			arr, ok := toSlice(v)
			return ok && float64(len(arr)) == n
		}, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "$exists requires a boolean")
		}
		return func(_ interface{}, found bool) bool { return found == want }, nil
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return nil, model.Errorf(model.ErrQuery, "$regex requires a string pattern")
		}
		options, _ := ops["$options"].(string)
		re, err := compileRegex(pattern, options)
		if err != nil {
			return nil, err
		}
		return func(v interface{}, _ bool) bool { return matchRegex(re, v) }, nil
	case "$options":
		if _, hasRegex := ops["$regex"]; !hasRegex {
			return nil, model.Errorf(model.ErrQuery, "$options requires $regex")
		}
		return nil, nil
	case "$not":
		sub, ok := arg.(map[string]interface{})
		if !ok || !isOperatorMap(sub) {
			return nil, model.Errorf(model.ErrQuery, "$not requires an operator object")
		}
		inner, err := compileOperators(sub)
		if err != nil {
			return nil, err
		}
		return func(v interface{}, found bool) bool { return !inner(v, found) }, nil
	}
	return nil, model.Errorf(model.ErrQuery, "unknown operator %s", op)
}

// matchEquality follows MongoDB: an array field matches when the whole array
// or any element equals the expected value; absent fields equal null.
func matchEquality(value interface{}, found bool, expected interface{}) bool {
	if !found {
		return expected == nil
	}
	if equalValues(value, expected) {
		return true
	}
	if arr, ok := toSlice(value); ok {
		for _, el := range arr {
			if equalValues(el, expected) {
				return true
			}
		}
	}
	return false
}

func matchComparison(op string, value interface{}, found bool, arg interface{}) bool {
	if !found {
		return false
	}
	candidates := []interface{}{value}
	if arr, ok := toSlice(value); ok {
		candidates = arr
	}
	for _, c := range candidates {
		cmp, comparable := compareSameKind(c, arg)
		if !comparable {
			continue
		}
		switch op {
		case "$gt":
			if cmp > 0 {
				return true
			}
		case "$gte":
			if cmp >= 0 {
				return true
			}
		case "$lt":
			if cmp < 0 {
				return true
			}
		case "$lte":
			if cmp <= 0 {
				return true
			}
		}
	}
	return false
}

func matchIn(list []interface{}, value interface{}, found bool) bool {
	for _, expected := range list {
		if matchEquality(value, found, expected) {
			return true
		}
	}
	return false
}

func matchAll(list []interface{}, value interface{}) bool {
	arr, ok := toSlice(value)
	if !ok {
		return false
	}
	for _, expected := range list {
		hit := false
		for _, el := range arr {
			if equalValues(el, expected) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func matchRegex(re *regexp.Regexp, value interface{}) bool {
	candidates := []interface{}{value}
	if arr, ok := toSlice(value); ok {
		candidates = arr
	}
	for _, c := range candidates {
		if s, ok := c.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags strings.Builder
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		case 'x':
			// extended mode has no RE2 equivalent; whitespace is kept literal
		default:
			return nil, model.Errorf(model.ErrQuery, "unsupported regex option %q", o)
		}
	}
	if flags.Len() > 0 {
		pattern = fmt.Sprintf("(?%s)%s", flags.String(), pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, model.Errorf(model.ErrQuery, "invalid regex: %v", err)
	}
	return re, nil
}
