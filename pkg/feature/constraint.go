package feature

import (
	"regexp"
	"strings"
	"sync"

	"github.com/dmitrymomot/flagsync/pkg/value"
)

// Matches reports whether all constraints of the rule hold for ec.
// A rule without constraints always matches.
func (r Rule) Matches(ec EvaluationContext) bool {
	for _, c := range r.Constraints {
		if !c.Matches(ec) {
			return false
		}
	}
	return true
}

// Matches evaluates the constraint against ec. A missing context field or an
// unknown operator never matches.
func (c Constraint) Matches(ec EvaluationContext) bool {
	actual, ok := ec.Lookup(c.ContextField)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return equalsAny(actual, c.Value)
	case OpNotEquals:
		return !equalsAny(actual, c.Value)
	case OpIn:
		return equalsAny(actual, c.Value)
	case OpNotIn:
		return !equalsAny(actual, c.Value)
	case OpContains:
		return contains(actual, c.Value)
	case OpNotContains:
		return !contains(actual, c.Value)
	case OpStartsWith:
		return stringOp(actual, c.Value, strings.HasPrefix)
	case OpEndsWith:
		return stringOp(actual, c.Value, strings.HasSuffix)
	case OpGreaterThan:
		return compare(actual, c.Value, func(n int) bool { return n > 0 })
	case OpGreaterThanOrEqual:
		return compare(actual, c.Value, func(n int) bool { return n >= 0 })
	case OpLessThan:
		return compare(actual, c.Value, func(n int) bool { return n < 0 })
	case OpLessThanOrEqual:
		return compare(actual, c.Value, func(n int) bool { return n <= 0 })
	case OpMatches:
		return matches(actual, c.Value)
	default:
		return false
	}
}

// equalsAny compares against a scalar, or against every item of a list operand.
func equalsAny(actual, expected value.Value) bool {
	if expected.Kind() != value.KindList {
		return actual.Equal(expected)
	}
	for i := range expected.Len() {
		item, _ := expected.Index(i)
		if actual.Equal(item) {
			return true
		}
	}
	return false
}

func contains(actual, expected value.Value) bool {
	switch actual.Kind() {
	case value.KindString:
		return stringOp(actual, expected, strings.Contains)
	case value.KindList:
		for i := range actual.Len() {
			item, _ := actual.Index(i)
			if equalsAny(item, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringOp(actual, expected value.Value, op func(s, part string) bool) bool {
	s, ok := actual.AsString()
	if !ok {
		return false
	}
	if part, ok := expected.AsString(); ok {
		return op(s, part)
	}
	for i := range expected.Len() {
		item, _ := expected.Index(i)
		if part, ok := item.AsString(); ok && op(s, part) {
			return true
		}
	}
	return false
}

func compare(actual, expected value.Value, accept func(int) bool) bool {
	n, ok := actual.Compare(expected)
	return ok && accept(n)
}

var patterns sync.Map // string -> *regexp.Regexp, nil for invalid patterns

func matches(actual, expected value.Value) bool {
	s, ok := actual.AsString()
	if !ok {
		return false
	}
	pattern, ok := expected.AsString()
	if !ok {
		return false
	}

	cached, ok := patterns.Load(pattern)
	if !ok {
		re, _ := regexp.Compile(pattern)
		cached, _ = patterns.LoadOrStore(pattern, re)
	}
	re, _ := cached.(*regexp.Regexp)
	return re != nil && re.MatchString(s)
}
