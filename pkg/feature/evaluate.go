package feature

import (
	"github.com/dmitrymomot/flagsync/pkg/value"
)

// Evaluate resolves flag f for ec and converts the selected variant to T.
// A nil f means the flag is unknown. Evaluate never panics; every failure is
// reported through the result's Reason and ErrorCode with def as the value.
func Evaluate[T any](flagKey string, def T, f *Feature, ec EvaluationContext) EvaluationResult[T] {
	return Finish(Resolve(flagKey, f, ec), def)
}

// Resolve runs the evaluation algorithm without applying a default value.
//
//  1. unknown flag: UNKNOWN
//  2. disabled flag: DISABLED
//  3. targeting key outside the rollout: DEFAULT
//  4. first rule whose constraints all match wins (TARGETING_MATCH),
//     otherwise the default rule applies (DEFAULT)
//  5. the targeting key is bucketed into the winning rule's allocations;
//     a bucket past the last allocation yields DEFAULT without a variant
//  6. the allocated variant is looked up; a dangling key is an ERROR
func Resolve(flagKey string, f *Feature, ec EvaluationContext) Resolution {
	if f == nil {
		return Resolution{Reason: ReasonUnknown, ErrorCode: ErrorFlagNotFound, FlagKey: flagKey}
	}
	if !f.Enabled {
		return Resolution{Reason: ReasonDisabled, FlagKey: flagKey}
	}

	if pct := f.Rollout(); pct < 100 && rolloutBucket(ec.TargetingKey, flagKey) >= pct {
		return Resolution{Reason: ReasonDefault, FlagKey: flagKey, RuleIndex: -1, Bucket: -1}
	}

	rule, ruleIndex, reason := f.DefaultRule, -1, ReasonDefault
	for i, r := range f.Rules {
		if r.Matches(ec) {
			rule, ruleIndex, reason = r, i, ReasonTargetingMatch
			break
		}
	}

	bucket := Bucket(ec.TargetingKey, flagKey)
	res := Resolution{Reason: reason, FlagKey: flagKey, RuleIndex: ruleIndex, Bucket: bucket}

	alloc, ok := pickAllocation(rule.Allocations, bucket)
	if !ok {
		res.Reason = ReasonDefault
		return res
	}

	variant, ok := f.Variants[alloc.VariantKey]
	if !ok {
		return Resolution{Reason: ReasonError, ErrorCode: ErrorGeneral, FlagKey: flagKey, Variant: alloc.VariantKey}
	}

	res.Variant = alloc.VariantKey
	res.Value = variant.Value
	res.HasValue = true
	return res
}

// Finish converts a resolution into a typed result. Resolutions without a
// value carry def; a variant that cannot be represented as T is a
// TYPE_MISMATCH error.
func Finish[T any](r Resolution, def T) EvaluationResult[T] {
	out := EvaluationResult[T]{
		Value:     def,
		Reason:    r.Reason,
		ErrorCode: r.ErrorCode,
		Metadata:  r.metadata(),
	}
	if !r.HasValue {
		return out
	}

	v, ok := Coerce[T](r.Value)
	if !ok {
		out.Reason = ReasonError
		out.ErrorCode = ErrorTypeMismatch
		return out
	}
	out.Value = v
	out.Variant = r.Variant
	return out
}

// Coerce converts v to T. Supported targets are bool, string, int, int64,
// float64, map[string]any, []any, value.Value and any.
func Coerce[T any](v value.Value) (T, bool) {
	var zero T
	var (
		out any
		ok  bool
	)

	switch any(zero).(type) {
	case bool:
		out, ok = v.AsBool()
	case string:
		out, ok = v.AsString()
	case int64:
		out, ok = v.AsInt()
	case int:
		var n int64
		if n, ok = v.AsInt(); ok {
			out = int(n)
		}
	case float64:
		out, ok = v.AsDouble()
	case map[string]any:
		if v.Kind() == value.KindMap {
			out, ok = v.Any(), true
		}
	case []any:
		if v.Kind() == value.KindList {
			out, ok = v.Any(), true
		}
	case value.Value:
		out, ok = v, true
	case nil:
		// T is an interface type.
		if v.IsNull() {
			return zero, true
		}
		t, ok := v.Any().(T)
		return t, ok
	default:
		return zero, false
	}

	if !ok {
		return zero, false
	}
	t, ok := out.(T)
	return t, ok
}
