package feature

import "github.com/dmitrymomot/flagsync/pkg/value"

// Reason explains how an evaluation result was produced.
type Reason string

const (
	ReasonUnknown        Reason = "UNKNOWN"
	ReasonDisabled       Reason = "DISABLED"
	ReasonDefault        Reason = "DEFAULT"
	ReasonTargetingMatch Reason = "TARGETING_MATCH"
	ReasonError          Reason = "ERROR"
)

// ErrorCode classifies ERROR and UNKNOWN results.
type ErrorCode string

const (
	ErrorFlagNotFound ErrorCode = "FLAG_NOT_FOUND"
	ErrorTypeMismatch ErrorCode = "TYPE_MISMATCH"
	ErrorParse        ErrorCode = "PARSE_ERROR"
	ErrorGeneral      ErrorCode = "GENERAL"
)

// Metadata keys attached to results.
const (
	MetaFlagKey   = "flagKey"
	MetaRuleIndex = "ruleIndex"
	MetaBucket    = "bucket"
)

// EvaluationResult is the typed outcome of evaluating one flag.
type EvaluationResult[T any] struct {
	Value     T              `json:"value"`
	Reason    Reason         `json:"reason"`
	Variant   string         `json:"variant,omitempty"`
	ErrorCode ErrorCode      `json:"error_code,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Resolution is the untyped outcome of evaluating one flag. It does not depend
// on the caller's default value, so it can be cached and shared between typed
// getters.
type Resolution struct {
	Reason    Reason
	Variant   string
	Value     value.Value
	HasValue  bool
	ErrorCode ErrorCode
	FlagKey   string
	RuleIndex int
	Bucket    int
}

func (r Resolution) metadata() map[string]any {
	if r.FlagKey == "" {
		return nil
	}
	md := map[string]any{MetaFlagKey: r.FlagKey}
	if r.Reason == ReasonDefault || r.Reason == ReasonTargetingMatch {
		md[MetaRuleIndex] = r.RuleIndex
		md[MetaBucket] = r.Bucket
	}
	return md
}
