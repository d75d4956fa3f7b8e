package feature

import (
	"time"

	"github.com/dmitrymomot/flagsync/pkg/value"
)

// Operator names a constraint comparison.
type Operator string

const (
	OpEquals             Operator = "eq"
	OpNotEquals          Operator = "neq"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "notContains"
	OpStartsWith         Operator = "startsWith"
	OpEndsWith           Operator = "endsWith"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "notIn"
	OpGreaterThan        Operator = "greaterThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThan           Operator = "lessThan"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpMatches            Operator = "matches"
)

// TargetingKeyField addresses the targeting key from a constraint.
const TargetingKeyField = "targetingKey"

// Feature is a single flag definition. Features are immutable once parsed and
// are replaced wholesale on every configuration change.
type Feature struct {
	Key     string `json:"key"`
	Enabled bool   `json:"enabled"`

	// RolloutPercentage limits the flag to a share of targeting keys.
	// Nil means 100.
	RolloutPercentage *int `json:"rollout_percentage,omitempty"`

	Rules       []Rule             `json:"rules,omitempty"`
	DefaultRule Rule               `json:"default_rule"`
	Variants    map[string]Variant `json:"variants"`
	UpdatedAt   time.Time          `json:"updated_at,omitzero"`
}

// Rollout returns the effective rollout percentage.
func (f *Feature) Rollout() int {
	if f.RolloutPercentage == nil {
		return 100
	}
	return *f.RolloutPercentage
}

// Rule matches when all of its constraints match.
type Rule struct {
	Constraints []Constraint `json:"constraints,omitempty"`
	Allocations []Allocation `json:"allocations"`
}

// Constraint compares one context field against a value.
type Constraint struct {
	ContextField string      `json:"context_field"`
	Operator     Operator    `json:"operator"`
	Value        value.Value `json:"value"`
}

// Allocation assigns a percentage of buckets to a variant.
type Allocation struct {
	VariantKey string `json:"variant_key"`
	Percentage int    `json:"percentage"`
}

// Variant is a named flag value.
type Variant struct {
	Key   string      `json:"key"`
	Value value.Value `json:"value"`
}

// Schema is the flag configuration payload served by the config API.
type Schema struct {
	Features []Feature `json:"features"`

	// UpdatedAt is the server-side modification time in seconds.
	UpdatedAt float64 `json:"updated_at,omitempty"`
}
