package feature

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaDefinition string

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaDefinition))
})

// ParseSchema validates a configuration payload and decodes it.
// Structural problems and invariant violations are reported as ErrInvalidSchema.
func ParseSchema(data []byte) (*Schema, error) {
	validator, err := compiledSchema()
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}

	result, err := validator.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.Join(ErrInvalidSchema, errors.New(strings.Join(msgs, "; ")))
	}

	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}
	if err := s.normalize(); err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}
	return &s, nil
}

// normalize fills variant keys from their map keys and checks the invariants
// the JSON schema cannot express.
func (s *Schema) normalize() error {
	seen := make(map[string]struct{}, len(s.Features))
	var errs []error

	for i := range s.Features {
		f := &s.Features[i]
		if _, dup := seen[f.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate feature key %q", f.Key))
			continue
		}
		seen[f.Key] = struct{}{}

		for k, v := range f.Variants {
			if v.Key == "" {
				v.Key = k
				f.Variants[k] = v
			}
		}
		if err := f.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks allocation bounds and rollout range.
func (f *Feature) Validate() error {
	if f.Key == "" {
		return errors.Join(ErrInvalidFlag, errors.New("feature key cannot be empty"))
	}
	if p := f.RolloutPercentage; p != nil && (*p < 0 || *p > 100) {
		return errors.Join(ErrInvalidFlag, fmt.Errorf("feature %q: rollout percentage %d out of range", f.Key, *p))
	}

	check := func(name string, r Rule) error {
		sum := 0
		for _, a := range r.Allocations {
			if a.Percentage < 0 || a.Percentage > 100 {
				return fmt.Errorf("feature %q: %s: allocation %q percentage %d out of range", f.Key, name, a.VariantKey, a.Percentage)
			}
			sum += a.Percentage
		}
		if sum > 100 {
			return fmt.Errorf("feature %q: %s: allocations sum to %d", f.Key, name, sum)
		}
		return nil
	}

	var errs []error
	for i, r := range f.Rules {
		if err := check(fmt.Sprintf("rule %d", i), r); err != nil {
			errs = append(errs, err)
		}
	}
	if err := check("default rule", f.DefaultRule); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidFlag, errors.Join(errs...))
	}
	return nil
}
