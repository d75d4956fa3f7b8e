package feature

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/dmitrymomot/flagsync/pkg/value"
)

// EvaluationContext carries the subject of an evaluation.
type EvaluationContext struct {
	TargetingKey string
	Attributes   map[string]value.Value
}

// NewEvaluationContext converts host attributes into an EvaluationContext.
func NewEvaluationContext(targetingKey string, attrs map[string]any) (EvaluationContext, error) {
	ec := EvaluationContext{TargetingKey: targetingKey}
	if len(attrs) == 0 {
		return ec, nil
	}

	ec.Attributes = make(map[string]value.Value, len(attrs))
	for k, raw := range attrs {
		v, err := value.FromAny(raw)
		if err != nil {
			return EvaluationContext{}, errors.Join(ErrInvalidContext, fmt.Errorf("attribute %q: %w", k, err))
		}
		ec.Attributes[k] = v
	}
	return ec, nil
}

// Lookup resolves a context field. Attributes take precedence over the
// targeting key; dotted names descend into map attributes.
func (ec EvaluationContext) Lookup(field string) (value.Value, bool) {
	if v, ok := ec.Attributes[field]; ok {
		return v, true
	}
	if field == TargetingKeyField {
		if ec.TargetingKey == "" {
			return value.Value{}, false
		}
		return value.String(ec.TargetingKey), true
	}

	head, rest, found := strings.Cut(field, ".")
	if !found {
		return value.Value{}, false
	}
	cur, ok := ec.Attributes[head]
	if !ok {
		return value.Value{}, false
	}
	for _, part := range strings.Split(rest, ".") {
		if cur, ok = cur.Get(part); !ok {
			return value.Value{}, false
		}
	}
	return cur, true
}

// Fingerprint returns a stable hash of the targeting key and attributes.
// Equal contexts produce equal fingerprints regardless of map iteration order.
func (ec EvaluationContext) Fingerprint() uint64 {
	d := xxhash.New()
	writeField(d, ec.TargetingKey)

	for _, k := range slices.Sorted(maps.Keys(ec.Attributes)) {
		writeField(d, k)
		b, err := ec.Attributes[k].MarshalJSON()
		if err != nil {
			b = []byte(ec.Attributes[k].String())
		}
		writeField(d, string(b))
	}
	return d.Sum64()
}

func writeField(d *xxhash.Digest, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = d.Write(n[:])
	_, _ = d.WriteString(s)
}
