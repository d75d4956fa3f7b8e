// Package feature implements the flag data model and the deterministic evaluator.
//
// A configuration payload (Schema) holds a list of features. Each Feature has
// ordered targeting rules, a default rule, and a set of named variants. A rule
// matches when every one of its constraints holds for the evaluation context;
// the first matching rule wins, otherwise the default rule applies.
//
// # Evaluation
//
// Evaluation is a pure function of the feature and the context:
//
//	ec, err := feature.NewEvaluationContext("user-42", map[string]any{"country": "US"})
//	if err != nil {
//		return err
//	}
//	res := feature.Evaluate("new-checkout", false, flag, ec)
//	if res.Value {
//		// show the new checkout
//	}
//
// The targeting key is hashed together with the flag key (MD5, low 64 bits,
// sign bit cleared, modulo 100) and the resulting bucket is walked through the
// winning rule's allocations in declared order. The same key always lands in
// the same bucket, so assignment is stable across calls and processes.
//
// Resolve and Finish split Evaluate into a default-independent step and a
// typing step. Resolutions can be cached per flag and context fingerprint and
// then served to any typed getter.
//
// # Reasons
//
//   - UNKNOWN: the flag does not exist (error code FLAG_NOT_FOUND)
//   - DISABLED: the flag is switched off
//   - DEFAULT: the default rule applied, or no allocation covered the bucket
//   - TARGETING_MATCH: a targeting rule applied
//   - ERROR: the variant was missing or could not be converted to the requested type
//
// Whenever no variant value is served the caller's default is returned.
//
// # Parsing
//
// ParseSchema validates payloads against an embedded JSON schema before
// decoding and then checks invariants such as allocation sums not exceeding
// 100. Invalid payloads are rejected with ErrInvalidSchema.
package feature
