// Package value implements the dynamic JSON-like value used for flag variants,
// constraint operands and evaluation-context attributes.
//
// A Value is a tagged union over null, bool, int, double, string, list and map.
// Conversions to and from host Go values go through FromAny and Value.Any, both
// written as exhaustive type switches, so the set of supported shapes is closed
// and explicit.
//
// # Usage
//
//	v, err := value.FromAny(map[string]any{"plan": "pro", "seats": 5})
//	if err != nil {
//		return err
//	}
//	seats, ok := v.Get("seats")
//	n, _ := seats.AsInt() // 5
//
// JSON numbers without a fractional part decode as Int, everything else as
// Double. Int and Double compare equal when they hold the same number.
package value
