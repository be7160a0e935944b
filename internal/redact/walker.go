package redact

// Walk redacts every string reachable inside a JSON-shaped value and
// returns a new value of identical shape: same map keys, same slice
// lengths, non-string leaves untouched. Map keys are never redacted.
func Walk(v any) (any, int, []string) {
	sum := NewSummary()
	out := WalkInto(v, sum)
	return out, sum.Count(), sum.Types()
}

// WalkInto is the accumulating form of Walk. The input value is not
// mutated; maps and slices are rebuilt.
func WalkInto(v any, sum *Summary) any {
	switch val := v.(type) {
	case string:
		return StringInto(val, sum)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = WalkInto(elem, sum)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = WalkInto(elem, sum)
		}
		return out
	default:
		return v
	}
}
