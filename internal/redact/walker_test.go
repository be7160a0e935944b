package redact

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestWalk_Structures(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		want      any
		wantCount int
	}{
		{
			"nested map and list",
			map[string]any{
				"user":  "bob@example.com",
				"items": []any{"123-45-6789", 42.0, true},
				"inner": map[string]any{"note": "clean"},
			},
			map[string]any{
				"user":  "b***@example.com",
				"items": []any{"***-**-****", 42.0, true},
				"inner": map[string]any{"note": "clean"},
			},
			2,
		},
		{
			"keys are never redacted",
			map[string]any{"admin@corp.io": "admin@corp.io"},
			map[string]any{"admin@corp.io": "a***@corp.io"},
			1,
		},
		{
			"non-string leaves pass through",
			[]any{1.0, nil, false},
			[]any{1.0, nil, false},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, count, _ := Walk(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Walk = %#v, want %#v", got, tt.want)
			}
			if count != tt.wantCount {
				t.Errorf("count = %d, want %d", count, tt.wantCount)
			}
		})
	}
}

func TestWalk_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"email": "a@b.io", "list": []any{"c@d.io"}}
	Walk(in)
	if in["email"] != "a@b.io" || in["list"].([]any)[0] != "c@d.io" {
		t.Errorf("input mutated: %#v", in)
	}
}

// anyType is the reflect.Type of the empty interface, used to force a
// generator's ResultType to interface{} so OneGenOf branches with differing
// concrete types can be boxed homogeneously for SliceOfN/MapOf.
var anyType = reflect.TypeOf((*any)(nil)).Elem()

// boxAsAny rewraps a generator's result so its ResultType is interface{}
// instead of the underlying concrete type. gopter.Gen.Map cannot be used for
// this: its reflection-based output-type detection treats any mapper
// function returning interface{} as returning *gopter.GenResult, since
// *GenResult is trivially assignable to the empty interface.
func boxAsAny(g gopter.Gen) gopter.Gen {
	return func(params *gopter.GenParameters) *gopter.GenResult {
		r := g(params)
		v, _ := r.Retrieve()
		return &gopter.GenResult{
			Shrinker:   gopter.NoShrinker,
			Result:     v,
			Labels:     r.Labels,
			ResultType: anyType,
		}
	}
}

// genValue builds JSON-shaped values up to a small depth.
func genValue(depth int) gopter.Gen {
	leaves := gen.OneGenOf(
		boxAsAny(gen.AlphaString()),
		boxAsAny(gen.Float64()),
		boxAsAny(gen.Bool()),
	)

	if depth <= 0 {
		return leaves
	}
	return gen.OneGenOf(
		leaves,
		boxAsAny(gen.SliceOfN(3, genValue(depth-1))),
		boxAsAny(gen.MapOf(gen.Identifier(), genValue(depth-1))),
	)
}

func TestWalk_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("shape is preserved", prop.ForAll(
		func(v any) bool {
			out, _, _ := Walk(v)
			return sameShape(v, out)
		},
		genValue(3),
	))

	properties.Property("re-redaction is a no-op", prop.ForAll(
		func(s string) bool {
			masked, _, _ := String(s)
			again, n, _ := String(masked)
			return n == 0 && again == masked
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// sameShape checks map key sets, slice lengths, and non-string leaf
// equality without comparing redacted string content.
func sameShape(a, b any) bool {
	switch av := a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !sameShape(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k := range av {
			inner, present := bv[k]
			if !present || !sameShape(av[k], inner) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}
