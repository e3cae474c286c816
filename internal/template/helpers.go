package template

import (
	"sort"

	jsoniter "github.com/goccy/go-json"
	"github.com/samber/lo"
)

// Helper is a pure function over already-resolved argument values; per
// spec.md §9 it must never touch the render context.
type Helper func(args []any) (any, error)

// Entry is the {key, value} pair shape entries() produces. Types that want
// deterministic, insertion-ordered entries() output (notably row.Row)
// implement EntryLister instead of relying on the map[string]any fallback
// below, since Go maps do not preserve insertion order.
type Entry struct {
	Key   string
	Value any
}

// EntryLister is implemented by ordered key/value containers (row.Row) so
// entries() can report pairs in their original column order.
type EntryLister interface {
	Entries() []Entry
}

// Builtins returns the three helpers spec.md §4.2 requires, registered
// under the template registry's helper table.
func Builtins() map[string]Helper {
	return map[string]Helper{
		"stringify": stringifyHelper,
		"default":   defaultHelper,
		"entries":   entriesHelper,
	}
}

func stringifyHelper(args []any) (any, error) {
	var v any
	if len(args) > 0 {
		v = args[0]
	}
	b, err := jsoniter.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func defaultHelper(args []any) (any, error) {
	var a, b any
	if len(args) > 0 {
		a = args[0]
	}
	if len(args) > 1 {
		b = args[1]
	}
	if a == nil {
		return b, nil
	}
	return a, nil
}

func entriesHelper(args []any) (any, error) {
	var v any
	if len(args) > 0 {
		v = args[0]
	}

	switch val := v.(type) {
	case EntryLister:
		out := make([]map[string]any, 0, len(val.Entries()))
		for _, e := range val.Entries() {
			out = append(out, map[string]any{"key": e.Key, "value": e.Value})
		}
		return out, nil

	case []any:
		return lo.Map(val, func(item any, i int) map[string]any {
			return map[string]any{"key": i, "value": item}
		}), nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]map[string]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, map[string]any{"key": k, "value": val[k]})
		}
		return out, nil

	default:
		return []map[string]any{}, nil
	}
}
