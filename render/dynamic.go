package render

import (
	jsoniter "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/sqlview/rowpage/internal/row"
)

// expandDynamicProperties turns a dynamic row's "properties" control column
// into the list of rows it should be re-injected as, per spec.md §4.5: a
// JSON string parsing to an array of objects or a single object, or
// already an object, or already an array of objects.
//
// A string value is sniffed with gjson first (cheap shape check, and
// cheap per-element iteration over a JSON array) so a malformed element
// deep in a large properties blob is reported without decoding the whole
// document into a generic any first.
func expandDynamicProperties(raw any) ([]*row.Row, error) {
	if s, ok := raw.(string); ok {
		return expandDynamicJSON(s)
	}

	switch v := raw.(type) {
	case map[string]any:
		return []*row.Row{rowFromMap(v)}, nil

	case []any:
		out := make([]*row.Row, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, newBadDynamicError("properties array must contain only objects")
			}
			out = append(out, rowFromMap(m))
		}
		return out, nil

	case nil:
		return nil, newBadDynamicError("properties is missing")

	default:
		return nil, newBadDynamicError("properties must be an object, an array of objects, or JSON text thereof")
	}
}

// expandDynamicJSON handles the string-valued case of expandDynamicProperties.
func expandDynamicJSON(s string) ([]*row.Row, error) {
	if !gjson.Valid(s) {
		return nil, newBadDynamicError("properties string is not valid JSON")
	}

	parsed := gjson.Parse(s)
	switch {
	case parsed.IsArray():
		var out []*row.Row
		var elemErr error
		parsed.ForEach(func(_, val gjson.Result) bool {
			if !val.IsObject() {
				elemErr = newBadDynamicError("properties array must contain only objects")
				return false
			}
			var m map[string]any
			if err := jsoniter.Unmarshal([]byte(val.Raw), &m); err != nil {
				elemErr = newBadDynamicError("properties string is not valid JSON: " + err.Error())
				return false
			}
			out = append(out, rowFromMap(m))
			return true
		})
		if elemErr != nil {
			return nil, elemErr
		}
		return out, nil

	case parsed.IsObject():
		var m map[string]any
		if err := jsoniter.Unmarshal([]byte(s), &m); err != nil {
			return nil, newBadDynamicError("properties string is not valid JSON: " + err.Error())
		}
		return []*row.Row{rowFromMap(m)}, nil

	default:
		return nil, newBadDynamicError("properties must be an object, an array of objects, or JSON text thereof")
	}
}

func rowFromMap(m map[string]any) *row.Row {
	r := row.New()
	for k, v := range m {
		r.Set(k, v)
	}
	return r
}
