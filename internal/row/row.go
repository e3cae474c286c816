// Package row converts a single database row into the key-value mapping
// the template engine consumes as item data, per spec.md §4.3.
package row

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/goccy/go-json"
	"github.com/itsatony/go-cuserr"

	"github.com/sqlview/rowpage/internal/template"
)

// ErrCodeRowDecode is the stable code attached when a column value cannot
// be decoded into its declared type.
const ErrCodeRowDecode = "ROWPAGE_ROW_DECODE"

// entry is one column's name and decoded value, kept in ordinal order.
type entry struct {
	name  string
	value any
}

// Row is an ordered column-name -> value mapping. Column names are not
// guaranteed unique; per spec.md §3 (open question 2), a later column of
// the same name overwrites the earlier one in place rather than appending
// a second entry, so Raw() and Entries() both report exactly one value
// per distinct name.
type Row struct {
	entries []entry
	index   map[string]int
}

// New returns an empty Row, for callers building one outside the SQL
// decode path (dynamic-expansion re-injection, tests).
func New() *Row {
	return &Row{index: make(map[string]int)}
}

// Set assigns name to value, overwriting any existing entry of that name
// in place (ordinal-last-wins).
func (r *Row) Set(name string, value any) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[name]; ok {
		r.entries[i].value = value
		return
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, value: value})
}

// Get returns the value stored under name.
func (r *Row) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].value, true
}

// Field implements template.Fielder so a Row can serve directly as scope
// base data (and as a nested object arg to entries()).
func (r *Row) Field(name string) (any, bool) {
	return r.Get(name)
}

// Entries implements template.EntryLister in column-ordinal order.
func (r *Row) Entries() []template.Entry {
	out := make([]template.Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = template.Entry{Key: e.name, Value: e.value}
	}
	return out
}

// Raw returns a plain map copy, for callers (notably dynamic expansion)
// that need a map[string]any rather than an ordered Row.
func (r *Row) Raw() map[string]any {
	out := make(map[string]any, len(r.entries))
	for _, e := range r.entries {
		out[e.name] = e.value
	}
	return out
}

// MarshalJSON implements json.Marshaler (which goccy/go-json honors) so a
// Row stringifies to its column data. Row's backing fields are unexported,
// so without this the default stringify(.) helper call would marshal to
// the empty object.
func (r *Row) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(r.Raw())
}

// Component returns the row's "component" control column, if present and
// string-valued.
func (r *Row) Component() (string, bool) {
	v, ok := r.Get("component")
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

var floatTypes = map[string]bool{
	"REAL": true, "FLOAT": true, "NUMERIC": true,
	"FLOAT4": true, "FLOAT8": true, "DOUBLE": true,
}

var intTypes = map[string]bool{
	"INT": true, "INTEGER": true, "INT2": true, "INT4": true,
	"INT8": true, "TINYINT": true, "SMALLINT": true, "BIGINT": true,
}

var boolTypes = map[string]bool{
	"BOOL": true, "BOOLEAN": true,
}

// FromColumns decodes one row of column types and driver values into a Row,
// dispatching on each column's declared type name per spec.md §4.3.
func FromColumns(cols []*sql.ColumnType, vals []driver.Value) (*Row, error) {
	row := New()
	for i, col := range cols {
		var raw driver.Value
		if i < len(vals) {
			raw = vals[i]
		}

		v, err := decodeValue(col.DatabaseTypeName(), raw)
		if err != nil {
			return nil, cuserr.WrapStdError(err, ErrCodeRowDecode, "row column decode failed").
				WithMetadata("column", col.Name())
		}
		row.Set(col.Name(), v)
	}
	return row, nil
}

func decodeValue(typeName string, raw driver.Value) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch {
	case floatTypes[strings.ToUpper(typeName)]:
		return toFloat64(raw)
	case intTypes[strings.ToUpper(typeName)]:
		return toInt64(raw)
	case boolTypes[strings.ToUpper(typeName)]:
		return toBool(raw)
	default:
		return toString(raw), nil
	}
}

func toFloat64(raw driver.Value) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot decode %T as float", raw)
	}
}

func toInt64(raw driver.Value) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("cannot decode %T as int", raw)
	}
}

func toBool(raw driver.Value) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("cannot decode %T as bool", raw)
	}
}

func toString(raw driver.Value) string {
	switch v := raw.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
