// Package entry defines the configuration record returned by a device and
// the canonical text form of its field values.
package entry

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Well-known record keys.
const (
	IDKey       = ".id"
	DynamicKey  = "dynamic"
	BuiltinKey  = "builtin"
	DisabledKey = "disabled"
)

// Record is one configuration item keyed by field name. Values are scalars:
// nil, string, bool, integers or floats.
type Record map[string]any

// ID returns the protocol-assigned identifier, or "" if the record has none.
func (r Record) ID() string {
	v, ok := r[IDKey]
	if !ok || v == nil {
		return ""
	}
	return Text(v, true)
}

// IsDynamic reports whether the device created the record on its own.
func (r Record) IsDynamic() bool { return r.flag(DynamicKey) }

// IsBuiltin reports whether the record is part of the default configuration.
func (r Record) IsBuiltin() bool { return r.flag(BuiltinKey) }

// IsDisabled reports whether the record is administratively disabled.
func (r Record) IsDisabled() bool { return r.flag(DisabledKey) }

func (r Record) flag(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes"
	default:
		return false
	}
}

// Has reports whether the field is present, even with a nil value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CloneAll copies every record of the list.
func CloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Equal compares two values including their dynamic type, so the integer 1
// and the string "1" are different.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// ValueToString converts a value into the text the protocol expects.
// Booleans become yes/no, or true/false when compatBool is set. A nil value
// yields nil unless noneToEmpty is set, in which case it yields "".
func ValueToString(v any, compatBool, noneToEmpty bool) *string {
	if v == nil {
		if noneToEmpty {
			s := ""
			return &s
		}
		return nil
	}
	s := format(v, compatBool)
	return &s
}

// Text is ValueToString for callers that want "" in place of nil.
func Text(v any, compatBool bool) string {
	if v == nil {
		return ""
	}
	return format(v, compatBool)
}

func format(v any, compatBool bool) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if compatBool {
			return strconv.FormatBool(x)
		}
		if x {
			return "yes"
		}
		return "no"
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(x).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(x).Uint(), 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ParseWord converts a value received as text back into a typed value:
// yes/true and no/false become booleans and decimal integers become int.
// Everything else stays a string.
func ParseWord(s string) any {
	switch s {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	return s
}
