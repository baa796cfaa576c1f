// Package docfield navigates dotted paths into a parsed JSON document
// (the tree produced by encoding/json.Unmarshal into `any`) the way the
// document store and expression evaluator both need to.
package docfield

import "strings"

// Type classifies what a dotted path resolves to.
type Type int

const (
	TypeNull Type = iota
	TypeBool
	TypeInt64
	TypeDouble
	TypeString
	TypeArray
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt64:
		return "INT64"
	case TypeDouble:
		return "DOUBLE"
	case TypeString:
		return "STRING"
	case TypeArray:
		return "ARRAY"
	case TypeObject:
		return "OBJECT"
	default:
		return "NULL"
	}
}

// splitPath splits a dotted path into components, returning false if any
// component is empty — an empty component always means "no field".
func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

// navigate walks doc following parts, short-circuiting to (nil, false)
// the moment an intermediate object is missing or not an object.
func navigate(doc any, parts []string) (any, bool) {
	cur := doc
	for _, key := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		val, present := obj[key]
		if !present {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

// GetField navigates dotted path components into doc and returns a
// scalar value (bool, float64, or string) when the resolved node is a
// scalar. Arrays, objects, and missing paths all report ok=false — they
// are not convertible to a scalar.
func GetField(doc any, path string) (any, bool) {
	parts, ok := splitPath(path)
	if !ok {
		return nil, false
	}
	val, ok := navigate(doc, parts)
	if !ok {
		return nil, false
	}
	switch v := val.(type) {
	case bool, float64, string:
		return v, true
	default:
		return nil, false
	}
}

// HasField reports whether path resolves to any value at all (scalar,
// array, object, or explicit null), as opposed to a missing path.
func HasField(doc any, path string) bool {
	parts, ok := splitPath(path)
	if !ok {
		return false
	}
	_, ok = navigate(doc, parts)
	return ok
}

// FieldType classifies the JSON value a dotted path resolves to.
func FieldType(doc any, path string) Type {
	parts, ok := splitPath(path)
	if !ok {
		return TypeNull
	}
	val, ok := navigate(doc, parts)
	if !ok {
		return TypeNull
	}
	switch v := val.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case string:
		return TypeString
	case float64:
		if v == float64(int64(v)) {
			return TypeInt64
		}
		return TypeDouble
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return TypeNull
	}
}

// AsFloat64 coerces a scalar resolved from GetField to a float64, the
// representation used throughout numeric query and aggregation code.
func AsFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
