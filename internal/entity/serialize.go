package entity

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// FieldFilter decides whether a field of a serialized entity is included
// on the wire. Returning false drops the field.
type FieldFilter func(typename, field string, value any) bool

// ToDict serializes e into a wire-ready record. The Serializer capability
// is used when present; otherwise fields are reflected from map keys or
// exported struct fields, skipping privately-named "_" keys. Values are
// normalized recursively: primitives pass through, times become RFC 3339
// strings, slices map element-wise, plain records recurse, and any nested
// value that itself looks like an entity collapses to the two-field
// {typename, id} stub, so the cascade stays flat and related entities
// appear as their own top-level entries. Panics from capability methods or
// filters are recovered and returned as errors.
func ToDict(e any, typename string, filter FieldFilter) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("serialize %s: %v", typename, r)
		}
	}()

	if s, ok := e.(Serializer); ok {
		d := s.EntityDict()
		out = make(map[string]any, len(d))
		for k, v := range d {
			if filter != nil && !filter(typename, k, v) {
				continue
			}
			out[k] = normalize(v)
		}
		return out, nil
	}

	if m, ok := e.(map[string]any); ok {
		out = make(map[string]any, len(m))
		for k, v := range m {
			if strings.HasPrefix(k, "_") {
				continue
			}
			if filter != nil && !filter(typename, k, v) {
				continue
			}
			out[k] = normalize(v)
		}
		return out, nil
	}

	rv := indirect(reflect.ValueOf(e))
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot serialize %T as %s", e, typename)
	}
	rt := rv.Type()
	out = make(map[string]any, rt.NumField())
	for i := range rt.NumField() {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := fieldName(sf)
		if name == "-" {
			continue
		}
		v := rv.Field(i).Interface()
		if filter != nil && !filter(typename, name, v) {
			continue
		}
		out[name] = normalize(v)
	}
	return out, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return x
	}

	if IsEntity(v) {
		if ref, err := Resolve(v); err == nil {
			return map[string]any{"typename": ref.Typename, "id": ref.ID}
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if m, ok := v.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for k, val := range m {
				if strings.HasPrefix(k, "_") {
					continue
				}
				out[k] = normalize(val)
			}
			return out
		}
		return v
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Struct:
		rt := rv.Type()
		out := make(map[string]any, rt.NumField())
		for i := range rt.NumField() {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := fieldName(sf)
			if name == "-" {
				continue
			}
			out[name] = normalize(rv.Field(i).Interface())
		}
		return out
	}
	return v
}

func fieldName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return sf.Name
	}
	return name
}
