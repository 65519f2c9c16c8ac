// Package entity defines the duck-typed contract for tracked entities: key
// resolution from `(typename, id)`, structural entity detection, relationship
// discovery, and wire serialization. Entities have no common base type; any
// value carrying an id and a typename source qualifies. Capability interfaces
// take priority, map keys come next, and unknown shapes fall back to
// reflection over public fields.
package entity

import (
	"errors"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Identifiable reports the entity id.
type Identifiable interface {
	EntityID() string
}

// Typenamed reports the entity typename.
type Typenamed interface {
	EntityTypename() string
}

// Serializer provides a custom wire representation used instead of
// reflection when serializing the entity.
type Serializer interface {
	EntityDict() map[string]any
}

// RelationSource enumerates related entities explicitly, overriding
// reflection-based discovery.
type RelationSource interface {
	RelatedEntities() []any
}

// ErrMissingID reports an entity without a usable id. The id is required;
// its absence is a hard error.
var ErrMissingID = errors.New("entity has no id")

// Ref identifies an entity uniquely within one transaction.
type Ref struct {
	Typename string
	ID       string
}

// Key returns the composite "typename:id" key.
func (r Ref) Key() string { return r.Typename + ":" + r.ID }

// Resolve extracts the (typename, id) pair from e. The typename falls back
// to a structural name (the struct type name, or "Object" for records)
// when no explicit discriminator is present. A missing id returns
// ErrMissingID.
func Resolve(e any) (Ref, error) {
	id, ok := idOf(e)
	if !ok {
		return Ref{}, ErrMissingID
	}
	return Ref{Typename: typenameOf(e), ID: id}, nil
}

// IsEntity reports whether v structurally looks like a tracked entity: it
// carries both an id and a typename source and is not a primitive, slice,
// or plain record.
func IsEntity(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, time.Time:
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return false
	}
	if !hasTypename(v) {
		return false
	}
	_, ok := idOf(v)
	return ok
}

// Related returns entities discovered on e's public surface in a
// deterministic order: the RelationSource capability when present, else map
// keys in sorted order (privately-named "_" keys skipped), else exported
// struct fields in declaration order. Slice values contribute their
// entity-looking elements.
func Related(e any) []any {
	if rs, ok := e.(RelationSource); ok {
		return rs.RelatedEntities()
	}
	var out []any
	switch v := e.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			if strings.HasPrefix(k, "_") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectRelated(v[k], &out)
		}
	default:
		rv := indirect(reflect.ValueOf(e))
		if rv.Kind() != reflect.Struct {
			return nil
		}
		rt := rv.Type()
		for i := range rt.NumField() {
			if !rt.Field(i).IsExported() {
				continue
			}
			collectRelated(rv.Field(i).Interface(), &out)
		}
	}
	return out
}

func collectRelated(v any, out *[]any) {
	if IsEntity(v) {
		*out = append(*out, v)
		return
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		for i := range rv.Len() {
			if el := rv.Index(i).Interface(); IsEntity(el) {
				*out = append(*out, el)
			}
		}
	}
}

func idOf(e any) (string, bool) {
	if v, ok := e.(Identifiable); ok {
		id := v.EntityID()
		return id, id != ""
	}
	if m, ok := e.(map[string]any); ok {
		return formatID(m["id"])
	}
	rv := indirect(reflect.ValueOf(e))
	if rv.Kind() != reflect.Struct {
		return "", false
	}
	for _, name := range []string{"ID", "Id"} {
		if f := rv.FieldByName(name); f.IsValid() {
			return formatID(f.Interface())
		}
	}
	return "", false
}

// formatID renders string and numeric ids; JSON numbers arrive as float64.
func formatID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case int:
		return strconv.Itoa(id), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}

func typenameOf(e any) string {
	if t, ok := e.(Typenamed); ok {
		if n := t.EntityTypename(); n != "" {
			return n
		}
	}
	if m, ok := e.(map[string]any); ok {
		if s, ok := m["__typename"].(string); ok && s != "" {
			return s
		}
		if s, ok := m["_typename"].(string); ok && s != "" {
			return s
		}
		return "Object"
	}
	rv := indirect(reflect.ValueOf(e))
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName("Typename"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
			return f.String()
		}
		return rv.Type().Name()
	}
	return "Object"
}

func hasTypename(e any) bool {
	if t, ok := e.(Typenamed); ok {
		return t.EntityTypename() != ""
	}
	if m, ok := e.(map[string]any); ok {
		if s, ok := m["__typename"].(string); ok && s != "" {
			return true
		}
		if s, ok := m["_typename"].(string); ok && s != "" {
			return true
		}
		return false
	}
	rv := indirect(reflect.ValueOf(e))
	if rv.Kind() == reflect.Struct {
		f := rv.FieldByName("Typename")
		return f.IsValid() && f.Kind() == reflect.String && f.String() != ""
	}
	return false
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}
