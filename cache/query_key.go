package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// QueryType tags the variant a cache key was derived for.
type QueryType string

const (
	QueryTypeAny      QueryType = "any"
	QueryTypeQuery    QueryType = "query"
	QueryTypeMutation QueryType = "mutation"
	QueryTypeInfinite QueryType = "infinite"
)

// KeyMeta carries the optional input and variant tag of a Key.
// Field order is significant: input is always encoded before type.
type KeyMeta struct {
	Input any       `json:"input,omitempty"`
	Type  QueryType `json:"type,omitempty"`
}

// Key is the normalized address of a procedure result in the query cache.
// Its array form is [path] or [path, meta], and the empty key is [].
type Key struct {
	Path []string
	Meta *KeyMeta
}

// ComputeKey derives the cache key for a procedure path, its input and the query variant.
// A nil input stands for "no input". The meta element is only present when an input was
// given or the variant is not QueryTypeAny.
func ComputeKey(path []string, input any, queryType QueryType) Key {
	segments := make([]string, len(path))
	copy(segments, path)

	if queryType == "" {
		queryType = QueryTypeAny
	}

	if isNilInput(input) {
		input = nil
	}

	if input == nil && queryType == QueryTypeAny {
		return Key{Path: segments}
	}

	meta := &KeyMeta{Input: input}
	if queryType != QueryTypeAny {
		meta.Type = queryType
	}
	return Key{Path: segments, Meta: meta}
}

// isNilInput reports whether v is nil or a nil pointer, map, slice or interface.
func isNilInput(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// IsEmpty reports whether the key addresses the whole cache.
func (k Key) IsEmpty() bool {
	return len(k.Path) == 0 && k.Meta == nil
}

// Input returns the input carried by the key, if any.
func (k Key) Input() any {
	if k.Meta == nil {
		return nil
	}
	return k.Meta.Input
}

// Type returns the variant carried by the key, QueryTypeAny when untagged.
func (k Key) Type() QueryType {
	if k.Meta == nil || k.Meta.Type == "" {
		return QueryTypeAny
	}
	return k.Meta.Type
}

// Parts returns the array form of the key.
func (k Key) Parts() []any {
	if k.IsEmpty() {
		return []any{}
	}

	path := make([]string, len(k.Path))
	copy(path, k.Path)

	if k.Meta == nil {
		return []any{path}
	}

	meta := map[string]any{}
	if k.Meta.Input != nil {
		meta["input"] = k.Meta.Input
	}
	if k.Meta.Type != "" {
		meta["type"] = string(k.Meta.Type)
	}
	return []any{path, meta}
}

// Normalized returns a copy of k whose input is in its JSON value form, so codecs
// that ignore json struct tags transfer the same input the client computes.
func (k Key) Normalized() Key {
	out := Key{Path: k.Path}
	if k.Meta != nil {
		out.Meta = &KeyMeta{Input: plainValue(normalizeInput(k.Meta.Input)), Type: k.Meta.Type}
	}
	return out
}

// plainValue replaces json.Number values with int64 or float64.
func plainValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for field, value := range t {
			t[field] = plainValue(value)
		}
		return t
	case []any:
		for i, value := range t {
			t[i] = plainValue(value)
		}
		return t
	}
	return v
}

// String renders the key in its JSON array form.
func (k Key) String() string {
	data, err := k.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", k.Parts())
	}
	return string(data)
}

// MarshalJSON encodes the key in its array form.
func (k Key) MarshalJSON() ([]byte, error) {
	if k.IsEmpty() {
		return []byte("[]"), nil
	}

	path := k.Path
	if path == nil {
		path = []string{}
	}

	if k.Meta == nil {
		return json.Marshal([]any{path})
	}
	return json.Marshal([]any{path, k.Meta})
}

// UnmarshalJSON decodes the array form produced by MarshalJSON.
func (k *Key) UnmarshalJSON(data []byte) error {
	var parts []any
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}

	key, err := KeyFromParts(parts)
	if err != nil {
		return err
	}
	*k = key
	return nil
}

// KeyFromParts rebuilds a Key from its array form, as decoded by a generic codec.
func KeyFromParts(parts []any) (Key, error) {
	switch len(parts) {
	case 0:
		return Key{}, nil
	case 1, 2:
	default:
		return Key{}, fmt.Errorf("cache key: expected at most 2 elements, got %d", len(parts))
	}

	path, err := toStringSlice(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("cache key path: %w", err)
	}

	key := Key{Path: path}
	if len(parts) == 1 || parts[1] == nil {
		return key, nil
	}

	meta, ok := toStringMap(parts[1])
	if !ok {
		return Key{}, fmt.Errorf("cache key meta: expected object, got %T", parts[1])
	}

	key.Meta = &KeyMeta{Input: meta["input"]}
	if t, ok := meta["type"]; ok {
		s, ok := t.(string)
		if !ok {
			return Key{}, fmt.Errorf("cache key type: expected string, got %T", t)
		}
		key.Meta.Type = QueryType(s)
	}
	return key, nil
}

// Matches reports whether k is addressed by filter. With exact set both keys must serialize
// identically, otherwise the filter path must be a prefix of k's path and every meta field
// present in the filter must partially match.
func (k Key) Matches(filter Key, exact bool) bool {
	if exact {
		return defaultSerializer.SerializeKey(k) == defaultSerializer.SerializeKey(filter)
	}

	if len(filter.Path) > len(k.Path) {
		return false
	}
	for i, segment := range filter.Path {
		if k.Path[i] != segment {
			return false
		}
	}

	if filter.Meta == nil {
		return true
	}
	if filter.Meta.Type != "" && filter.Meta.Type != k.Type() {
		return false
	}
	if filter.Meta.Input != nil {
		return partialMatch(normalizeInput(k.Input()), normalizeInput(filter.Meta.Input))
	}
	return true
}

// partialMatch reports whether every field of want is present and equal in got.
func partialMatch(got, want any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for field, value := range w {
			if !partialMatch(g[field], value) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) < len(w) {
			return false
		}
		for i := range w {
			if !partialMatch(g[i], w[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(got, want)
	}
}

func toStringSlice(v any) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return append([]string{}, s...), nil
	case []any:
		out := make([]string, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("segment %d: expected string, got %T", i, item)
			}
			out[i] = str
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array of strings, got %T", v)
	}
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for key, value := range m {
			s, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[s] = value
		}
		return out, true
	default:
		return nil, false
	}
}
