package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between serialized key segments.
const KeySeparator = "::"

// KeySerializer turns a Key into the string address used by cache stores.
// Implementations must return identical strings for keys built from the same
// path, input and variant, and distinct strings otherwise.
type KeySerializer interface {
	SerializeKey(key Key) string
}

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Inputs are first normalized through their JSON form so that a struct and the map
// decoded from its JSON share an address, then serialized deterministically.
type defaultKeySerializer struct{}

var defaultSerializer = &defaultKeySerializer{}

// NewDefaultKeySerializer returns the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultSerializer
}

// SerializeKey builds the storage address for key.
func (s *defaultKeySerializer) SerializeKey(key Key) string {
	parts := []string{s.serializeSlice(reflect.ValueOf(key.Path))}

	if key.Meta != nil {
		if input := normalizeInput(key.Meta.Input); input != nil {
			parts = append(parts, "input="+s.serializeValue(input))
		}
		if key.Meta.Type != "" {
			parts = append(parts, "type="+string(key.Meta.Type))
		}
	}

	return strings.Join(parts, KeySeparator)
}

// normalizeInput converts v into its JSON value form (maps, slices, strings, numbers, bools).
// Values that cannot be represented in JSON are returned unchanged.
func normalizeInput(v any) any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}

// serializeValue handles individual value serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	if n, ok := v.(json.Number); ok {
		return "num:" + n.String()
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeSlice(rv)
	case reflect.Array:
		return s.serializeArray(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.String:
		return strconv.Quote(rv.String())
	}

	if s.isBasicType(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

// serializeSlice handles slice serialization recursively
func (s *defaultKeySerializer) serializeSlice(rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("slice[%d]:{%s}", length, strings.Join(parts, ","))
}

// serializeArray handles array serialization
func (s *defaultKeySerializer) serializeArray(rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("array[%d]:{%s}", length, strings.Join(parts, ","))
}

// serializeMap handles map serialization with sorted keys for determinism
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		keyStr := s.serializeValue(iter.Key().Interface())
		valueStr := s.serializeValue(iter.Value().Interface())
		pairs = append(pairs, keyStr+"="+valueStr)
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct handles struct serialization with field names
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	numFields := rv.NumField()
	parts := make([]string, 0, numFields)

	for i := 0; i < numFields; i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, fmt.Sprintf("%s:%s", field.Name, s.serializeValue(fieldValue.Interface())))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// isBasicType checks if a kind represents a basic Go type
func (s *defaultKeySerializer) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// jsonFallback provides JSON serialization as a last resort
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%s", reflect.TypeOf(v).String())
	}
	return fmt.Sprintf("json:%s", string(data))
}
