// Package codec maps typed records to and from the generic field map stored by the backends.
//
// Struct fields are named by the doc tag: `doc:"fullName"`, `doc:"notes,omitempty"`, or
// `doc:"-"` for fields that are never stored. Untagged exported fields use their Go name
// with the first letter lowered. Pointer, slice, map and omitempty fields are optional and
// decode to their zero value (nil for pointers) when absent; every other field is required.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/shared/errors"
)

const tagName = "doc"

var (
	timeType   = reflect.TypeOf(time.Time{})
	bytesType  = reflect.TypeOf([]byte(nil))
	fieldsType = reflect.TypeOf(model.Fields{})
)

type fieldInfo struct {
	index     []int
	name      string
	optional  bool
	omitEmpty bool
}

var structCache sync.Map // reflect.Type -> []fieldInfo

func structFields(t reflect.Type) ([]fieldInfo, error) {
	if cached, ok := structCache.Load(t); ok {
		return cached.([]fieldInfo), nil
	}
	out, err := collectFields(t, nil)
	if err != nil {
		return nil, err
	}
	structCache.Store(t, out)
	return out, nil
}

// collectFields walks t; untagged embedded structs contribute their fields inline.
func collectFields(t reflect.Type, parent []int) ([]fieldInfo, error) {
	var out []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, hasTag := sf.Tag.Lookup(tagName)
		if tag == "-" {
			continue
		}
		index := append(append([]int(nil), parent...), i)

		if sf.Anonymous && !hasTag && sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			inner, err := collectFields(sf.Type, index)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if sf.Type == bytesType {
			return nil, errors.NewConfigurationError("binary fields must be tagged doc:\"-\" and stored in the blob store").
				WithDetail("type", t.String()).
				WithDetail("field", sf.Name)
		}

		name, opts, _ := strings.Cut(tag, ",")
		if !hasTag || name == "" {
			name = lowerFirst(sf.Name)
		}
		omitEmpty := opts == "omitempty"
		out = append(out, fieldInfo{
			index:     index,
			name:      name,
			omitEmpty: omitEmpty,
			optional:  omitEmpty || isNillable(sf.Type.Kind()),
		})
	}
	return out, nil
}

func isNillable(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

// Encode returns the stored field map of a struct or pointer to struct.
func Encode(v interface{}) (model.Fields, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, errors.NewConfigurationError("cannot encode a nil record")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.NewConfigurationError("only structs can be encoded").
			WithDetail("type", fmt.Sprintf("%T", v))
	}
	return encodeStruct(rv)
}

func encodeStruct(rv reflect.Value) (model.Fields, error) {
	infos, err := structFields(rv.Type())
	if err != nil {
		return nil, err
	}
	out := make(model.Fields, len(infos))
	for _, fi := range infos {
		fv := rv.FieldByIndex(fi.index)
		if fi.omitEmpty && fv.IsZero() {
			continue
		}
		if isNillable(fv.Kind()) && fv.IsNil() {
			continue
		}
		val, err := encodeValue(fv)
		if err != nil {
			return nil, err
		}
		out[fi.name] = val
	}
	return out, nil
}

func encodeValue(v reflect.Value) (interface{}, error) {
	if v.Type() == timeType {
		return v.Interface().(time.Time).UTC(), nil
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return encodeValue(v.Elem())
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, errors.NewConfigurationError("unsigned value overflows a stored integer").
				WithDetail("value", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Struct:
		return encodeStruct(v)
	case reflect.Slice, reflect.Array:
		if v.Type() == bytesType {
			return nil, errors.NewConfigurationError("binary values cannot be stored as fields")
		}
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			e, err := encodeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, errors.NewConfigurationError("map keys must be strings").
				WithDetail("type", v.Type().String())
		}
		out := make(model.Fields, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			e, err := encodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = e
		}
		return out, nil
	}
	return nil, errors.NewConfigurationError("unsupported field type").
		WithDetail("type", v.Type().String())
}

// EncodeValue widens a single value to its stored form: named numeric and string types
// become int64, float64 and string, structs become field maps. A model.Value is unwrapped.
func EncodeValue(v interface{}) (interface{}, error) {
	if tv, ok := v.(model.Value); ok {
		v = tv.Interface()
	}
	if v == nil {
		return nil, nil
	}
	return encodeValue(reflect.ValueOf(v))
}

// Decode fills the struct out points to. Unknown fields are ignored.
func Decode(fields model.Fields, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.NewConfigurationError("decode target must be a non-nil pointer to a struct").
			WithDetail("type", fmt.Sprintf("%T", out))
	}
	return decodeStruct("", fields, rv.Elem())
}

func decodeStruct(prefix string, fields map[string]interface{}, rv reflect.Value) error {
	infos, err := structFields(rv.Type())
	if err != nil {
		return err
	}
	for _, fi := range infos {
		path := joinPath(prefix, fi.name)
		raw, present := fields[fi.name]
		if !present || raw == nil {
			if fi.optional {
				continue
			}
			if !present {
				return errors.NewDecodeError(path, "missing required field")
			}
			return errors.NewDecodeError(path, "null value for required field")
		}
		if err := decodeValue(path, raw, rv.FieldByIndex(fi.index)); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func mismatch(path string, raw interface{}, want reflect.Type) error {
	return errors.NewDecodeError(path, fmt.Sprintf("cannot use %T as %s", raw, want))
}

func decodeValue(path string, raw interface{}, dst reflect.Value) error {
	t := dst.Type()

	if t == timeType {
		ts, ok := asTime(raw)
		if !ok {
			return mismatch(path, raw, t)
		}
		dst.Set(reflect.ValueOf(ts))
		return nil
	}

	switch t.Kind() {
	case reflect.Ptr:
		if raw == nil {
			dst.Set(reflect.Zero(t))
			return nil
		}
		elem := reflect.New(t.Elem())
		if err := decodeValue(path, raw, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case reflect.Interface:
		if raw != nil {
			dst.Set(reflect.ValueOf(raw))
		}
		return nil
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return mismatch(path, raw, t)
		}
		dst.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return mismatch(path, raw, t)
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := asInt(raw)
		if !ok || dst.OverflowInt(i) {
			return mismatch(path, raw, t)
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, ok := asInt(raw)
		if !ok || i < 0 || dst.OverflowUint(uint64(i)) {
			return mismatch(path, raw, t)
		}
		dst.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := asFloat(raw)
		if !ok {
			return mismatch(path, raw, t)
		}
		dst.SetFloat(f)
		return nil
	case reflect.Struct:
		m, ok := asMap(raw)
		if !ok {
			return mismatch(path, raw, t)
		}
		return decodeStruct(path, m, dst)
	case reflect.Slice:
		arr, ok := raw.([]interface{})
		if !ok {
			return mismatch(path, raw, t)
		}
		out := reflect.MakeSlice(t, len(arr), len(arr))
		for i, e := range arr {
			if err := decodeValue(fmt.Sprintf("%s[%d]", path, i), e, out.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.Map:
		m, ok := asMap(raw)
		if !ok || t.Key().Kind() != reflect.String {
			return mismatch(path, raw, t)
		}
		out := reflect.MakeMapWithSize(t, len(m))
		for k, e := range m {
			ev := reflect.New(t.Elem()).Elem()
			if err := decodeValue(joinPath(path, k), e, ev); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		dst.Set(out)
		return nil
	}
	return mismatch(path, raw, t)
}

func asMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case model.Fields:
		return m, true
	case map[string]interface{}:
		return m, true
	}
	rv := reflect.ValueOf(raw)
	if rv.IsValid() && rv.Type().ConvertibleTo(fieldsType) {
		return rv.Convert(fieldsType).Interface().(model.Fields), true
	}
	return nil, false
}

func asInt(raw interface{}) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	i := int64(f)
	return i, float64(i) == f
}

func asFloat(raw interface{}) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInt(raw); ok {
		return float64(i), true
	}
	return 0, false
}

func asTime(raw interface{}) (time.Time, bool) {
	switch ts := raw.(type) {
	case time.Time:
		return ts.UTC(), true
	case *time.Time:
		if ts == nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}
