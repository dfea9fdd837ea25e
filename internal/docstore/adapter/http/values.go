package http

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/shared/errors"
)

// decodeBody reads a JSON object. Whole numbers become int64, other numbers float64 and
// RFC 3339 strings time.Time, so stored values compare the way typed writes do.
func decodeBody(body []byte) (model.Fields, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.NewValidationError("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewValidationError("request body must be a JSON object").WithCause(err)
	}
	if raw == nil {
		return nil, errors.NewValidationError("request body must be a JSON object")
	}
	return model.Fields(normalize(raw).(map[string]interface{})), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case string:
		if ts, ok := parseTime(t); ok {
			return ts
		}
		return t
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

func parseTime(s string) (time.Time, bool) {
	// 2006-01-02T...
	if len(s) < 20 || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// toPatch turns decoded fields into a typed patch, one entry per top-level field.
func toPatch(fields model.Fields) model.Patch {
	patch := make(model.Patch, len(fields))
	for k, v := range fields {
		patch[k] = toValue(v)
	}
	return patch
}

func toValue(v interface{}) model.Value {
	switch t := v.(type) {
	case nil:
		return model.Null()
	case string:
		return model.String(t)
	case int64:
		return model.Int(t)
	case float64:
		return model.Float(t)
	case bool:
		return model.Bool(t)
	case time.Time:
		return model.Time(t)
	case map[string]interface{}:
		return model.Map(toPatch(t))
	case []interface{}:
		values := make([]model.Value, len(t))
		for i, e := range t {
			values[i] = toValue(e)
		}
		return model.Array(values...)
	}
	return model.Null()
}

// parseQueryValue types a filter value from the URL: int, float, bool, RFC 3339 time, null,
// else string. A leading quote forces a string.
func parseQueryValue(s string) interface{} {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	if s == "null" {
		return nil
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if ts, ok := parseTime(s); ok {
		return ts
	}
	return s
}

// parseQuery reads repeated where=field:op:value parameters and an optional
// orderBy=field[:desc].
func parseQuery(where []string, orderBy string) (*model.QuerySpec, error) {
	spec := model.NewQuery()
	for _, w := range where {
		parts := strings.SplitN(w, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, errors.NewValidationError("where must be field:operator:value").WithDetail("where", w)
		}
		op, err := model.ParseOperator(parts[1])
		if err != nil {
			return nil, err
		}
		spec.Where(parts[0], op, parseQueryValue(parts[2]))
	}
	if orderBy != "" {
		field, dir, _ := strings.Cut(orderBy, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			spec.OrderBy(field, false)
		case "desc":
			spec.OrderBy(field, true)
		default:
			return nil, errors.NewValidationError("orderBy direction must be asc or desc").WithDetail("orderBy", orderBy)
		}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}
