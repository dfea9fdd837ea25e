package mongodb

import (
	"time"

	"carelog/internal/docstore/domain/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalizeFields converts driver-decoded values into the plain Go types the codec expects.
func normalizeFields(m map[string]interface{}) model.Fields {
	if m == nil {
		return model.Fields{}
	}
	out := make(model.Fields, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.D:
		out := make(model.Fields, len(t))
		for _, e := range t {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case primitive.M:
		return normalizeFields(t)
	case map[string]interface{}:
		return normalizeFields(t)
	case model.Fields:
		return normalizeFields(t)
	case primitive.A:
		return normalizeArray(t)
	case []interface{}:
		return normalizeArray(t)
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.Decimal128:
		return t.String()
	}
	return v
}

func normalizeArray(in []interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, e := range in {
		out[i] = normalizeValue(e)
	}
	return out
}
