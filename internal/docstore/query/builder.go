// Package query translates backend-neutral query specs into MongoDB filter and sort documents.
package query

import (
	"carelog/internal/docstore/codec"
	"carelog/internal/docstore/domain/model"
	"carelog/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// ParentKey holds the collection path of a stored document.
	ParentKey = "parent"
	// FieldsKey holds the document body of a stored document.
	FieldsKey = "fields"
	// AndKey wraps the filter clauses, in supplied order.
	AndKey = "$and"
)

var operatorKeys = map[model.Operator]string{
	model.Equal:              "$eq",
	model.NotEqual:           "$ne",
	model.GreaterThan:        "$gt",
	model.GreaterThanOrEqual: "$gte",
	model.LessThan:           "$lt",
	model.LessThanOrEqual:    "$lte",
}

// NativeQuery is the backend form of a query against one collection.
type NativeQuery struct {
	Collection string
	Filter     bson.D
	Sort       bson.D
}

// FindOptions returns the driver options for q.
func (q NativeQuery) FindOptions() *options.FindOptions {
	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	return opts
}

// Clauses returns the per-filter clauses in the order they were supplied.
func (q NativeQuery) Clauses() []bson.D {
	for _, e := range q.Filter {
		if e.Key != AndKey {
			continue
		}
		arr, _ := e.Value.(bson.A)
		out := make([]bson.D, 0, len(arr))
		for _, c := range arr {
			if d, ok := c.(bson.D); ok {
				out = append(out, d)
			}
		}
		return out
	}
	return nil
}

// FieldPath is the stored path of document field name.
func FieldPath(name string) string {
	return FieldsKey + "." + name
}

// OperatorKey returns the MongoDB comparison operator for op.
func OperatorKey(op model.Operator) (string, error) {
	key, ok := operatorKeys[op]
	if !ok {
		return "", errors.NewConfigurationError("unsupported operator").
			WithDetail("operator", int(op))
	}
	return key, nil
}

// Build applies the filters of spec in order, then the single order clause.
// Redundant filters are passed through untouched.
func Build(path model.CollectionPath, spec *model.QuerySpec) (NativeQuery, error) {
	if path.IsZero() {
		return NativeQuery{}, errors.NewConfigurationError("query needs a resolved collection path")
	}
	if err := spec.Validate(); err != nil {
		return NativeQuery{}, err
	}

	q := NativeQuery{
		Collection: path.String(),
		Filter:     bson.D{{Key: ParentKey, Value: path.String()}},
	}

	filters := spec.Filters()
	if len(filters) > 0 {
		clauses := make(bson.A, 0, len(filters))
		for _, f := range filters {
			key, err := OperatorKey(f.Operator)
			if err != nil {
				return NativeQuery{}, err
			}
			value, err := codec.EncodeValue(f.Value)
			if err != nil {
				return NativeQuery{}, errors.NewValidationError("unsupported filter value").
					WithDetail("field", f.Field).WithCause(err)
			}
			clauses = append(clauses, bson.D{{
				Key:   FieldPath(f.Field),
				Value: bson.D{{Key: key, Value: value}},
			}})
		}
		q.Filter = append(q.Filter, bson.E{Key: AndKey, Value: clauses})
	}

	if order, ok := spec.Order(); ok {
		dir := 1
		if order.Descending {
			dir = -1
		}
		q.Sort = bson.D{{Key: FieldPath(order.Field), Value: dir}}
	}
	return q, nil
}
