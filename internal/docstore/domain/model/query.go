package model

import (
	"strings"

	"carelog/internal/shared/errors"
)

// Operator is the closed set of comparison operators a filter may use.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
)

var operatorSymbols = [...]string{
	Equal:              "==",
	NotEqual:           "!=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	LessThan:           "<",
	LessThanOrEqual:    "<=",
}

// Valid reports whether op is one of the declared operators.
func (op Operator) Valid() bool {
	return op >= Equal && op <= LessThanOrEqual
}

func (op Operator) String() string {
	if !op.Valid() {
		return "invalid"
	}
	return operatorSymbols[op]
}

// ParseOperator accepts the symbolic form ("==", ">=", ...) or its short name ("eq", "gte", ...).
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "==", "eq":
		return Equal, nil
	case "!=", "ne":
		return NotEqual, nil
	case ">", "gt":
		return GreaterThan, nil
	case ">=", "gte":
		return GreaterThanOrEqual, nil
	case "<", "lt":
		return LessThan, nil
	case "<=", "lte":
		return LessThanOrEqual, nil
	}
	return 0, errors.NewValidationError("unsupported operator").WithDetail("operator", s)
}

// Filter is a single (field, operator, value) clause.
type Filter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Order is the single optional sort clause of a query.
type Order struct {
	Field      string
	Descending bool
}

// QuerySpec is a declarative, backend-neutral query. Build it with NewQuery.
type QuerySpec struct {
	filters []Filter
	order   *Order
	orders  int
}

// NewQuery returns an empty spec that matches every document of a collection.
func NewQuery() *QuerySpec {
	return &QuerySpec{}
}

// Where appends a filter; filters keep the order they were added in.
func (q *QuerySpec) Where(field string, op Operator, value interface{}) *QuerySpec {
	q.filters = append(q.filters, Filter{Field: field, Operator: op, Value: value})
	return q
}

// OrderBy sets the sort clause. Calling it twice makes the spec invalid.
func (q *QuerySpec) OrderBy(field string, descending bool) *QuerySpec {
	q.orders++
	if q.order == nil {
		q.order = &Order{Field: field, Descending: descending}
	}
	return q
}

// Filters returns a copy of the filter clauses in supplied order.
func (q *QuerySpec) Filters() []Filter {
	if q == nil {
		return nil
	}
	return append([]Filter(nil), q.filters...)
}

// Order returns the sort clause, if any.
func (q *QuerySpec) Order() (Order, bool) {
	if q == nil || q.order == nil {
		return Order{}, false
	}
	return *q.order, true
}

// Validate checks the caller-supplied parts of the spec. Operator range is left to the builder.
func (q *QuerySpec) Validate() error {
	if q == nil {
		return nil
	}
	if q.orders > 1 {
		return errors.NewValidationError("a query accepts at most one order clause").
			WithDetail("orderClauses", q.orders)
	}
	if q.order != nil && strings.TrimSpace(q.order.Field) == "" {
		return errors.NewValidationError("order field is required")
	}
	for i, f := range q.filters {
		if strings.TrimSpace(f.Field) == "" {
			return errors.NewValidationError("filter field is required").WithDetail("position", i)
		}
	}
	return nil
}
