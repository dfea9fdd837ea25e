// Package memory is an in-process document backend. It interprets the same native
// queries the MongoDB backend executes, which makes it the test double for everything
// above the backend port.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/domain/repository"
	"carelog/internal/docstore/query"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
)

// Operation names passed to a FaultFunc.
const (
	OpInsert = "insert"
	OpSet    = "set"
	OpGet    = "get"
	OpUpdate = "update"
	OpDelete = "delete"
	OpQuery  = "query"
)

// FaultFunc lets tests fail an operation. A nil return lets it proceed.
type FaultFunc func(op, collection string) error

type record struct {
	fields     model.Fields
	createTime time.Time
	updateTime time.Time
}

type collection struct {
	order []string
	docs  map[string]*record
}

// Backend keeps every collection in memory.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]*collection
	fault       FaultFunc
	now         func() time.Time
	log         logger.Logger
}

var _ repository.Backend = (*Backend)(nil)

// NewBackend returns an empty backend.
func NewBackend(log logger.Logger) *Backend {
	return &Backend{
		collections: make(map[string]*collection),
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger.OrNop(log).WithComponent("memory_backend"),
	}
}

// InjectFault installs fn; pass nil to clear it.
func (b *Backend) InjectFault(fn FaultFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fault = fn
}

func (b *Backend) check(ctx context.Context, op, coll string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewTransportError("operation cancelled", err)
	}
	b.mu.RLock()
	fault := b.fault
	b.mu.RUnlock()
	if fault != nil {
		return fault(op, coll)
	}
	return nil
}

func (b *Backend) coll(path string, create bool) *collection {
	c, ok := b.collections[path]
	if !ok && create {
		c = &collection{docs: make(map[string]*record)}
		b.collections[path] = c
	}
	return c
}

func (b *Backend) Insert(ctx context.Context, path model.CollectionPath, id string, fields model.Fields) error {
	if err := b.check(ctx, OpInsert, path.String()); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.coll(path.String(), true)
	if _, exists := c.docs[id]; exists {
		return errors.NewConflictError("document already exists").WithDetail("path", path.DocumentPath(id))
	}
	now := b.now()
	c.docs[id] = &record{fields: fields.Clone(), createTime: now, updateTime: now}
	c.order = append(c.order, id)
	return nil
}

func (b *Backend) Set(ctx context.Context, path model.CollectionPath, id string, fields model.Fields, merge bool) error {
	if err := b.check(ctx, OpSet, path.String()); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.coll(path.String(), true)
	now := b.now()
	rec, exists := c.docs[id]
	if !exists {
		c.docs[id] = &record{fields: fields.Clone(), createTime: now, updateTime: now}
		c.order = append(c.order, id)
		return nil
	}
	if merge {
		for k, v := range fields.Clone() {
			rec.fields[k] = v
		}
	} else {
		rec.fields = fields.Clone()
	}
	rec.updateTime = now
	return nil
}

func (b *Backend) Get(ctx context.Context, path model.CollectionPath, id string) (model.Fields, error) {
	if err := b.check(ctx, OpGet, path.String()); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	c := b.coll(path.String(), false)
	if c == nil || c.docs[id] == nil {
		return nil, errors.NewNotFoundError("document").WithDetail("path", path.DocumentPath(id))
	}
	return c.docs[id].fields.Clone(), nil
}

func (b *Backend) Update(ctx context.Context, path model.CollectionPath, id string, fields model.Fields) error {
	if err := b.check(ctx, OpUpdate, path.String()); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.coll(path.String(), false)
	if c == nil || c.docs[id] == nil {
		return errors.NewNotFoundError("document").WithDetail("path", path.DocumentPath(id))
	}
	rec := c.docs[id]
	for k, v := range fields.Clone() {
		rec.fields[k] = v
	}
	rec.updateTime = b.now()
	return nil
}

func (b *Backend) Delete(ctx context.Context, path model.CollectionPath, id string) error {
	if err := b.check(ctx, OpDelete, path.String()); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.coll(path.String(), false)
	if c == nil || c.docs[id] == nil {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Query evaluates q against the collection named by its parent clause.
func (b *Backend) Query(ctx context.Context, q query.NativeQuery) ([]model.Snapshot, error) {
	if err := b.check(ctx, OpQuery, q.Collection); err != nil {
		return nil, err
	}
	parent, _ := lookupKey(q.Filter, query.ParentKey).(string)
	if parent == "" {
		parent = q.Collection
	}
	clauses := q.Clauses()

	b.mu.RLock()
	c := b.coll(parent, false)
	var out []model.Snapshot
	if c != nil {
		for _, id := range c.order {
			rec := c.docs[id]
			ok, err := matchesAll(rec.fields, clauses)
			if err != nil {
				b.mu.RUnlock()
				return nil, err
			}
			if ok {
				out = append(out, model.Snapshot{ID: id, Fields: rec.fields.Clone()})
			}
		}
	}
	b.mu.RUnlock()

	if len(q.Sort) > 0 {
		sortSnapshots(out, q.Sort[0])
	}
	if out == nil {
		out = []model.Snapshot{}
	}
	return out, nil
}

// Close is a no-op.
func (b *Backend) Close(ctx context.Context) error {
	return nil
}

// Len returns the number of documents stored under path.
func (b *Backend) Len(path model.CollectionPath) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if c := b.coll(path.String(), false); c != nil {
		return len(c.docs)
	}
	return 0
}

func lookupKey(d bson.D, key string) interface{} {
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

func matchesAll(fields model.Fields, clauses []bson.D) (bool, error) {
	for _, clause := range clauses {
		for _, e := range clause {
			cond, ok := e.Value.(bson.D)
			if !ok {
				cond = bson.D{{Key: "$eq", Value: e.Value}}
			}
			actual, present := fieldValue(fields, e.Key)
			for _, c := range cond {
				match, err := evaluate(c.Key, actual, present, c.Value)
				if err != nil {
					return false, err
				}
				if !match {
					return false, nil
				}
			}
		}
	}
	return true, nil
}

func fieldValue(fields model.Fields, path string) (interface{}, bool) {
	path = strings.TrimPrefix(path, query.FieldsKey+".")
	var cur interface{} = map[string]interface{}(fields)
	for _, part := range strings.Split(path, ".") {
		var m map[string]interface{}
		switch t := cur.(type) {
		case model.Fields:
			m = t
		case map[string]interface{}:
			m = t
		default:
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func evaluate(op string, actual interface{}, present bool, want interface{}) (bool, error) {
	switch op {
	case "$eq":
		if want == nil {
			return !present || actual == nil, nil
		}
		return present && equalValues(actual, want), nil
	case "$ne":
		if want == nil {
			return present && actual != nil, nil
		}
		return !present || !equalValues(actual, want), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		cmp, ok := compareValues(actual, want)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return cmp > 0, nil
		case "$gte":
			return cmp >= 0, nil
		case "$lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	}
	return false, errors.NewConfigurationError("unsupported operator").WithDetail("operator", op)
}

func equalValues(a, b interface{}) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return false
}

// compareValues orders numbers, strings and timestamps; other pairs are incomparable.
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// sortSnapshots orders by one key; missing values sort first ascending, as in MongoDB.
func sortSnapshots(snaps []model.Snapshot, key bson.E) {
	desc := false
	switch dir := key.Value.(type) {
	case int:
		desc = dir < 0
	case int32:
		desc = dir < 0
	case int64:
		desc = dir < 0
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		a, aok := fieldValue(snaps[i].Fields, key.Key)
		b, bok := fieldValue(snaps[j].Fields, key.Key)
		if desc {
			return lessValue(b, bok, a, aok)
		}
		return lessValue(a, aok, b, bok)
	})
}

func lessValue(a interface{}, aok bool, b interface{}, bok bool) bool {
	if !aok || a == nil {
		return bok && b != nil
	}
	if !bok || b == nil {
		return false
	}
	cmp, ok := compareValues(a, b)
	return ok && cmp < 0
}
