package query

import (
	"testing"
	"time"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuild_PreservesFilterOrder(t *testing.T) {
	path := model.MustResolve(model.KindKid, "u1")
	spec := model.NewQuery().
		Where("age", model.GreaterThanOrEqual, 5).
		Where("age", model.LessThanOrEqual, 10)

	q, err := Build(path, spec)
	require.NoError(t, err)

	clauses := q.Clauses()
	require.Len(t, clauses, 2)
	assert.Equal(t, bson.D{{Key: "fields.age", Value: bson.D{{Key: "$gte", Value: int64(5)}}}}, clauses[0])
	assert.Equal(t, bson.D{{Key: "fields.age", Value: bson.D{{Key: "$lte", Value: int64(10)}}}}, clauses[1])
	assert.Empty(t, q.Sort)
}

func TestBuild_ParentComesFirst(t *testing.T) {
	path := model.MustResolve(model.KindRoutine, "u1")
	q, err := Build(path, model.NewQuery())
	require.NoError(t, err)

	assert.Equal(t, "users/u1/routines", q.Collection)
	assert.Equal(t, bson.D{{Key: ParentKey, Value: "users/u1/routines"}}, q.Filter)
	assert.Nil(t, q.Clauses())
}

func TestBuild_NilSpecMatchesAll(t *testing.T) {
	q, err := Build(model.MustResolve(model.KindUser, ""), nil)
	require.NoError(t, err)
	assert.Len(t, q.Filter, 1)
}

func TestBuild_OrderAppliedLast(t *testing.T) {
	path := model.MustResolve(model.KindRoutine, "u1")
	spec := model.NewQuery().OrderBy("date", true).Where("kidID", model.Equal, "k1")

	q, err := Build(path, spec)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "fields.date", Value: -1}}, q.Sort)
	assert.Len(t, q.Clauses(), 1)

	opts := q.FindOptions()
	assert.Equal(t, q.Sort, opts.Sort)
}

func TestBuild_DoesNotDedupe(t *testing.T) {
	spec := model.NewQuery().Where("name", model.Equal, "a").Where("name", model.Equal, "a")
	q, err := Build(model.MustResolve(model.KindKid, "u1"), spec)
	require.NoError(t, err)
	assert.Len(t, q.Clauses(), 2)
}

type level uint8

type severity string

func TestBuild_WidensFilterValues(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	spec := model.NewQuery().
		Where("level", model.Equal, level(2)).
		Where("severity", model.Equal, severity("mild")).
		Where("date", model.GreaterThan, at).
		Where("name", model.Equal, model.String("Mia")).
		Where("note", model.Equal, nil)

	q, err := Build(model.MustResolve(model.KindKid, "u1"), spec)
	require.NoError(t, err)

	clauses := q.Clauses()
	require.Len(t, clauses, 5)
	value := func(i int) interface{} { return clauses[i][0].Value.(bson.D)[0].Value }
	assert.Equal(t, int64(2), value(0))
	assert.Equal(t, "mild", value(1))
	assert.Equal(t, at.UTC(), value(2))
	assert.Equal(t, "Mia", value(3))
	assert.Nil(t, value(4))
}

func TestBuild_Errors(t *testing.T) {
	path := model.MustResolve(model.KindKid, "u1")

	_, err := Build(path, model.NewQuery().Where("age", model.Operator(77), 1))
	assert.True(t, errors.IsConfiguration(err))

	_, err = Build(path, model.NewQuery().OrderBy("a", false).OrderBy("b", false))
	assert.True(t, errors.IsValidation(err))

	_, err = Build(path, model.NewQuery().Where("photo", model.Equal, []byte("raw")))
	assert.True(t, errors.IsValidation(err))

	_, err = Build(model.CollectionPath{}, model.NewQuery())
	assert.True(t, errors.IsConfiguration(err))
}

func TestOperatorKey_CoversEveryOperator(t *testing.T) {
	for op := model.Equal; op <= model.LessThanOrEqual; op++ {
		key, err := OperatorKey(op)
		require.NoError(t, err, op.String())
		assert.NotEmpty(t, key)
	}
}
