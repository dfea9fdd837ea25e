package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"carelog/internal/docstore/adapter/feed"
	"carelog/internal/docstore/adapter/persistence/memory"
	"carelog/internal/docstore/domain/model"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/eventbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type delivery struct {
	snaps []model.Snapshot
	err   error
}

type recorder struct {
	ch chan delivery
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan delivery, 64)}
}

func (r *recorder) handle(snaps []model.Snapshot, err error) {
	r.ch <- delivery{snaps: snaps, err: err}
}

func (r *recorder) next(t *testing.T) delivery {
	t.Helper()
	select {
	case d := <-r.ch:
		return d
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a delivery")
		return delivery{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-r.ch:
		t.Fatalf("unexpected delivery: %+v", d)
	case <-time.After(wait):
	}
}

type fixture struct {
	gw      *Gateway
	backend *memory.Backend
	metrics *Metrics
}

func newFixture(cfg Config) fixture {
	backend := memory.NewBackend(nil)
	metrics := NewMetrics(prometheus.NewRegistry())
	f := feed.NewLocalFeed(eventbus.NewEventBus(nil), nil)
	return fixture{gw: New(backend, f, cfg, metrics, nil), backend: backend, metrics: metrics}
}

var kids = model.MustResolve(model.KindKid, "u1")

func ids(snaps []model.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}

func waitDone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription did not stop")
	}
}

func TestAddThenGet(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()

	id, err := fx.gw.AddDocument(ctx, kids, model.Fields{"fullname": "Mia", "gender": int64(0)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := fx.gw.GetDocument(ctx, kids, id)
	require.NoError(t, err)
	assert.Equal(t, model.Fields{"fullname": "Mia", "gender": int64(0)}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.operations.WithLabelValues(OpAdd, "ok")))
}

func TestAddGeneratesUniqueIDs(t *testing.T) {
	fx := newFixture(Config{})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := fx.gw.AddDocument(context.Background(), kids, model.Fields{"n": int64(i)})
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestAddRetriesTakenID(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, fx.backend.Insert(ctx, kids, "taken", model.Fields{}))

	calls := 0
	fx.gw.newID = func() string {
		calls++
		if calls == 1 {
			return "taken"
		}
		return "fresh"
	}
	id, err := fx.gw.AddDocument(ctx, kids, model.Fields{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", id)
}

func TestFailedAddLeavesNothingBehind(t *testing.T) {
	fx := newFixture(Config{})
	fx.backend.InjectFault(func(op, coll string) error {
		if op == memory.OpInsert {
			return errors.NewTransportError("unavailable", nil)
		}
		return nil
	})
	_, err := fx.gw.AddDocument(context.Background(), kids, model.Fields{"a": "b"})
	assert.True(t, errors.IsTransport(err))

	fx.backend.InjectFault(nil)
	snaps, err := fx.gw.Query(context.Background(), kids, nil)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSetDocumentMergeVersusOverwrite(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, fx.gw.SetDocument(ctx, kids, "k1", model.Fields{"a": int64(1), "b": int64(2)}, false))

	require.NoError(t, fx.gw.SetDocument(ctx, kids, "k1", model.Fields{"a": int64(3)}, true))
	got, err := fx.gw.GetDocument(ctx, kids, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.Fields{"a": int64(3), "b": int64(2)}, got)

	require.NoError(t, fx.gw.SetDocument(ctx, kids, "k1", model.Fields{"a": int64(3)}, false))
	got, err = fx.gw.GetDocument(ctx, kids, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.Fields{"a": int64(3)}, got)
}

func TestGetMissingIsNotFound(t *testing.T) {
	fx := newFixture(Config{})
	_, err := fx.gw.GetDocument(context.Background(), kids, "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, errors.IsTransport(err))
}

func TestUpdateFields(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()

	err := fx.gw.UpdateFields(ctx, kids, "ghost", model.Patch{"a": model.Int(1)})
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, fx.gw.SetDocument(ctx, kids, "k1", model.Fields{"a": int64(1), "b": "x"}, false))
	require.NoError(t, fx.gw.UpdateFields(ctx, kids, "k1", model.Patch{}.Set("a", model.Int(5)).Set("c", model.Null())))
	got, err := fx.gw.GetDocument(ctx, kids, "k1")
	require.NoError(t, err)
	assert.Equal(t, model.Fields{"a": int64(5), "b": "x", "c": nil}, got)

	assert.True(t, errors.IsValidation(fx.gw.UpdateFields(ctx, kids, "k1", model.Patch{})))
}

func TestRejectsBadTargets(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()

	_, err := fx.gw.AddDocument(ctx, model.CollectionPath{}, model.Fields{})
	assert.True(t, errors.IsConfiguration(err))
	assert.True(t, errors.IsValidation(fx.gw.SetDocument(ctx, kids, "", model.Fields{}, true)))
	assert.True(t, errors.IsValidation(fx.gw.DeleteDocument(ctx, kids, "a/b")))

	_, err = fx.gw.SubscribeToCollection(kids, model.NewQuery().OrderBy("a", false).OrderBy("b", false), func([]model.Snapshot, error) {})
	assert.True(t, errors.IsValidation(err))
	_, err = fx.gw.SubscribeToCollection(kids, nil, nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSubscribe_EmptyThenAdded(t *testing.T) {
	fx := newFixture(Config{})
	rec := newRecorder()

	sub, err := fx.gw.SubscribeToCollection(kids, nil, rec.handle)
	require.NoError(t, err)
	defer sub.Remove()

	first := rec.next(t)
	require.NoError(t, first.err)
	assert.Empty(t, first.snaps)

	id, err := fx.gw.AddDocument(context.Background(), kids, model.Fields{"fullname": "Mia", "gender": int64(0)})
	require.NoError(t, err)

	second := rec.next(t)
	require.NoError(t, second.err)
	require.Len(t, second.snaps, 1)
	assert.Equal(t, id, second.snaps[0].ID)
	assert.Equal(t, model.Fields{"fullname": "Mia", "gender": int64(0)}, second.snaps[0].Fields)
}

func TestSubscribe_DeliversFullSnapshot(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := fx.gw.AddDocument(ctx, kids, model.Fields{"n": int64(i)})
		require.NoError(t, err)
	}

	rec := newRecorder()
	sub, err := fx.gw.SubscribeToCollection(kids, model.NewQuery().OrderBy("n", false), rec.handle)
	require.NoError(t, err)
	defer sub.Remove()

	first := rec.next(t)
	require.NoError(t, first.err)
	require.Len(t, first.snaps, 3)
	for i, s := range first.snaps {
		assert.Equal(t, int64(i), s.Fields["n"])
	}

	_, err = fx.gw.AddDocument(ctx, kids, model.Fields{"n": int64(3)})
	require.NoError(t, err)
	second := rec.next(t)
	require.NoError(t, second.err)
	assert.Len(t, second.snaps, 4)
}

func TestSubscribe_FilteredAndOrdered(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, fx.gw.SetDocument(ctx, kids, "a", model.Fields{"age": int64(4)}, false))
	require.NoError(t, fx.gw.SetDocument(ctx, kids, "b", model.Fields{"age": int64(9)}, false))
	require.NoError(t, fx.gw.SetDocument(ctx, kids, "c", model.Fields{"age": int64(6)}, false))

	rec := newRecorder()
	spec := model.NewQuery().
		Where("age", model.GreaterThanOrEqual, 5).
		Where("age", model.LessThanOrEqual, 10).
		OrderBy("age", true)
	sub, err := fx.gw.SubscribeToCollection(kids, spec, rec.handle)
	require.NoError(t, err)
	defer sub.Remove()

	assert.Equal(t, []string{"b", "c"}, ids(rec.next(t).snaps))

	require.NoError(t, fx.gw.DeleteDocument(ctx, kids, "b"))
	assert.Equal(t, []string{"c"}, ids(rec.next(t).snaps))
}

func TestSubscribe_IgnoresOtherCollections(t *testing.T) {
	fx := newFixture(Config{})
	rec := newRecorder()
	sub, err := fx.gw.SubscribeToCollection(kids, nil, rec.handle)
	require.NoError(t, err)
	defer sub.Remove()
	rec.next(t)

	_, err = fx.gw.AddDocument(context.Background(), model.MustResolve(model.KindKid, "u2"), model.Fields{"x": "y"})
	require.NoError(t, err)
	rec.none(t, 100*time.Millisecond)
}

func TestSubscribe_RemoveIsIdempotentAndFinal(t *testing.T) {
	fx := newFixture(Config{})
	rec := newRecorder()
	sub, err := fx.gw.SubscribeToCollection(kids, nil, rec.handle)
	require.NoError(t, err)
	rec.next(t)

	sub.Remove()
	sub.Remove()
	waitDone(t, sub)

	_, err = fx.gw.AddDocument(context.Background(), kids, model.Fields{"a": "b"})
	require.NoError(t, err)
	rec.none(t, 100*time.Millisecond)

	assert.NotPanics(t, sub.Remove)
	assert.Equal(t, 0.0, testutil.ToFloat64(fx.metrics.subscriptions))
}

func TestSubscribe_RemoveFromHandler(t *testing.T) {
	fx := newFixture(Config{})
	ready := make(chan *Subscription, 1)
	var calls atomic.Int32

	sub, err := fx.gw.SubscribeToCollection(kids, nil, func([]model.Snapshot, error) {
		calls.Add(1)
		s := <-ready
		s.Remove()
	})
	require.NoError(t, err)
	ready <- sub

	waitDone(t, sub)
	_, err = fx.gw.AddDocument(context.Background(), kids, model.Fields{"a": "b"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubscribe_ConcurrentRemoveDuringDeliveries(t *testing.T) {
	fx := newFixture(Config{})
	var delivered atomic.Int32
	sub, err := fx.gw.SubscribeToCollection(kids, nil, func([]model.Snapshot, error) {
		delivered.Add(1)
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, _ = fx.gw.AddDocument(context.Background(), kids, model.Fields{"n": int64(i)})
		}
	}()
	for i := 0; i < 5; i++ {
		go sub.Remove()
	}
	sub.Remove()
	waitDone(t, sub)
	<-done

	after := delivered.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, delivered.Load())
}

func TestSubscribe_IndependentSubscribers(t *testing.T) {
	fx := newFixture(Config{})
	a, b := newRecorder(), newRecorder()
	subA, err := fx.gw.SubscribeToCollection(kids, nil, a.handle)
	require.NoError(t, err)
	subB, err := fx.gw.SubscribeToCollection(kids, nil, b.handle)
	require.NoError(t, err)
	defer subB.Remove()
	a.next(t)
	b.next(t)

	subA.Remove()
	waitDone(t, subA)
	_, err = fx.gw.AddDocument(context.Background(), kids, model.Fields{"a": "b"})
	require.NoError(t, err)

	assert.Len(t, b.next(t).snaps, 1)
	a.none(t, 50*time.Millisecond)
}

func TestSubscribe_RetriesTransportErrors(t *testing.T) {
	fx := newFixture(Config{RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 20 * time.Millisecond})
	var failures atomic.Int32
	fx.backend.InjectFault(func(op, coll string) error {
		if op == memory.OpQuery && failures.Add(1) <= 2 {
			return errors.NewTransportError("connection reset", nil)
		}
		return nil
	})

	rec := newRecorder()
	sub, err := fx.gw.SubscribeToCollection(kids, nil, rec.handle)
	require.NoError(t, err)
	defer sub.Remove()

	assert.True(t, errors.IsTransport(rec.next(t).err))
	assert.True(t, errors.IsTransport(rec.next(t).err))
	recovered := rec.next(t)
	require.NoError(t, recovered.err)
	assert.NotNil(t, recovered.snaps)
}

func TestSubscribe_DoesNotRetryAuthorizationFailures(t *testing.T) {
	fx := newFixture(Config{RetryDelay: 5 * time.Millisecond, MaxRetryDelay: 5 * time.Millisecond})
	var deniedFlag atomic.Bool
	deniedFlag.Store(true)
	fx.backend.InjectFault(func(op, coll string) error {
		if op == memory.OpQuery && deniedFlag.Load() {
			return errors.NewTransportError("query", errors.ErrForbidden)
		}
		return nil
	})

	rec := newRecorder()
	sub, err := fx.gw.SubscribeToCollection(kids, nil, rec.handle)
	require.NoError(t, err)
	defer sub.Remove()

	first := rec.next(t)
	assert.True(t, errors.IsAuthorization(first.err))
	rec.none(t, 100*time.Millisecond)

	deniedFlag.Store(false)
	_, err = fx.gw.AddDocument(context.Background(), kids, model.Fields{"a": "b"})
	require.NoError(t, err)
	recovered := rec.next(t)
	require.NoError(t, recovered.err)
	assert.Len(t, recovered.snaps, 1)
}

func TestSubscribe_PeriodicResync(t *testing.T) {
	fx := newFixture(Config{ResyncInterval: 20 * time.Millisecond})
	rec := newRecorder()
	sub, err := fx.gw.SubscribeToCollection(kids, nil, rec.handle)
	require.NoError(t, err)
	defer sub.Remove()
	rec.next(t)

	// written behind the gateway's back, so only a resync can see it
	require.NoError(t, fx.backend.Insert(context.Background(), kids, "k1", model.Fields{}))
	for {
		d := rec.next(t)
		if len(d.snaps) == 1 {
			break
		}
	}
}

type failingFeed struct {
	*feed.LocalFeed
}

func (failingFeed) Publish(context.Context, model.Change) error {
	return errors.NewTransportError("feed down", nil)
}

func TestWriteSucceedsWhenFeedFails(t *testing.T) {
	backend := memory.NewBackend(nil)
	metrics := NewMetrics(nil)
	gw := New(backend, failingFeed{feed.NewLocalFeed(eventbus.NewEventBus(nil), nil)}, Config{}, metrics, nil)

	id, err := gw.AddDocument(context.Background(), kids, model.Fields{"a": "b"})
	require.NoError(t, err)
	_, err = gw.GetDocument(context.Background(), kids, id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.feedFailures))
}

type kid struct {
	ID       string
	Fullname string
}

func decodeKid(s model.Snapshot) (kid, error) {
	name, ok := s.Fields["fullname"].(string)
	if !ok {
		return kid{}, errors.NewDecodeError("fullname", "missing")
	}
	return kid{ID: s.ID, Fullname: name}, nil
}

func TestListen_DecodesEveryDelivery(t *testing.T) {
	fx := newFixture(Config{})
	require.NoError(t, fx.gw.SetDocument(context.Background(), kids, "k1", model.Fields{"fullname": "Mia"}, false))

	got := make(chan []kid, 8)
	errs := make(chan error, 8)
	sub, err := Listen(fx.gw, kids, nil, decodeKid, func(items []kid, err error) {
		if err != nil {
			errs <- err
			return
		}
		got <- items
	})
	require.NoError(t, err)
	defer sub.Remove()

	select {
	case items := <-got:
		assert.Equal(t, []kid{{ID: "k1", Fullname: "Mia"}}, items)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(waitFor):
		t.Fatal("no delivery")
	}
}

func TestListen_OneBadDocumentFailsTheBatch(t *testing.T) {
	fx := newFixture(Config{})
	ctx := context.Background()
	require.NoError(t, fx.gw.SetDocument(ctx, kids, "good", model.Fields{"fullname": "Mia"}, false))
	require.NoError(t, fx.gw.SetDocument(ctx, kids, "bad", model.Fields{"fullname": 7}, false))

	type result struct {
		items []kid
		err   error
	}
	got := make(chan result, 8)
	sub, err := Listen(fx.gw, kids, nil, decodeKid, func(items []kid, err error) {
		got <- result{items, err}
	})
	require.NoError(t, err)
	defer sub.Remove()

	select {
	case r := <-got:
		assert.Nil(t, r.items)
		assert.True(t, errors.IsDecode(r.err))
	case <-time.After(waitFor):
		t.Fatal("no delivery")
	}

	require.NoError(t, fx.gw.DeleteDocument(ctx, kids, "bad"))
	select {
	case r := <-got:
		require.NoError(t, r.err)
		assert.Len(t, r.items, 1)
	case <-time.After(waitFor):
		t.Fatal("no recovery delivery")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig().RetryDelay, c.RetryDelay)
	assert.Equal(t, DefaultConfig().MaxRetryDelay, c.MaxRetryDelay)

	c = Config{RetryDelay: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, c.MaxRetryDelay)

	s := &Subscription{gw: &Gateway{cfg: Config{RetryDelay: time.Second, MaxRetryDelay: 3 * time.Second}}}
	assert.Equal(t, time.Second, s.nextBackoff(0))
	assert.Equal(t, 2*time.Second, s.nextBackoff(time.Second))
	assert.Equal(t, 3*time.Second, s.nextBackoff(2*time.Second))
}
