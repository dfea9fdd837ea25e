package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/query"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"github.com/google/uuid"
)

// Handler receives the full current result set of a live query, or the error that
// prevented computing it. Exactly one of the arguments is meaningful.
type Handler func(snapshots []model.Snapshot, err error)

// Subscription is a live query. It runs until Remove is called; the gateway never
// releases it on its own.
type Subscription struct {
	id      string
	gw      *Gateway
	path    model.CollectionPath
	q       query.NativeQuery
	handler Handler
	log     logger.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	changes   chan struct{}
	released  atomic.Bool
	once      sync.Once
	done      chan struct{}
	stopWatch func()
}

// SubscribeToCollection starts a live query and returns without waiting for the first
// delivery. handler is called on the subscription's own goroutine, once right away and
// again whenever the collection changes.
func (g *Gateway) SubscribeToCollection(path model.CollectionPath, spec *model.QuerySpec, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.NewConfigurationError("subscription handler is required")
	}
	q, err := query.Build(path, spec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		id:      uuid.NewString(),
		gw:      g,
		path:    path,
		q:       q,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.log = g.log.WithFields(map[string]interface{}{"subscription": s.id, "collection": q.Collection})

	g.metrics.subscriptionOpened()
	s.log.Debug("Subscription started")
	go s.run()
	return s, nil
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Path returns the collection the subscription watches.
func (s *Subscription) Path() model.CollectionPath { return s.path }

// Remove releases the subscription. It is safe to call more than once, concurrently
// with a delivery, and from inside the handler. A delivery already running when Remove
// is called may still complete; none starts afterwards.
func (s *Subscription) Remove() {
	s.once.Do(func() {
		s.released.Store(true)
		s.cancel()
	})
}

// Done is closed once the subscription goroutine has exited after Remove.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// notify coalesces change notices; one pending refresh covers any number of changes.
func (s *Subscription) notify(model.Change) {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer s.gw.metrics.subscriptionClosed()
	defer func() {
		if s.stopWatch != nil {
			s.stopWatch()
		}
		s.log.Debug("Subscription stopped")
	}()

	var resync <-chan time.Time
	if interval := s.gw.cfg.ResyncInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		resync = ticker.C
	}

	var backoff time.Duration
	for {
		err := s.refresh()

		var retry *time.Timer
		var retryC <-chan time.Time
		switch {
		case err == nil:
			backoff = 0
		case errors.IsRetryable(err):
			backoff = s.nextBackoff(backoff)
			retry = time.NewTimer(backoff)
			retryC = retry.C
			s.log.Warnf("Live query failed, retrying in %s: %v", backoff, err)
		default:
			s.log.Errorf("Live query failed: %v", err)
		}

		select {
		case <-s.ctx.Done():
		case <-s.changes:
		case <-resync:
		case <-retryC:
		}
		if retry != nil {
			retry.Stop()
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Subscription) nextBackoff(prev time.Duration) time.Duration {
	if prev <= 0 {
		return s.gw.cfg.RetryDelay
	}
	next := prev * 2
	if next > s.gw.cfg.MaxRetryDelay {
		next = s.gw.cfg.MaxRetryDelay
	}
	return next
}

// refresh makes sure the change feed is watched, then re-runs the query and delivers it.
// The watch is registered before the query so no change can fall between the two.
func (s *Subscription) refresh() error {
	if s.stopWatch == nil && s.gw.feed != nil {
		stop, err := s.gw.feed.Watch(s.ctx, s.q.Collection, s.notify)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			s.deliver(nil, err)
			return err
		}
		s.stopWatch = stop
	}

	snaps, err := s.gw.backend.Query(s.ctx, s.q)
	if s.ctx.Err() != nil {
		return nil
	}
	s.deliver(snaps, err)
	return err
}

func (s *Subscription) deliver(snaps []model.Snapshot, err error) {
	if s.released.Load() {
		return
	}
	s.gw.metrics.delivered(err)
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Subscription handler panicked: %v", r)
		}
	}()
	s.handler(snaps, err)
}
