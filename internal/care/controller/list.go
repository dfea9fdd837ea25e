// Package controller holds the view-state controllers screens bind to. Controller state is
// only ever mutated on the mainloop; listener callbacks post their results there.
package controller

import (
	"sync"
	"sync/atomic"
	"time"

	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/logger"
	"carelog/internal/shared/mainloop"
)

// State is what a list screen renders.
type State[T any] struct {
	Owner     string
	Items     []T
	Loading   bool
	Err       error
	UpdatedAt time.Time
}

// ListenFunc opens a live subscription for owner.
type ListenFunc[T any] func(owner string, onUpdate func([]T, error)) (*gateway.Subscription, error)

// Bindable is a controller the SessionController can start and stop. Its methods run on
// the mainloop.
type Bindable interface {
	start(owner string)
	stop()
}

// ListController keeps at most one live subscription and exposes its latest delivery.
type ListController[T any] struct {
	loop   *mainloop.Loop
	listen ListenFunc[T]
	name   string
	log    logger.Logger
	now    func() time.Time

	// loop-owned
	sub   *gateway.Subscription
	gen   uint64
	state State[T]

	snapshot atomic.Pointer[State[T]]

	obsMu     sync.Mutex
	observers map[int]func(State[T])
	nextObs   int
}

// NewListController creates a stopped controller named name.
func NewListController[T any](loop *mainloop.Loop, name string, listen ListenFunc[T], log logger.Logger) *ListController[T] {
	c := &ListController[T]{
		loop:      loop,
		listen:    listen,
		name:      name,
		log:       logger.OrNop(log).WithComponent("controller").WithFields(map[string]interface{}{"list": name}),
		now:       time.Now,
		observers: make(map[int]func(State[T])),
	}
	c.snapshot.Store(&State[T]{})
	return c
}

// Start binds the controller to owner, releasing any subscription it already holds.
func (c *ListController[T]) Start(owner string) bool {
	return c.loop.Post(func() { c.start(owner) })
}

// Stop releases the live subscription and clears the state.
func (c *ListController[T]) Stop() bool {
	return c.loop.Post(c.stop)
}

// State returns the most recent state. Safe from any goroutine.
func (c *ListController[T]) State() State[T] {
	return *c.snapshot.Load()
}

// Observe calls fn on the mainloop after every state change. The returned func removes it.
func (c *ListController[T]) Observe(fn func(State[T])) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			delete(c.observers, id)
			c.obsMu.Unlock()
		})
	}
}

func (c *ListController[T]) start(owner string) {
	c.release()
	c.gen++
	gen := c.gen
	c.state = State[T]{Owner: owner, Loading: true}
	c.publish()

	sub, err := c.listen(owner, func(items []T, err error) {
		c.loop.Post(func() { c.deliver(gen, items, err) })
	})
	if err != nil {
		c.log.Warnf("Failed to start listening: %v", err)
		c.state.Loading = false
		c.state.Err = err
		c.publish()
		return
	}
	c.sub = sub
}

func (c *ListController[T]) stop() {
	c.release()
	c.gen++
	c.state = State[T]{}
	c.publish()
}

func (c *ListController[T]) release() {
	if c.sub != nil {
		c.sub.Remove()
		c.sub = nil
	}
}

// deliver applies a listener result unless it belongs to an older subscription.
func (c *ListController[T]) deliver(gen uint64, items []T, err error) {
	if gen != c.gen {
		return
	}
	c.state.Loading = false
	if err != nil {
		// keep the last good items; the subscription stays live
		c.log.Debugf("Listener error: %v", err)
		c.state.Err = err
	} else {
		c.state.Items = items
		c.state.Err = nil
		c.state.UpdatedAt = c.now()
	}
	c.publish()
}

func (c *ListController[T]) publish() {
	st := c.state
	if st.Items != nil {
		st.Items = append([]T(nil), st.Items...)
	}
	c.snapshot.Store(&st)

	c.obsMu.Lock()
	fns := make([]func(State[T]), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
