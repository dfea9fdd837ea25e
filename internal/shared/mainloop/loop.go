// Package mainloop provides the single execution context on which view-state is mutated.
// Listener callbacks arrive on backend goroutines and must Post their mutations here.
package mainloop

import (
	"sync"

	"carelog/internal/shared/logger"
)

const defaultQueueSize = 64

// Loop runs posted functions one at a time, in posting order, on one goroutine.
type Loop struct {
	tasks    chan func()
	stopping chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	log      logger.Logger
}

// New starts a loop.
func New(log logger.Logger) *Loop {
	l := &Loop{
		tasks:    make(chan func(), defaultQueueSize),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
		log:      logger.OrNop(log).WithComponent("mainloop"),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-l.stopping:
			// drain what was accepted before Stop
			for {
				select {
				case fn := <-l.tasks:
					l.exec(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("task panicked: %v", r)
		}
	}()
	fn()
}

// Post schedules fn. It returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopping:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.stopping:
		return false
	}
}

// Call runs fn on the loop and waits for it. Must not be called from a task on the same loop.
func (l *Loop) Call(fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.stopped:
		// the task may still have run during the drain
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Stop runs the already accepted tasks and then ends the loop. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopping) })
	<-l.stopped
}
