package controller

import (
	"sync"
	"sync/atomic"

	"carelog/internal/shared/logger"
	"carelog/internal/shared/mainloop"
)

// AuthStateSource pushes the signed-in user ID, "" when signed out.
type AuthStateSource interface {
	OnAuthStateChange(fn func(userID string)) (unsubscribe func())
}

// SessionController follows the signed-in user and rebinds its controllers to them.
type SessionController struct {
	loop        *mainloop.Loop
	controllers []Bindable
	log         logger.Logger

	current     string // loop-owned
	currentUser atomic.Value

	unsubscribe func()
	closeOnce   sync.Once
}

// NewSessionController subscribes to source once for the controller's lifetime.
func NewSessionController(loop *mainloop.Loop, source AuthStateSource, log logger.Logger, controllers ...Bindable) *SessionController {
	s := &SessionController{
		loop:        loop,
		controllers: controllers,
		log:         logger.OrNop(log).WithComponent("session"),
	}
	s.currentUser.Store("")
	s.unsubscribe = source.OnAuthStateChange(func(uid string) {
		s.loop.Post(func() { s.switchTo(uid) })
	})
	return s
}

// CurrentUser is the user the controllers are bound to.
func (s *SessionController) CurrentUser() string {
	return s.currentUser.Load().(string)
}

func (s *SessionController) switchTo(uid string) {
	if uid == s.current {
		return
	}
	s.log.WithFields(map[string]interface{}{"user_id": uid}).Info("Auth state changed")
	s.current = uid
	s.currentUser.Store(uid)
	for _, c := range s.controllers {
		if uid == "" {
			c.stop()
		} else {
			c.start(uid)
		}
	}
}

// Close unsubscribes from auth changes and stops every controller. It waits for the
// mainloop, so it must not be called from a loop task.
func (s *SessionController) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.loop.Call(func() {
			for _, c := range s.controllers {
				c.stop()
			}
			s.current = ""
			s.currentUser.Store("")
		})
	})
}
