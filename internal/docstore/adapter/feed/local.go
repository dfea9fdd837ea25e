// Package feed distributes document change notices to live subscriptions.
package feed

import (
	"context"
	"sync"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/domain/repository"
	"carelog/internal/shared/eventbus"
	"carelog/internal/shared/logger"
)

const eventSource = "docstore"

// LocalFeed delivers changes inside one process through the event bus.
type LocalFeed struct {
	bus eventbus.EventBusInterface
	log logger.Logger
}

var _ repository.ChangeFeed = (*LocalFeed)(nil)

func NewLocalFeed(bus eventbus.EventBusInterface, log logger.Logger) *LocalFeed {
	return &LocalFeed{bus: bus, log: logger.OrNop(log).WithComponent("local_feed")}
}

func eventType(collection string) string {
	return eventbus.EventTypeCollectionChangedPrefix + collection
}

func (f *LocalFeed) Publish(ctx context.Context, change model.Change) error {
	return f.bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventType(change.Collection), change, eventSource))
}

func (f *LocalFeed) Watch(ctx context.Context, collection string, fn func(model.Change)) (func(), error) {
	et := eventType(collection)
	id := f.bus.Subscribe(et, func(_ context.Context, ev eventbus.Event) error {
		change, ok := ev.Data().(model.Change)
		if !ok {
			f.log.Warnf("Ignoring event %s with payload %T", ev.Type(), ev.Data())
			return nil
		}
		fn(change)
		return nil
	})

	var once sync.Once
	return func() {
		once.Do(func() { f.bus.Unsubscribe(et, id) })
	}, nil
}

func (f *LocalFeed) Close() error { return nil }
