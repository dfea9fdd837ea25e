package feed

import (
	"context"
	"encoding/json"
	"sync"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/domain/repository"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the pub/sub channels, one per collection path.
const DefaultChannelPrefix = "carelog:changes:"

// RedisFeed fans changes out across processes with Redis PUBLISH/SUBSCRIBE.
type RedisFeed struct {
	client redis.UniversalClient
	prefix string
	log    logger.Logger

	mu      sync.Mutex
	pubsubs map[*redis.PubSub]struct{}
	closed  bool
}

var _ repository.ChangeFeed = (*RedisFeed)(nil)

func NewRedisFeed(client redis.UniversalClient, prefix string, log logger.Logger) *RedisFeed {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisFeed{
		client:  client,
		prefix:  prefix,
		log:     logger.OrNop(log).WithComponent("redis_feed"),
		pubsubs: make(map[*redis.PubSub]struct{}),
	}
}

func (f *RedisFeed) channel(collection string) string {
	return f.prefix + collection
}

func encodeChange(change model.Change) ([]byte, error) {
	return json.Marshal(change)
}

func decodeChange(payload string) (model.Change, error) {
	var change model.Change
	err := json.Unmarshal([]byte(payload), &change)
	return change, err
}

func (f *RedisFeed) Publish(ctx context.Context, change model.Change) error {
	payload, err := encodeChange(change)
	if err != nil {
		return errors.NewInternalError("encode change").WithCause(err)
	}
	if err := f.client.Publish(ctx, f.channel(change.Collection), payload).Err(); err != nil {
		return errors.NewTransportError("publish change", err).WithComponent("redis")
	}
	return nil
}

// Watch subscribes to the collection channel and waits for the server to confirm it.
func (f *RedisFeed) Watch(ctx context.Context, collection string, fn func(model.Change)) (func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errors.NewTransportError("change feed closed", nil)
	}
	f.mu.Unlock()

	ch := f.channel(collection)
	ps := f.client.Subscribe(ctx, ch)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.NewTransportError("subscribe to changes", err).WithComponent("redis")
	}

	f.mu.Lock()
	f.pubsubs[ps] = struct{}{}
	f.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			change, err := decodeChange(msg.Payload)
			if err != nil {
				f.log.Warnf("Dropping malformed change on %s: %v", msg.Channel, err)
				continue
			}
			fn(change)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.pubsubs, ps)
			f.mu.Unlock()
			if err := ps.Close(); err != nil {
				f.log.Debugf("Closing subscription to %s: %v", ch, err)
			}
		})
	}, nil
}

// Close ends every open watch. The client itself is owned by the caller.
func (f *RedisFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for ps := range f.pubsubs {
		_ = ps.Close()
	}
	f.pubsubs = map[*redis.PubSub]struct{}{}
	return nil
}
