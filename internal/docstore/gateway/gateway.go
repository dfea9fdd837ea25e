// Package gateway is the generic CRUD and live-query facade over a document backend.
package gateway

import (
	"context"
	"time"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/domain/repository"
	"carelog/internal/docstore/query"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"github.com/google/uuid"
)

const (
	OpAdd       = "add"
	OpSet       = "set"
	OpGet       = "get"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpQuery     = "query"
	maxIDTries  = 3
	publishWait = 2 * time.Second
)

// Config tunes subscription behaviour.
type Config struct {
	// RetryDelay is the first backoff after a retryable delivery failure.
	RetryDelay time.Duration
	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay time.Duration
	// ResyncInterval re-runs live queries periodically; zero disables it.
	ResyncInterval time.Duration
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		RetryDelay:    500 * time.Millisecond,
		MaxRetryDelay: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = d.MaxRetryDelay
		if c.MaxRetryDelay < c.RetryDelay {
			c.MaxRetryDelay = c.RetryDelay
		}
	}
	return c
}

// Gateway writes through a Backend and announces every successful write on a ChangeFeed.
type Gateway struct {
	backend repository.Backend
	feed    repository.ChangeFeed
	cfg     Config
	metrics *Metrics
	log     logger.Logger
	newID   func() string
	now     func() time.Time
}

// New builds a gateway. metrics may be nil.
func New(backend repository.Backend, feed repository.ChangeFeed, cfg Config, metrics *Metrics, log logger.Logger) *Gateway {
	return &Gateway{
		backend: backend,
		feed:    feed,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		log:     logger.OrNop(log).WithComponent("docstore_gateway"),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func requirePath(path model.CollectionPath) error {
	if path.IsZero() {
		return errors.NewConfigurationError("collection path was not resolved")
	}
	return nil
}

func checkTarget(path model.CollectionPath, id string) error {
	if err := requirePath(path); err != nil {
		return err
	}
	return model.ValidateDocumentID(id)
}

// AddDocument creates a document with a generated ID and returns the ID.
func (g *Gateway) AddDocument(ctx context.Context, path model.CollectionPath, fields model.Fields) (id string, err error) {
	start := time.Now()
	defer func() { g.metrics.observe(OpAdd, start, err) }()
	if err = requirePath(path); err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxIDTries; attempt++ {
		id = g.newID()
		err = g.backend.Insert(ctx, path, id, fields)
		if err == nil {
			g.announce(ctx, model.ChangeCreated, path, id)
			return id, nil
		}
		if !errors.IsConflict(err) {
			return "", err
		}
		g.log.Warnf("Generated id %s already taken in %s, retrying", id, path)
	}
	return "", err
}

// SetDocument upserts at id. With merge, stored fields absent from fields are kept;
// without it the document is replaced.
func (g *Gateway) SetDocument(ctx context.Context, path model.CollectionPath, id string, fields model.Fields, merge bool) (err error) {
	start := time.Now()
	defer func() { g.metrics.observe(OpSet, start, err) }()
	if err = checkTarget(path, id); err != nil {
		return err
	}
	if err = g.backend.Set(ctx, path, id, fields, merge); err != nil {
		return err
	}
	g.announce(ctx, model.ChangeUpdated, path, id)
	return nil
}

// GetDocument returns a not-found error when id does not exist.
func (g *Gateway) GetDocument(ctx context.Context, path model.CollectionPath, id string) (fields model.Fields, err error) {
	start := time.Now()
	defer func() { g.metrics.observe(OpGet, start, err) }()
	if err = checkTarget(path, id); err != nil {
		return nil, err
	}
	return g.backend.Get(ctx, path, id)
}

// UpdateFields patches an existing document and fails with not-found otherwise.
func (g *Gateway) UpdateFields(ctx context.Context, path model.CollectionPath, id string, patch model.Patch) (err error) {
	start := time.Now()
	defer func() { g.metrics.observe(OpUpdate, start, err) }()
	if err = checkTarget(path, id); err != nil {
		return err
	}
	if len(patch) == 0 {
		return errors.NewValidationError("patch has no fields")
	}
	if err = g.backend.Update(ctx, path, id, patch.Fields()); err != nil {
		return err
	}
	g.announce(ctx, model.ChangeUpdated, path, id)
	return nil
}

// DeleteDocument removes id. Deleting a missing document succeeds.
func (g *Gateway) DeleteDocument(ctx context.Context, path model.CollectionPath, id string) (err error) {
	start := time.Now()
	defer func() { g.metrics.observe(OpDelete, start, err) }()
	if err = checkTarget(path, id); err != nil {
		return err
	}
	if err = g.backend.Delete(ctx, path, id); err != nil {
		return err
	}
	g.announce(ctx, model.ChangeDeleted, path, id)
	return nil
}

// Query runs spec once.
func (g *Gateway) Query(ctx context.Context, path model.CollectionPath, spec *model.QuerySpec) (snaps []model.Snapshot, err error) {
	start := time.Now()
	defer func() { g.metrics.observe(OpQuery, start, err) }()
	q, err := query.Build(path, spec)
	if err != nil {
		return nil, err
	}
	return g.backend.Query(ctx, q)
}

// announce publishes a change; a failed publish is logged and counted but the write stands.
func (g *Gateway) announce(ctx context.Context, typ model.ChangeType, path model.CollectionPath, id string) {
	if g.feed == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishWait)
	defer cancel()

	change := model.Change{Type: typ, Collection: path.String(), DocumentID: id, At: g.now()}
	if err := g.feed.Publish(pubCtx, change); err != nil {
		g.metrics.feedFailed()
		g.log.WithContext(ctx).Errorf("Failed to publish %s change for %s: %v", typ, path.DocumentPath(id), err)
	}
}
