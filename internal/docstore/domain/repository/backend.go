package repository

import (
	"context"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/query"
)

// Backend is the persistence port the gateway writes through. Paths are already
// resolved and document IDs already validated when a method is called.
type Backend interface {
	// Insert creates a document and fails with a conflict error if the ID is taken.
	Insert(ctx context.Context, path model.CollectionPath, id string, fields model.Fields) error
	// Set upserts. merge keeps stored fields the call does not mention.
	Set(ctx context.Context, path model.CollectionPath, id string, fields model.Fields, merge bool) error
	// Get returns a not-found error for a missing document.
	Get(ctx context.Context, path model.CollectionPath, id string) (model.Fields, error)
	// Update patches an existing document and never creates one.
	Update(ctx context.Context, path model.CollectionPath, id string, fields model.Fields) error
	Delete(ctx context.Context, path model.CollectionPath, id string) error
	Query(ctx context.Context, q query.NativeQuery) ([]model.Snapshot, error)
	Close(ctx context.Context) error
}

// ChangeFeed carries document change notices between writers and live subscriptions.
type ChangeFeed interface {
	Publish(ctx context.Context, change model.Change) error
	// Watch calls fn for every change published on collection until stop is called.
	Watch(ctx context.Context, collection string, fn func(model.Change)) (stop func(), err error)
	Close() error
}
