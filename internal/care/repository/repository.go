// Package repository exposes typed access to the care records. Every call resolves its
// collection path once through the path resolver; no path strings are built here.
package repository

import (
	"context"

	"carelog/internal/care/model"
	"carelog/internal/docstore/codec"
	docmodel "carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
)

// Record is satisfied by pointers to the care entities.
type Record[T any] interface {
	*T
	model.Identified
}

type validator interface {
	Validate() error
}

// Repository is the generic typed wrapper over the gateway for one entity kind.
type Repository[T any, PT Record[T]] struct {
	gw   *gateway.Gateway
	kind docmodel.EntityKind
}

func New[T any, PT Record[T]](gw *gateway.Gateway, kind docmodel.EntityKind) *Repository[T, PT] {
	return &Repository[T, PT]{gw: gw, kind: kind}
}

// Kind returns the entity kind the repository stores.
func (r *Repository[T, PT]) Kind() docmodel.EntityKind { return r.kind }

// Path resolves the collection of owner.
func (r *Repository[T, PT]) Path(owner string) (docmodel.CollectionPath, error) {
	return docmodel.Resolve(r.kind, owner)
}

func encode(rec interface{}) (docmodel.Fields, error) {
	if v, ok := rec.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return codec.Encode(rec)
}

// Add stores rec under a generated ID, sets the ID on rec and returns it.
func (r *Repository[T, PT]) Add(ctx context.Context, owner string, rec PT) (string, error) {
	path, err := r.Path(owner)
	if err != nil {
		return "", err
	}
	return r.addAt(ctx, path, rec)
}

func (r *Repository[T, PT]) addAt(ctx context.Context, path docmodel.CollectionPath, rec PT) (string, error) {
	fields, err := encode(rec)
	if err != nil {
		return "", err
	}
	id, err := r.gw.AddDocument(ctx, path, fields)
	if err != nil {
		return "", err
	}
	rec.SetDocumentID(id)
	return id, nil
}

// Set writes rec under id. With merge the stored fields absent from rec are kept.
func (r *Repository[T, PT]) Set(ctx context.Context, owner, id string, rec PT, merge bool) error {
	path, err := r.Path(owner)
	if err != nil {
		return err
	}
	fields, err := encode(rec)
	if err != nil {
		return err
	}
	if err := r.gw.SetDocument(ctx, path, id, fields, merge); err != nil {
		return err
	}
	rec.SetDocumentID(id)
	return nil
}

func (r *Repository[T, PT]) Get(ctx context.Context, owner, id string) (PT, error) {
	path, err := r.Path(owner)
	if err != nil {
		return nil, err
	}
	return r.getAt(ctx, path, id)
}

func (r *Repository[T, PT]) getAt(ctx context.Context, path docmodel.CollectionPath, id string) (PT, error) {
	fields, err := r.gw.GetDocument(ctx, path, id)
	if err != nil {
		return nil, err
	}
	rec, err := r.decode(docmodel.Snapshot{ID: id, Fields: fields})
	if err != nil {
		return nil, err
	}
	return PT(&rec), nil
}

// Update applies patch to an existing record.
func (r *Repository[T, PT]) Update(ctx context.Context, owner, id string, patch docmodel.Patch) error {
	path, err := r.Path(owner)
	if err != nil {
		return err
	}
	return r.gw.UpdateFields(ctx, path, id, patch)
}

func (r *Repository[T, PT]) Delete(ctx context.Context, owner, id string) error {
	path, err := r.Path(owner)
	if err != nil {
		return err
	}
	return r.gw.DeleteDocument(ctx, path, id)
}

// Query runs spec once and decodes the result.
func (r *Repository[T, PT]) Query(ctx context.Context, owner string, spec *docmodel.QuerySpec) ([]T, error) {
	path, err := r.Path(owner)
	if err != nil {
		return nil, err
	}
	snaps, err := r.gw.Query(ctx, path, spec)
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll(snaps, r.decode)
}

// Listen delivers the full collection of owner on every change.
func (r *Repository[T, PT]) Listen(owner string, onUpdate func([]T, error)) (*gateway.Subscription, error) {
	return r.ListenWhere(owner, nil, onUpdate)
}

// ListenWhere delivers the records matching spec on every change.
func (r *Repository[T, PT]) ListenWhere(owner string, spec *docmodel.QuerySpec, onUpdate func([]T, error)) (*gateway.Subscription, error) {
	path, err := r.Path(owner)
	if err != nil {
		return nil, err
	}
	return gateway.Listen(r.gw, path, spec, r.decode, onUpdate)
}

func (r *Repository[T, PT]) decode(snap docmodel.Snapshot) (T, error) {
	var rec T
	if err := codec.Decode(snap.Fields, PT(&rec)); err != nil {
		return rec, err
	}
	PT(&rec).SetDocumentID(snap.ID)
	return rec, nil
}
