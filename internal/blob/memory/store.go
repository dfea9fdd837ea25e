// Package memory implements an in-memory blob Store for tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"carelog/internal/blob"
	"carelog/internal/shared/errors"
)

type object struct {
	data        []byte
	contentType string
}

// Store keeps blobs in process memory under a single bucket name.
type Store struct {
	bucket string

	mu   sync.RWMutex
	objs map[string]object
}

func New(bucket string) *Store {
	if bucket == "" {
		bucket = "local"
	}
	return &Store{bucket: bucket, objs: make(map[string]object)}
}

func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (blob.ContentRef, error) {
	if err := ctx.Err(); err != nil {
		return blob.ContentRef{}, errors.NewTransportError("upload cancelled", err)
	}
	if err := blob.ValidateKey(key); err != nil {
		return blob.ContentRef{}, err
	}
	s.mu.Lock()
	s.objs[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	s.mu.Unlock()
	return blob.ContentRef{Scheme: blob.SchemeMemory, Bucket: s.bucket, Key: key}, nil
}

func (s *Store) Download(ctx context.Context, ref blob.ContentRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewTransportError("download cancelled", err)
	}
	if err := blob.CheckRef(ref, blob.SchemeMemory, s.bucket); err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objs[ref.Key]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError("blob").WithDetail("ref", ref.String())
	}
	return append([]byte(nil), obj.data...), nil
}

// URL returns the ref itself; memory blobs have no network address.
func (s *Store) URL(_ context.Context, ref blob.ContentRef, _ time.Duration) (string, error) {
	if err := blob.CheckRef(ref, blob.SchemeMemory, s.bucket); err != nil {
		return "", err
	}
	s.mu.RLock()
	_, ok := s.objs[ref.Key]
	s.mu.RUnlock()
	if !ok {
		return "", errors.NewNotFoundError("blob").WithDetail("ref", ref.String())
	}
	return ref.String(), nil
}

func (s *Store) Delete(_ context.Context, ref blob.ContentRef) error {
	if err := blob.CheckRef(ref, blob.SchemeMemory, s.bucket); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objs, ref.Key)
	s.mu.Unlock()
	return nil
}

// ContentType reports the stored content type of key.
func (s *Store) ContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	return obj.contentType, ok
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
