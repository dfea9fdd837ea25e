package repository

import (
	"context"
	"time"

	"carelog/internal/blob"
	"carelog/internal/care/model"
	docmodel "carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/logger"

	"github.com/google/uuid"
)

const photoField = "photoURL"

// KidRepository stores kid profiles and their photos.
type KidRepository struct {
	*Repository[model.Kid, *model.Kid]
	blobs blob.Store
	log   logger.Logger
	newID func() string
}

func NewKidRepository(gw *gateway.Gateway, blobs blob.Store, log logger.Logger) *KidRepository {
	return &KidRepository{
		Repository: New[model.Kid](gw, docmodel.KindKid),
		blobs:      blobs,
		log:        logger.OrNop(log).WithComponent("kid_repository"),
		newID:      uuid.NewString,
	}
}

func (r *KidRepository) photoKey(path docmodel.CollectionPath) string {
	return path.String() + "/photos/" + r.newID()
}

// Add uploads kid.Photo, if any, stores the resulting reference in PhotoURL and
// then creates the kid document.
func (r *KidRepository) Add(ctx context.Context, owner string, kid *model.Kid) (string, error) {
	path, err := r.Path(owner)
	if err != nil {
		return "", err
	}
	if err := kid.Validate(); err != nil {
		return "", err
	}

	var uploaded *blob.ContentRef
	previousURL := kid.PhotoURL
	if len(kid.Photo) > 0 {
		ref, err := r.blobs.Upload(ctx, r.photoKey(path), kid.Photo, kid.PhotoContentType)
		if err != nil {
			return "", err
		}
		uploaded = &ref
		url := ref.String()
		kid.PhotoURL = &url
	}

	id, err := r.addAt(ctx, path, kid)
	if err != nil {
		if uploaded != nil {
			r.discard(ctx, *uploaded)
			kid.PhotoURL = previousURL
		}
		return "", err
	}
	kid.Photo = nil
	return id, nil
}

// ReplacePhoto uploads a new photo for an existing kid and drops the previous one.
func (r *KidRepository) ReplacePhoto(ctx context.Context, owner, id string, data []byte, contentType string) (blob.ContentRef, error) {
	path, err := r.Path(owner)
	if err != nil {
		return blob.ContentRef{}, err
	}
	current, err := r.getAt(ctx, path, id)
	if err != nil {
		return blob.ContentRef{}, err
	}
	ref, err := r.blobs.Upload(ctx, r.photoKey(path), data, contentType)
	if err != nil {
		return blob.ContentRef{}, err
	}
	patch := docmodel.Patch{}.Set(photoField, docmodel.String(ref.String()))
	if err := r.gw.UpdateFields(ctx, path, id, patch); err != nil {
		r.discard(ctx, ref)
		return blob.ContentRef{}, err
	}
	r.dropPhoto(ctx, current)
	return ref, nil
}

// PhotoURL returns a fetchable address for the kid's photo.
func (r *KidRepository) PhotoURL(ctx context.Context, kid *model.Kid, expiry time.Duration) (string, error) {
	if kid.PhotoURL == nil {
		return "", nil
	}
	ref, err := blob.ParseContentRef(*kid.PhotoURL)
	if err != nil {
		return "", err
	}
	return r.blobs.URL(ctx, ref, expiry)
}

// Remove deletes the kid document and then its photo.
func (r *KidRepository) Remove(ctx context.Context, owner, id string) error {
	path, err := r.Path(owner)
	if err != nil {
		return err
	}
	kid, err := r.getAt(ctx, path, id)
	if err != nil {
		return err
	}
	if err := r.gw.DeleteDocument(ctx, path, id); err != nil {
		return err
	}
	r.dropPhoto(ctx, kid)
	return nil
}

func (r *KidRepository) dropPhoto(ctx context.Context, kid *model.Kid) {
	if kid.PhotoURL == nil || *kid.PhotoURL == "" {
		return
	}
	ref, err := blob.ParseContentRef(*kid.PhotoURL)
	if err != nil {
		r.log.Warnf("Kid %s has an unparseable photo reference: %v", kid.ID, err)
		return
	}
	r.discard(ctx, ref)
}

func (r *KidRepository) discard(ctx context.Context, ref blob.ContentRef) {
	if err := r.blobs.Delete(ctx, ref); err != nil {
		r.log.Warnf("Failed to delete photo %s: %v", ref, err)
	}
}
