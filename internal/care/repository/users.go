package repository

import (
	"context"
	"time"

	"carelog/internal/care/model"
	docmodel "carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
)

// UserRepository keeps one profile document per signed-in user, keyed by the user ID.
type UserRepository struct {
	*Repository[model.User, *model.User]
	now func() time.Time
}

func NewUserRepository(gw *gateway.Gateway) *UserRepository {
	return &UserRepository{
		Repository: New[model.User](gw, docmodel.KindUser),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Upsert merges u into the profile stored under u.ID.
func (r *UserRepository) Upsert(ctx context.Context, u *model.User) error {
	if err := docmodel.ValidateDocumentID(u.ID); err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	return r.Set(ctx, "", u.ID, u, true)
}

func (r *UserRepository) GetUser(ctx context.Context, uid string) (*model.User, error) {
	return r.Get(ctx, "", uid)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, uid string, patch docmodel.Patch) error {
	return r.Update(ctx, "", uid, patch)
}

func (r *UserRepository) CompleteOnboarding(ctx context.Context, uid string) error {
	return r.Update(ctx, "", uid, docmodel.Patch{}.Set("onboardingCompleted", docmodel.Bool(true)))
}
