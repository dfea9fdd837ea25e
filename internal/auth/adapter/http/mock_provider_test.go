package http_test

import (
	"context"

	"carelog/internal/auth/domain/model"
	"carelog/internal/auth/domain/repository"

	"github.com/stretchr/testify/mock"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) session(args mock.Arguments) (*model.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockProvider) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	return m.session(m.Called(ctx, email, password))
}

func (m *mockProvider) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	return m.session(m.Called(ctx, email, password))
}

func (m *mockProvider) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockProvider) ResetPassword(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockProvider) ConfirmReset(ctx context.Context, code, newPassword string) error {
	return m.Called(ctx, code, newPassword).Error(0)
}

func (m *mockProvider) FederatedSignIn(ctx context.Context, provider, idToken string) (*model.Session, error) {
	return m.session(m.Called(ctx, provider, idToken))
}

func (m *mockProvider) OnAuthStateChange(fn func(userID string)) func() {
	m.Called(fn)
	return func() {}
}

func (m *mockProvider) CurrentUser() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *mockProvider) Token(ctx context.Context, token string) (*repository.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Claims), args.Error(1)
}
