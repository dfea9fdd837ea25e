package repository

import (
	"context"

	"carelog/internal/auth/domain/model"
)

// CredentialStore persists credentials and reset codes.
type CredentialStore interface {
	// CreateCredential fails with a conflict error when the email or the
	// provider subject is already registered.
	CreateCredential(ctx context.Context, cred *model.Credential) error
	GetByEmail(ctx context.Context, email string) (*model.Credential, error)
	GetByID(ctx context.Context, id string) (*model.Credential, error)
	GetBySubject(ctx context.Context, provider, subject string) (*model.Credential, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	SaveResetCode(ctx context.Context, code model.ResetCode) error
	// TakeResetCode returns and removes code; a code can be used once.
	TakeResetCode(ctx context.Context, code string) (*model.ResetCode, error)
}
