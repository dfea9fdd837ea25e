package testutil

import (
	"time"

	"carelog/internal/auth/config"
	"carelog/internal/auth/domain/model"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword satisfies the password rules and is used by every fixture credential.
const DefaultPassword = "Passw0rdOK"

// CredentialFixture provides test data for Credential model
type CredentialFixture struct{}

func NewCredentialFixture() *CredentialFixture {
	return &CredentialFixture{}
}

// WithPassword returns a password credential for email.
func (f *CredentialFixture) WithPassword(email, password string) *model.Credential {
	hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	now := time.Now().UTC()
	return &model.Credential{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: string(hashed),
		Provider:     model.ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Valid returns a password credential using DefaultPassword.
func (f *CredentialFixture) Valid() *model.Credential {
	return f.WithPassword("test@example.com", DefaultPassword)
}

// Federated returns a credential linked to provider/subject.
func (f *CredentialFixture) Federated(provider, subject string) *model.Credential {
	now := time.Now().UTC()
	return &model.Credential{
		ID:        "fed-" + subject,
		Email:     subject + "@" + provider + ".example",
		Provider:  provider,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Config returns an auth config usable without environment variables.
func Config() *config.Config {
	return &config.Config{
		JWTSecretKey:   "test-secret-key-32-characters-long-12345",
		JWTIssuer:      "carelog-test",
		AccessTokenTTL: time.Hour,
		ResetCodeTTL:   15 * time.Minute,
		BcryptCost:     bcrypt.MinCost,
		FederatedSecrets: map[string]string{
			"google": "google-test-key",
		},
		Store: "memory",
	}
}

// Common test emails for validation testing
var (
	ValidEmails = []string{
		"test@example.com",
		"user.name@domain.co.uk",
		"user+tag@example.org",
		"firstname.lastname@company.com",
	}

	InvalidEmails = []string{
		"",
		"invalid-email",
		"@example.com",
		"test@",
		"test.example.com",
		"test@.com",
		"test@com.",
		"test space@example.com",
	}

	InvalidPasswords = []string{
		"",
		"Sh0rt",
		"alllowercase1",
		"ALLUPPERCASE1",
		"NoDigitsHere",
	}
)
