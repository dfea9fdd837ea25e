// Package memory keeps credentials in process memory for tests and single-node runs.
package memory

import (
	"context"
	"strings"
	"sync"

	"carelog/internal/auth/domain/model"
	"carelog/internal/shared/errors"
)

type CredentialStore struct {
	mu      sync.RWMutex
	byID    map[string]model.Credential
	byEmail map[string]string
	bySub   map[string]string
	codes   map[string]model.ResetCode
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byID:    make(map[string]model.Credential),
		byEmail: make(map[string]string),
		bySub:   make(map[string]string),
		codes:   make(map[string]model.ResetCode),
	}
}

func subjectKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (s *CredentialStore) CreateCredential(_ context.Context, cred *model.Credential) error {
	if cred == nil || cred.ID == "" {
		return errors.NewValidationError("credential id is required")
	}
	email := strings.ToLower(cred.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byID[cred.ID]; taken {
		return errors.NewConflictError("user id already exists")
	}
	if _, taken := s.byEmail[email]; email != "" && taken {
		return errors.NewConflictError("email is already taken")
	}
	if cred.Subject != "" {
		if _, taken := s.bySub[subjectKey(cred.Provider, cred.Subject)]; taken {
			return errors.NewConflictError("identity is already linked")
		}
		s.bySub[subjectKey(cred.Provider, cred.Subject)] = cred.ID
	}
	if email != "" {
		s.byEmail[email] = cred.ID
	}
	s.byID[cred.ID] = *cred
	return nil
}

func (s *CredentialStore) lookup(id string, ok bool) (*model.Credential, error) {
	if !ok {
		return nil, errors.NewNotFoundError("user")
	}
	cred, ok := s.byID[id]
	if !ok {
		return nil, errors.NewNotFoundError("user")
	}
	return &cred, nil
}

func (s *CredentialStore) GetByEmail(_ context.Context, email string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	return s.lookup(id, ok)
}

func (s *CredentialStore) GetByID(_ context.Context, id string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id, true)
}

func (s *CredentialStore) GetBySubject(_ context.Context, provider, subject string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySub[subjectKey(provider, subject)]
	return s.lookup(id, ok)
}

func (s *CredentialStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[id]
	if !ok {
		return errors.NewNotFoundError("user")
	}
	cred.PasswordHash = passwordHash
	s.byID[id] = cred
	return nil
}

func (s *CredentialStore) SaveResetCode(_ context.Context, code model.ResetCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code
	return nil
}

func (s *CredentialStore) TakeResetCode(_ context.Context, code string) (*model.ResetCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.codes[code]
	if !ok {
		return nil, errors.NewNotFoundError("reset code")
	}
	delete(s.codes, code)
	return &rc, nil
}
