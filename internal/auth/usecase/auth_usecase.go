package usecase

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"carelog/internal/auth/config"
	"carelog/internal/auth/domain/model"
	"carelog/internal/auth/domain/repository"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/eventbus"
	"carelog/internal/shared/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Password validation constants
const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything longer
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
)

// Provider is the identity provider the app signs users in with.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, code, newPassword string) error
	FederatedSignIn(ctx context.Context, provider, idToken string) (*model.Session, error)

	// OnAuthStateChange calls fn with the current user ID right away and again on every
	// change; an empty ID means signed out. The returned func unsubscribes.
	OnAuthStateChange(fn func(userID string)) (unsubscribe func())
	CurrentUser() (string, bool)

	// Token validates a session token issued by this provider.
	Token(ctx context.Context, token string) (*repository.Claims, error)
}

// IdentityVerifier checks ID tokens issued by federated providers.
type IdentityVerifier interface {
	Supports(provider string) bool
	Verify(ctx context.Context, provider, idToken string) (*repository.IdentityClaims, error)
}

// ResetNotifier delivers password reset codes to their owner.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, email, code string, expiresAt time.Time) error
}

// LogNotifier writes reset codes to the log. Meant for local runs.
type LogNotifier struct {
	Log logger.Logger
}

func (n LogNotifier) NotifyReset(_ context.Context, email, code string, expiresAt time.Time) error {
	logger.OrNop(n.Log).WithFields(map[string]interface{}{
		"email":      email,
		"expires_at": expiresAt,
	}).Infof("Password reset code: %s", code)
	return nil
}

// AuthState is the payload of EventTypeAuthStateChanged.
type AuthState struct {
	UserID string
}

// LocalProvider implements Provider on a CredentialStore with bcrypt hashes and JWT sessions.
type LocalProvider struct {
	store    repository.CredentialStore
	tokenSvc repository.TokenService
	verifier IdentityVerifier
	notifier ResetNotifier
	bus      eventbus.EventBusInterface
	config   *config.Config
	log      logger.Logger
	now      func() time.Time
	newID    func() string

	mu      sync.RWMutex
	current string
}

// NewLocalProvider creates a new LocalProvider.
func NewLocalProvider(
	store repository.CredentialStore,
	tokenSvc repository.TokenService,
	verifier IdentityVerifier,
	notifier ResetNotifier,
	bus eventbus.EventBusInterface,
	cfg *config.Config,
	log logger.Logger,
) *LocalProvider {
	log = logger.OrNop(log).WithComponent("auth")
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &LocalProvider{
		store:    store,
		tokenSvc: tokenSvc,
		verifier: verifier,
		notifier: notifier,
		bus:      bus,
		config:   cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return errors.NewValidationError("email is required")
	}
	if !emailRegex.MatchString(email) {
		return errors.NewValidationError("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.NewValidationError("password is too short").WithDetail("min", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return errors.NewValidationError("password is too long").WithDetail("max", maxPasswordLength)
	}
	if !hasUpper.MatchString(password) || !hasLower.MatchString(password) || !hasNumber.MatchString(password) {
		return errors.NewValidationError("password must mix upper case, lower case and digits")
	}
	return nil
}

func (p *LocalProvider) hash(password string) (string, error) {
	cost := p.config.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.NewInternalError("failed to hash password").WithCause(err)
	}
	return string(hashed), nil
}

func invalidCredentials() error {
	return errors.NewAuthenticationError("invalid credentials").WithCause(errors.ErrInvalidCredentials)
}

// SignUp registers an email/password account and signs it in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hashed, err := p.hash(password)
	if err != nil {
		return nil, err
	}

	now := p.now()
	cred := &model.Credential{
		ID:           p.newID(),
		Email:        email,
		PasswordHash: hashed,
		Provider:     model.ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}
	p.log.WithFields(map[string]interface{}{"user_id": cred.ID}).Info("User signed up")
	return p.startSession(ctx, cred)
}

// SignIn checks an email/password pair.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	cred, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, invalidCredentials()
		}
		return nil, err
	}
	if cred.PasswordHash == "" {
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, invalidCredentials()
	}
	return p.startSession(ctx, cred)
}

// FederatedSignIn signs in with an ID token from provider, creating the account on first use.
func (p *LocalProvider) FederatedSignIn(ctx context.Context, provider, idToken string) (*model.Session, error) {
	if p.verifier == nil || !p.verifier.Supports(provider) {
		return nil, errors.NewValidationError("unsupported identity provider").WithDetail("provider", provider)
	}
	claims, err := p.verifier.Verify(ctx, provider, idToken)
	if err != nil {
		return nil, err
	}

	cred, err := p.store.GetBySubject(ctx, provider, claims.Subject)
	if err == nil {
		return p.startSession(ctx, cred)
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	now := p.now()
	cred = &model.Credential{
		ID:        p.newID(),
		Email:     normalizeEmail(claims.Email),
		Provider:  provider,
		Subject:   claims.Subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}
	p.log.WithFields(map[string]interface{}{"user_id": cred.ID, "provider": provider}).Info("Federated user created")
	return p.startSession(ctx, cred)
}

func (p *LocalProvider) startSession(ctx context.Context, cred *model.Credential) (*model.Session, error) {
	token, expires, err := p.tokenSvc.GenerateToken(ctx, cred.ID, cred.Email, cred.Provider)
	if err != nil {
		return nil, err
	}
	p.setCurrent(ctx, cred.ID)
	return &model.Session{
		UserID:    cred.ID,
		Email:     cred.Email,
		Provider:  cred.Provider,
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

// SignOut clears the current user.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.setCurrent(ctx, "")
	return nil
}

// ResetPassword sends a reset code to email. Unknown addresses succeed silently.
func (p *LocalProvider) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	cred, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			p.log.Debugf("Reset requested for unknown email")
			return nil
		}
		return err
	}
	if cred.PasswordHash == "" {
		p.log.Debugf("Reset requested for federated account %s", cred.ID)
		return nil
	}

	code := model.ResetCode{
		Code:      p.newID(),
		UserID:    cred.ID,
		ExpiresAt: p.now().Add(p.config.ResetCodeTTL),
	}
	if err := p.store.SaveResetCode(ctx, code); err != nil {
		return err
	}
	return p.notifier.NotifyReset(ctx, email, code.Code, code.ExpiresAt)
}

// ConfirmReset sets a new password using a code sent by ResetPassword.
func (p *LocalProvider) ConfirmReset(ctx context.Context, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	rc, err := p.store.TakeResetCode(ctx, code)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.NewAuthenticationError("invalid reset code").WithCause(errors.ErrInvalidToken)
		}
		return err
	}
	if rc.Expired(p.now()) {
		return errors.NewAuthenticationError("reset code has expired").WithCause(errors.ErrTokenExpired)
	}
	hashed, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	return p.store.UpdatePassword(ctx, rc.UserID, hashed)
}

// Token validates a session token.
func (p *LocalProvider) Token(ctx context.Context, token string) (*repository.Claims, error) {
	return p.tokenSvc.ValidateToken(ctx, token)
}

func (p *LocalProvider) CurrentUser() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current != ""
}

func (p *LocalProvider) setCurrent(ctx context.Context, userID string) {
	p.mu.Lock()
	changed := p.current != userID
	p.current = userID
	p.mu.Unlock()
	if !changed {
		return
	}
	event := eventbus.NewBasicEventWithSource(eventbus.EventTypeAuthStateChanged, AuthState{UserID: userID}, "auth")
	if err := p.bus.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.log.Errorf("Failed to publish auth state change: %v", err)
	}
}

func (p *LocalProvider) OnAuthStateChange(fn func(userID string)) func() {
	id := p.bus.Subscribe(eventbus.EventTypeAuthStateChanged, func(_ context.Context, event eventbus.Event) error {
		if state, ok := event.Data().(AuthState); ok {
			fn(state.UserID)
		}
		return nil
	})
	current, _ := p.CurrentUser()
	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() { p.bus.Unsubscribe(eventbus.EventTypeAuthStateChanged, id) })
	}
}

var _ Provider = (*LocalProvider)(nil)
