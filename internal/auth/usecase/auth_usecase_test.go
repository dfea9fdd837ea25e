package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"carelog/internal/auth/adapter/persistence/memory"
	"carelog/internal/auth/adapter/security"
	"carelog/internal/auth/domain/model"
	"carelog/internal/auth/domain/repository"
	"carelog/internal/auth/testutil"
	"carelog/internal/auth/usecase"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/eventbus"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *recordingNotifier) NotifyReset(_ context.Context, email, code string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = code
	return nil
}

func (n *recordingNotifier) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

type ProviderTestSuite struct {
	suite.Suite
	store    *memory.CredentialStore
	notifier *recordingNotifier
	provider *usecase.LocalProvider
	ctx      context.Context
}

func (suite *ProviderTestSuite) SetupTest() {
	cfg := testutil.Config()
	tokens, err := security.NewJWTokenService(cfg)
	require.NoError(suite.T(), err)

	suite.ctx = context.Background()
	suite.store = memory.NewCredentialStore()
	suite.notifier = &recordingNotifier{codes: map[string]string{}}
	suite.provider = usecase.NewLocalProvider(
		suite.store,
		tokens,
		security.NewFederatedVerifier(cfg.FederatedSecrets),
		suite.notifier,
		eventbus.NewEventBus(nil),
		cfg,
		nil,
	)
}

func (suite *ProviderTestSuite) TestSignUpThenSignIn() {
	session, err := suite.provider.SignUp(suite.ctx, " Ana@Example.com ", testutil.DefaultPassword)
	require.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), session.UserID)
	assert.Equal(suite.T(), "ana@example.com", session.Email)
	assert.Equal(suite.T(), model.ProviderPassword, session.Provider)

	claims, err := suite.provider.Token(suite.ctx, session.Token)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), session.UserID, claims.UserID)

	require.NoError(suite.T(), suite.provider.SignOut(suite.ctx))
	_, signedIn := suite.provider.CurrentUser()
	assert.False(suite.T(), signedIn)

	again, err := suite.provider.SignIn(suite.ctx, "ana@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), session.UserID, again.UserID)

	uid, signedIn := suite.provider.CurrentUser()
	assert.True(suite.T(), signedIn)
	assert.Equal(suite.T(), session.UserID, uid)
}

func (suite *ProviderTestSuite) TestSignUp_Validation() {
	for _, email := range testutil.InvalidEmails {
		_, err := suite.provider.SignUp(suite.ctx, email, testutil.DefaultPassword)
		assert.True(suite.T(), errors.IsValidation(err), "email %q", email)
	}
	for _, password := range testutil.InvalidPasswords {
		_, err := suite.provider.SignUp(suite.ctx, "ok@example.com", password)
		assert.True(suite.T(), errors.IsValidation(err), "password %q", password)
	}
}

func (suite *ProviderTestSuite) TestSignUp_DuplicateEmail() {
	_, err := suite.provider.SignUp(suite.ctx, "dup@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)
	_, err = suite.provider.SignUp(suite.ctx, "DUP@example.com", testutil.DefaultPassword)
	assert.True(suite.T(), errors.IsConflict(err))
}

func (suite *ProviderTestSuite) TestSignIn_Failures() {
	require.NoError(suite.T(), suite.store.CreateCredential(suite.ctx, testutil.NewCredentialFixture().Valid()))

	_, err := suite.provider.SignIn(suite.ctx, "test@example.com", "Wr0ngPassword")
	assert.ErrorIs(suite.T(), err, errors.ErrInvalidCredentials)

	_, err = suite.provider.SignIn(suite.ctx, "nobody@example.com", testutil.DefaultPassword)
	assert.ErrorIs(suite.T(), err, errors.ErrInvalidCredentials)
	assert.True(suite.T(), errors.IsAuthentication(err))

	// federated accounts have no password to check
	require.NoError(suite.T(), suite.store.CreateCredential(suite.ctx, testutil.NewCredentialFixture().Federated("google", "g-9")))
	_, err = suite.provider.SignIn(suite.ctx, "g-9@google.example", "")
	assert.ErrorIs(suite.T(), err, errors.ErrInvalidCredentials)
}

func (suite *ProviderTestSuite) TestPasswordReset() {
	_, err := suite.provider.SignUp(suite.ctx, "reset@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.provider.ResetPassword(suite.ctx, "reset@example.com"))
	code := suite.notifier.code("reset@example.com")
	require.NotEmpty(suite.T(), code)

	require.NoError(suite.T(), suite.provider.ConfirmReset(suite.ctx, code, "N3wPassword"))

	_, err = suite.provider.SignIn(suite.ctx, "reset@example.com", testutil.DefaultPassword)
	assert.True(suite.T(), errors.IsAuthentication(err))
	_, err = suite.provider.SignIn(suite.ctx, "reset@example.com", "N3wPassword")
	assert.NoError(suite.T(), err)

	// codes are single use
	err = suite.provider.ConfirmReset(suite.ctx, code, "An0therPassword")
	assert.ErrorIs(suite.T(), err, errors.ErrInvalidToken)
}

func (suite *ProviderTestSuite) TestPasswordReset_UnknownEmailIsSilent() {
	require.NoError(suite.T(), suite.provider.ResetPassword(suite.ctx, "ghost@example.com"))
	assert.Empty(suite.T(), suite.notifier.code("ghost@example.com"))

	assert.True(suite.T(), errors.IsValidation(suite.provider.ResetPassword(suite.ctx, "not-an-email")))
}

func (suite *ProviderTestSuite) TestConfirmReset_Expired() {
	require.NoError(suite.T(), suite.store.SaveResetCode(suite.ctx, model.ResetCode{
		Code:      "old",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	err := suite.provider.ConfirmReset(suite.ctx, "old", "N3wPassword")
	assert.ErrorIs(suite.T(), err, errors.ErrTokenExpired)
}

func (suite *ProviderTestSuite) TestFederatedSignIn() {
	idToken := func(subject string) string {
		claims := &repository.IdentityClaims{
			Email: subject + "@gmail.test",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "google",
				Subject:   subject,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("google-test-key"))
		require.NoError(suite.T(), err)
		return signed
	}

	first, err := suite.provider.FederatedSignIn(suite.ctx, "google", idToken("g-1"))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "google", first.Provider)

	second, err := suite.provider.FederatedSignIn(suite.ctx, "google", idToken("g-1"))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), first.UserID, second.UserID, "the same subject maps to one account")

	_, err = suite.provider.FederatedSignIn(suite.ctx, "apple", idToken("g-1"))
	assert.True(suite.T(), errors.IsValidation(err))

	_, err = suite.provider.FederatedSignIn(suite.ctx, "google", "garbage")
	assert.True(suite.T(), errors.IsAuthentication(err))
}

func (suite *ProviderTestSuite) TestOnAuthStateChange() {
	var mu sync.Mutex
	var seen []string
	unsubscribe := suite.provider.OnAuthStateChange(func(uid string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, uid)
	})

	session, err := suite.provider.SignUp(suite.ctx, "watch@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)
	// signing in as the same user is not a change
	_, err = suite.provider.SignIn(suite.ctx, "watch@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), suite.provider.SignOut(suite.ctx))

	unsubscribe()
	unsubscribe()
	_, err = suite.provider.SignIn(suite.ctx, "watch@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(suite.T(), []string{"", session.UserID, ""}, seen)
}

func (suite *ProviderTestSuite) TestOnAuthStateChange_DeliversCurrentUser() {
	session, err := suite.provider.SignUp(suite.ctx, "late@example.com", testutil.DefaultPassword)
	require.NoError(suite.T(), err)

	var first string
	unsubscribe := suite.provider.OnAuthStateChange(func(uid string) {
		if first == "" {
			first = uid
		}
	})
	defer unsubscribe()
	assert.Equal(suite.T(), session.UserID, first)
}

func TestProviderTestSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

// failingStore reports transport failures from every lookup.
type failingStore struct {
	mock.Mock
	repository.CredentialStore
}

func (m *failingStore) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	args := m.Called(ctx, email)
	return nil, args.Error(1)
}

func TestSignIn_StoreFailureIsNotMasked(t *testing.T) {
	store := &failingStore{}
	store.On("GetByEmail", mock.Anything, "ana@example.com").
		Return(nil, errors.NewTransportError("find credential", context.DeadlineExceeded))

	cfg := testutil.Config()
	tokens, err := security.NewJWTokenService(cfg)
	require.NoError(t, err)
	provider := usecase.NewLocalProvider(store, tokens, nil, nil, eventbus.NewEventBus(nil), cfg, nil)

	_, err = provider.SignIn(context.Background(), "ana@example.com", testutil.DefaultPassword)
	assert.True(t, errors.IsRetryable(err))
	assert.False(t, errors.IsAuthentication(err))
	store.AssertExpectations(t)
}
