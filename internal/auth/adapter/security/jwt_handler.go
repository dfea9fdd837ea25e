package security

import (
	"context"
	stderrors "errors"
	"time"

	"carelog/internal/auth/config"
	"carelog/internal/auth/domain/repository"
	"carelog/internal/shared/errors"

	"github.com/golang-jwt/jwt/v5"
)

// JWTokenService implements session token generation and validation with HS256.
type JWTokenService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTokenService creates a new JWT token service
func NewJWTokenService(cfg *config.Config) (*JWTokenService, error) {
	if cfg.JWTSecretKey == "" {
		return nil, errors.NewConfigurationError("jwt secret key cannot be empty")
	}
	if cfg.JWTIssuer == "" {
		return nil, errors.NewConfigurationError("jwt issuer cannot be empty")
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, errors.NewConfigurationError("jwt access token TTL must be positive")
	}
	return &JWTokenService{
		secretKey: []byte(cfg.JWTSecretKey),
		issuer:    cfg.JWTIssuer,
		ttl:       cfg.AccessTokenTTL,
		now:       time.Now,
	}, nil
}

// GenerateToken signs a session token for userID.
func (s *JWTokenService) GenerateToken(_ context.Context, userID, email, provider string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &repository.Claims{
		UserID:   userID,
		Email:    email,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, errors.NewInternalError("failed to sign token").WithCause(err)
	}
	return signed, expires, nil
}

// ValidateToken checks signature, expiry and issuer and returns the claims.
func (s *JWTokenService) ValidateToken(_ context.Context, tokenString string) (*repository.Claims, error) {
	claims := &repository.Claims{}
	if err := parseHS256(tokenString, s.secretKey, claims, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now)); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.NewAuthenticationError("token has no user").WithCause(errors.ErrInvalidToken)
	}
	return claims, nil
}

// FederatedVerifier checks ID tokens issued by external identity providers. Each
// provider signs with its own shared HS256 key and puts its name in "iss".
type FederatedVerifier struct {
	secrets map[string][]byte
	now     func() time.Time
}

func NewFederatedVerifier(secrets map[string]string) *FederatedVerifier {
	keys := make(map[string][]byte, len(secrets))
	for provider, secret := range secrets {
		keys[provider] = []byte(secret)
	}
	return &FederatedVerifier{secrets: keys, now: time.Now}
}

// Supports reports whether provider is configured.
func (v *FederatedVerifier) Supports(provider string) bool {
	_, ok := v.secrets[provider]
	return ok
}

// Verify returns the claims of idToken once it is proven to come from provider.
func (v *FederatedVerifier) Verify(_ context.Context, provider, idToken string) (*repository.IdentityClaims, error) {
	key, ok := v.secrets[provider]
	if !ok {
		return nil, errors.NewValidationError("unsupported identity provider").WithDetail("provider", provider)
	}
	claims := &repository.IdentityClaims{}
	if err := parseHS256(idToken, key, claims, jwt.WithIssuer(provider), jwt.WithTimeFunc(v.now)); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.NewAuthenticationError("identity token has no subject").WithCause(errors.ErrInvalidToken)
	}
	return claims, nil
}

func parseHS256(tokenString string, key []byte, claims jwt.Claims, opts ...jwt.ParserOption) error {
	if tokenString == "" {
		return errors.NewAuthenticationError("token is required").WithCause(errors.ErrInvalidToken)
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return errors.NewAuthenticationError("token is expired").WithCause(errors.ErrTokenExpired)
	}
	return errors.NewAuthenticationError("token is invalid").WithCause(stderrors.Join(errors.ErrInvalidToken, err))
}
