package config

import (
	"strings"
	"time"

	"carelog/internal/shared/errors"

	"github.com/caarlos0/env/v6"
)

const minSecretLength = 16

// Config holds the identity provider settings. The process config embeds it under AUTH_.
type Config struct {
	JWTSecretKey   string        `env:"JWT_SECRET_KEY"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"carelog"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	ResetCodeTTL   time.Duration `env:"RESET_CODE_TTL" envDefault:"15m"`
	BcryptCost     int           `env:"BCRYPT_COST" envDefault:"10"`

	// FederatedSecrets maps a provider name to the HS256 key its ID tokens are signed with,
	// written as "google:secret1,apple:secret2".
	FederatedSecrets map[string]string `env:"FEDERATED_SECRETS"`

	CookieName   string `env:"COOKIE_NAME" envDefault:"carelog_session"`
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	// Store selects the credential store: "mongo" or "memory".
	Store string `env:"STORE" envDefault:"mongo"`
}

// LoadConfig reads the AUTH_ prefixed environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, env.Options{Prefix: "AUTH_"}); err != nil {
		return nil, errors.NewConfigurationError("failed to load auth configuration").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWTSecretKey) < minSecretLength {
		return errors.NewConfigurationError("AUTH_JWT_SECRET_KEY must be at least 16 characters")
	}
	if strings.TrimSpace(c.JWTIssuer) == "" {
		return errors.NewConfigurationError("AUTH_JWT_ISSUER is required")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.NewConfigurationError("AUTH_ACCESS_TOKEN_TTL must be positive")
	}
	if c.ResetCodeTTL <= 0 {
		return errors.NewConfigurationError("AUTH_RESET_CODE_TTL must be positive")
	}
	switch c.Store {
	case "mongo", "memory":
	default:
		return errors.NewConfigurationError("unknown credential store").WithDetail("store", c.Store)
	}
	for provider, secret := range c.FederatedSecrets {
		if secret == "" {
			return errors.NewConfigurationError("federated provider has no secret").WithDetail("provider", provider)
		}
	}
	return nil
}
