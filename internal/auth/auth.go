package auth

import (
	"context"

	authhttp "carelog/internal/auth/adapter/http"
	"carelog/internal/auth/adapter/persistence/memory"
	"carelog/internal/auth/adapter/persistence/mongodb"
	"carelog/internal/auth/adapter/security"
	"carelog/internal/auth/config"
	"carelog/internal/auth/domain/repository"
	"carelog/internal/auth/usecase"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/eventbus"
	"carelog/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuthModule represents the complete authentication module
type AuthModule struct {
	store      repository.CredentialStore
	tokenSvc   repository.TokenService
	provider   *usecase.LocalProvider
	handler    *authhttp.AuthHTTPHandler
	middleware *authhttp.AuthMiddleware
	config     *config.Config
}

// Options carries the collaborators NewAuthModule does not build itself.
type Options struct {
	// Database backs the credential store when Config.Store is "mongo".
	Database *mongo.Database
	Bus      eventbus.EventBusInterface
	Notifier usecase.ResetNotifier
	Log      logger.Logger
}

// NewAuthModule creates a new authentication module instance
func NewAuthModule(ctx context.Context, cfg *config.Config, opts Options) (*AuthModule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store repository.CredentialStore
	switch cfg.Store {
	case "memory":
		store = memory.NewCredentialStore()
	default:
		if opts.Database == nil {
			return nil, errors.NewConfigurationError("mongo credential store needs a database")
		}
		mongoStore, err := mongodb.NewMongoCredentialStore(ctx, opts.Database)
		if err != nil {
			return nil, err
		}
		store = mongoStore
	}

	tokenSvc, err := security.NewJWTokenService(cfg)
	if err != nil {
		return nil, err
	}

	bus := opts.Bus
	if bus == nil {
		bus = eventbus.NewEventBus(opts.Log)
	}
	provider := usecase.NewLocalProvider(
		store,
		tokenSvc,
		security.NewFederatedVerifier(cfg.FederatedSecrets),
		opts.Notifier,
		bus,
		cfg,
		opts.Log,
	)

	handler := authhttp.NewAuthHTTPHandler(provider, authhttp.CookieConfig{
		Name:   cfg.CookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	})

	return &AuthModule{
		store:      store,
		tokenSvc:   tokenSvc,
		provider:   provider,
		handler:    handler,
		middleware: authhttp.NewAuthMiddleware(provider, handler.CookieName()),
		config:     cfg,
	}, nil
}

// RegisterRoutes registers authentication routes with the provided router
func (am *AuthModule) RegisterRoutes(router fiber.Router) {
	am.handler.RegisterRoutes(router, am.middleware)
}

// Provider returns the identity provider.
func (am *AuthModule) Provider() usecase.Provider {
	return am.provider
}

// Middleware returns the auth middleware
func (am *AuthModule) Middleware() *authhttp.AuthMiddleware {
	return am.middleware
}
