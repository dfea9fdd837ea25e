package http

import (
	"context"
	"strings"
	"time"

	"carelog/internal/auth/domain/repository"
	"carelog/internal/shared/contextkeys"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const claimsLocal = "authClaims"

// TokenValidator resolves a session token to its claims.
type TokenValidator interface {
	Token(ctx context.Context, token string) (*repository.Claims, error)
}

// AuthMiddleware provides authentication middleware for Fiber
type AuthMiddleware struct {
	tokens     TokenValidator
	cookieName string
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokens TokenValidator, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:     tokens,
		cookieName: cookieName,
	}
}

// CORS allows the given comma separated origins.
func CORS(origins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,X-Request-ID",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	})
}

// SecurityHeaders adds security headers
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		return c.Next()
	}
}

// RateLimiter limits each client address to max requests per window.
func RateLimiter(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Get("X-Forwarded-For", c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(utils.ErrorBody{
				Error: "rate limit exceeded, try again later",
			})
		},
	})
}

// RequestID tags every request with an X-Request-ID.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// Protect rejects requests without a valid session token and records the user otherwise.
func (m *AuthMiddleware) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := m.extractToken(c)
		if token == "" {
			return utils.WriteError(c, errors.NewAuthenticationError("authentication required").WithCause(errors.ErrUnauthorized))
		}
		claims, err := m.tokens.Token(c.UserContext(), token)
		if err != nil {
			return utils.WriteError(c, err)
		}
		c.Locals(claimsLocal, claims)
		utils.WithUserID(c, claims.UserID)
		return c.Next()
	}
}

// Optional records the user when a valid token is present and continues either way.
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := m.extractToken(c)
		if token == "" {
			return c.Next()
		}
		if claims, err := m.tokens.Token(c.UserContext(), token); err == nil {
			c.Locals(claimsLocal, claims)
			utils.WithUserID(c, claims.UserID)
		}
		return c.Next()
	}
}

// extractToken looks at the Authorization header, then the cookie, then the token query
// parameter used by websocket clients.
func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token := c.Cookies(m.cookieName); token != "" {
		return token
	}
	return c.Query("token")
}

// ClaimsFrom returns the claims Protect stored for the request.
func ClaimsFrom(c *fiber.Ctx) (*repository.Claims, bool) {
	claims, ok := c.Locals(claimsLocal).(*repository.Claims)
	return claims, ok
}
