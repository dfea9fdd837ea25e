package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authhttp "carelog/internal/auth/adapter/http"
	"carelog/internal/auth/domain/repository"
	"carelog/internal/shared/contextkeys"
	"carelog/internal/shared/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(provider *mockProvider) *fiber.App {
	middleware := authhttp.NewAuthMiddleware(provider, "session")
	app := fiber.New()
	app.Use(authhttp.RequestID(), authhttp.SecurityHeaders())
	app.Get("/private", middleware.Protect(), func(c *fiber.Ctx) error {
		uid, _ := contextkeys.UserID(c.UserContext())
		return c.SendString(uid)
	})
	app.Get("/public", middleware.Optional(), func(c *fiber.Ctx) error {
		uid, _ := contextkeys.UserID(c.UserContext())
		return c.SendString("hello " + uid)
	})
	return app
}

func body(t *testing.T, app *fiber.App, target string, mutate func(r *http.Request)) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	if mutate != nil {
		mutate(req)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestProtect_TokenSources(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Token", mock.Anything, "tok").Return(&repository.Claims{UserID: "u1"}, nil)
	app := newProtectedApp(provider)

	status, _ := body(t, app, "/private", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, text := body(t, app, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") })
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", text)

	status, text = body(t, app, "/private", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "tok"}) })
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", text)

	status, text = body(t, app, "/private?token=tok", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1", text)
}

func TestProtect_InvalidToken(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Token", mock.Anything, "bad").
		Return(nil, errors.NewAuthenticationError("invalid token").WithCause(errors.ErrInvalidToken))
	app := newProtectedApp(provider)

	status, _ := body(t, app, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") })
	assert.Equal(t, fiber.StatusUnauthorized, status)

	// Optional lets the request through anonymously
	status, text := body(t, app, "/public", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") })
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "hello ", text)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	app := newProtectedApp(&mockProvider{})
	resp, err := app.Test(httptest.NewRequest("GET", "/public", nil))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(authhttp.RateLimiter(2, time.Minute))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	var last int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		last = resp.StatusCode
	}
	assert.Equal(t, fiber.StatusTooManyRequests, last)
}
