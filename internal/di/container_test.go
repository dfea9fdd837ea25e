package di

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authmodel "carelog/internal/auth/domain/model"
	"carelog/internal/care/repository"
	"carelog/internal/config"
	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	vars := map[string]string{
		"STORE_DRIVER":        "memory",
		"AUTH_STORE":          "memory",
		"AUTH_JWT_SECRET_KEY": "test-secret-key-32-characters-long-12345",
		"AUTH_BCRYPT_COST":    "4",
	}
	for k, v := range overrides {
		vars[k] = v
	}
	cfg, err := config.Parse(env.Options{Environment: vars})
	require.NoError(t, err)
	return cfg
}

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), memoryConfig(t, nil), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func request(t *testing.T, app *fiber.App, method, target, token string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestNewContainer_Memory(t *testing.T) {
	c := newTestContainer(t)
	assert.Nil(t, c.MongoClient)
	assert.Nil(t, c.Redis)
	assert.NoError(t, c.HealthCheck(context.Background()))

	gw, err := GetService[*gateway.Gateway](c)
	require.NoError(t, err)
	assert.Same(t, c.Gateway, gw)

	kids, err := GetService[*repository.KidRepository](c)
	require.NoError(t, err)
	assert.Same(t, c.Kids, kids)

	_, err = GetService[*time.Location](c)
	assert.Error(t, err)
}

func TestNewContainer_BadPolicy(t *testing.T) {
	var c *Container
	var err error
	require.NotPanics(t, func() {
		c, err = NewContainer(context.Background(), memoryConfig(t, map[string]string{"POLICY_RULE": "owner =="}), logger.NewNopLogger())
	})
	assert.True(t, errors.IsConfiguration(err))
	assert.Nil(t, c)
}

func TestNewContainer_UnreachableRedisFeed(t *testing.T) {
	cfg := memoryConfig(t, map[string]string{
		"FEED_DRIVER": "redis",
		"REDIS_HOST":  "127.0.0.1",
		"REDIS_PORT":  "1",
	})
	var c *Container
	var err error
	require.NotPanics(t, func() {
		c, err = NewContainer(context.Background(), cfg, logger.NewNopLogger())
	})
	assert.True(t, errors.IsTransport(err))
	assert.Nil(t, c)
}

func TestApp_HealthAndMetrics(t *testing.T) {
	app := newTestContainer(t).NewApp()

	resp, raw := request(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"HEALTHY"`)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	resp, raw = request(t, app, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestApp_SignUpDrivesSessionView(t *testing.T) {
	c := newTestContainer(t)
	app := c.NewApp()

	resp, raw := request(t, app, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email": "parent@example.com", "password": "Passw0rdOK",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var session authmodel.Session
	require.NoError(t, json.Unmarshal(raw, &session))

	resp, raw = request(t, app, http.MethodPost, "/v1/users/"+session.UserID+"/kids", session.Token, map[string]string{"fullname": "Mia"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var view SessionResponse
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, raw = request(t, app, http.MethodGet, "/v1/session", "", nil)
		require.NoError(t, json.Unmarshal(raw, &view))
		if len(view.Kids.Items) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, session.UserID, view.UserID)
	require.Len(t, view.Kids.Items, 1)
	assert.Equal(t, "Mia", view.Kids.Items[0].Fullname)

	resp, _ = request(t, app, http.MethodPost, "/v1/auth/signout", session.Token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, raw = request(t, app, http.MethodGet, "/v1/session", "", nil)
		require.NoError(t, json.Unmarshal(raw, &view))
		if view.UserID == "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Empty(t, view.UserID)
	assert.Empty(t, view.Kids.Items)
}

func TestContainer_CloseTwice(t *testing.T) {
	c, err := NewContainer(context.Background(), memoryConfig(t, nil), logger.NewNopLogger())
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	_, err = GetService[*gateway.Gateway](c)
	assert.Error(t, err)
}
