package di

import (
	"context"
	"strings"
	"time"

	authhttp "carelog/internal/auth/adapter/http"
	carehttp "carelog/internal/care/adapter/http"
	"carelog/internal/care/controller"
	caremodel "carelog/internal/care/model"
	docstorehttp "carelog/internal/docstore/adapter/http"
	"carelog/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionResponse is the view state of the signed-in user on this process.
type SessionResponse struct {
	UserID string       `json:"userId"`
	Kids   KidsViewBody `json:"kids"`
}

type KidsViewBody struct {
	Items     []caremodel.Kid  `json:"items"`
	Loading   bool             `json:"loading"`
	Error     *utils.ErrorBody `json:"error,omitempty"`
	UpdatedAt *time.Time       `json:"updatedAt,omitempty"`
}

func kidsViewBody(st controller.State[caremodel.Kid]) KidsViewBody {
	body := KidsViewBody{Items: st.Items, Loading: st.Loading}
	if body.Items == nil {
		body.Items = []caremodel.Kid{}
	}
	if st.Err != nil {
		e := utils.NewErrorBody(st.Err)
		body.Error = &e
	}
	if !st.UpdatedAt.IsZero() {
		at := st.UpdatedAt
		body.UpdatedAt = &at
	}
	return body
}

// NewApp assembles the HTTP API on top of the container's components.
func (c *Container) NewApp() *fiber.App {
	cfg := c.Config
	app := fiber.New(fiber.Config{
		AppName:               "carelog",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          utils.ErrorHandler(c.Logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(authhttp.RequestID(), utils.RequestContext())
	app.Use(authhttp.CORS(strings.Join(cfg.Server.AllowedOrigins, ",")))
	app.Use(authhttp.SecurityHeaders())

	app.Get("/health", c.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))

	v1 := app.Group("/v1", c.AuthModule.Middleware().Optional())
	c.AuthModule.RegisterRoutes(v1.Group("/auth", authhttp.RateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)))
	v1.Get("/session", c.session)

	carehttp.NewKidHandler(c.Kids, c.Policy, cfg.Blob.URLExpiry, c.Logger).RegisterRoutes(v1)
	docstorehttp.NewDocumentHandler(c.Gateway, c.Policy, c.Logger).RegisterRoutes(v1)
	return app
}

func (c *Container) health(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), 5*time.Second)
	defer cancel()
	if err := c.HealthCheck(checkCtx); err != nil {
		c.Logger.Errorf("Health check failed: %v", err)
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "UNHEALTHY",
			"error":  err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{
		"status":    "HEALTHY",
		"timestamp": time.Now().UTC(),
		"drivers": fiber.Map{
			"store": c.Config.Store.Driver,
			"feed":  c.Config.Feed.Driver,
			"blob":  c.Config.Blob.Driver,
			"auth":  c.Config.Auth.Store,
		},
	})
}

// session reports the user the process is signed in as and the kids list bound to them.
func (c *Container) session(ctx *fiber.Ctx) error {
	return ctx.JSON(SessionResponse{
		UserID: c.Session.CurrentUser(),
		Kids:   kidsViewBody(c.KidsView.State()),
	})
}
