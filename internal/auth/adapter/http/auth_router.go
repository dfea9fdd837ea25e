package http

import (
	"time"

	"carelog/internal/auth/domain/model"
	"carelog/internal/auth/usecase"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
)

// CookieConfig controls the session cookie set next to the JSON token.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite string
}

// AuthHTTPHandler handles HTTP requests for authentication
type AuthHTTPHandler struct {
	provider usecase.Provider
	cookie   CookieConfig
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type confirmResetRequest struct {
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type federatedRequest struct {
	IDToken string `json:"idToken"`
}

// NewAuthHTTPHandler creates a new authentication HTTP handler
func NewAuthHTTPHandler(provider usecase.Provider, cookie CookieConfig) *AuthHTTPHandler {
	if cookie.Name == "" {
		cookie.Name = "carelog_session"
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}
	if cookie.SameSite == "" {
		cookie.SameSite = fiber.CookieSameSiteLaxMode
	}
	return &AuthHTTPHandler{provider: provider, cookie: cookie}
}

// CookieName is the cookie Protect falls back to when no bearer token is sent.
func (h *AuthHTTPHandler) CookieName() string {
	return h.cookie.Name
}

// RegisterRoutes mounts the auth endpoints on router.
func (h *AuthHTTPHandler) RegisterRoutes(router fiber.Router, middleware *AuthMiddleware) {
	router.Post("/signup", h.SignUp)
	router.Post("/signin", h.SignIn)
	router.Post("/reset", h.ResetPassword)
	router.Post("/reset/confirm", h.ConfirmReset)
	router.Post("/federated/:provider", h.FederatedSignIn)

	protected := router.Group("/", middleware.Protect())
	protected.Post("/signout", h.SignOut)
	protected.Get("/me", h.Me)
}

func (h *AuthHTTPHandler) SignUp(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.WriteError(c, errors.NewValidationError("invalid request body"))
	}
	session, err := h.provider.SignUp(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return utils.WriteError(c, err)
	}
	h.setCookie(c, session)
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *AuthHTTPHandler) SignIn(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.WriteError(c, errors.NewValidationError("invalid request body"))
	}
	session, err := h.provider.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return utils.WriteError(c, err)
	}
	h.setCookie(c, session)
	return c.JSON(session)
}

func (h *AuthHTTPHandler) FederatedSignIn(c *fiber.Ctx) error {
	var req federatedRequest
	if err := c.BodyParser(&req); err != nil || req.IDToken == "" {
		return utils.WriteError(c, errors.NewValidationError("idToken is required"))
	}
	session, err := h.provider.FederatedSignIn(c.UserContext(), c.Params("provider"), req.IDToken)
	if err != nil {
		return utils.WriteError(c, err)
	}
	h.setCookie(c, session)
	return c.JSON(session)
}

func (h *AuthHTTPHandler) SignOut(c *fiber.Ctx) error {
	if err := h.provider.SignOut(c.UserContext()); err != nil {
		return utils.WriteError(c, err)
	}
	h.clearCookie(c)
	return c.SendStatus(fiber.StatusNoContent)
}

// ResetPassword always answers 202 so the endpoint cannot be used to enumerate accounts.
func (h *AuthHTTPHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.WriteError(c, errors.NewValidationError("invalid request body"))
	}
	if err := h.provider.ResetPassword(c.UserContext(), req.Email); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *AuthHTTPHandler) ConfirmReset(c *fiber.Ctx) error {
	var req confirmResetRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return utils.WriteError(c, errors.NewValidationError("code and newPassword are required"))
	}
	if err := h.provider.ConfirmReset(c.UserContext(), req.Code, req.NewPassword); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me returns the claims of the presented token.
func (h *AuthHTTPHandler) Me(c *fiber.Ctx) error {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return utils.WriteError(c, errors.NewAuthenticationError("authentication required").WithCause(errors.ErrUnauthorized))
	}
	return c.JSON(fiber.Map{
		"userId":    claims.UserID,
		"email":     claims.Email,
		"provider":  claims.Provider,
		"expiresAt": claims.ExpiresAt.Time,
	})
}

func (h *AuthHTTPHandler) setCookie(c *fiber.Ctx, session *model.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    session.Token,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cookie.SameSite,
		Expires:  session.ExpiresAt,
	})
}

func (h *AuthHTTPHandler) clearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		Secure:   h.cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cookie.SameSite,
		Expires:  time.Now().Add(-time.Hour),
	})
}
