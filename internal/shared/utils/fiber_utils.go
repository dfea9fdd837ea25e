// Package utils holds helpers shared by the fiber adapters.
package utils

import (
	"context"
	stderrors "errors"

	"carelog/internal/shared/contextkeys"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrUserIDNotFound is returned when a handler runs without an authenticated user.
var ErrUserIDNotFound = stderrors.New("userID not found in context")

// ErrorBody is the JSON shape of every error the API returns.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Type    errors.ErrorType       `json:"type,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewErrorBody renders err for a client. Internal failures are not echoed back.
func NewErrorBody(err error) ErrorBody {
	var body ErrorBody
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Type = appErr.Type
		body.Error = appErr.Message
		body.Details = appErr.Details
	} else {
		body.Error = err.Error()
	}
	if field, ok := errors.DecodeField(err); ok {
		body.Field = field
	}

	status := errors.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError && !errors.IsTransport(err) {
		body.Error = "internal error"
		body.Details = nil
	}
	return body
}

// WriteError answers with the status errors.HTTPStatus picks for err.
func WriteError(c *fiber.Ctx, err error) error {
	return c.Status(errors.HTTPStatus(err)).JSON(NewErrorBody(err))
}

// ErrorHandler is the fiber.Config ErrorHandler: fiber errors keep their code, the rest go
// through WriteError.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if stderrors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorBody{Error: fe.Message})
		}
		if errors.HTTPStatus(err) >= fiber.StatusInternalServerError {
			log.WithFields(map[string]interface{}{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": RequestID(c),
			}).Errorf("Request failed: %v", err)
		}
		return WriteError(c, err)
	}
}

// RequestContext copies the request ID set by the requestid middleware into the user context.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := RequestID(c); id != "" {
			c.SetUserContext(context.WithValue(c.UserContext(), contextkeys.RequestIDKey, id))
		}
		return c.Next()
	}
}

// RequestID returns the request's correlation ID, if any.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok {
		return id
	}
	if id, ok := c.UserContext().Value(contextkeys.RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// UserID returns the authenticated user of the request.
func UserID(c *fiber.Ctx) (string, error) {
	if uid, ok := contextkeys.UserID(c.UserContext()); ok {
		return uid, nil
	}
	return "", ErrUserIDNotFound
}

// WithUserID stores userID in both the fiber locals and the user context.
func WithUserID(c *fiber.Ctx, userID string) {
	c.Locals(string(contextkeys.UserIDKey), userID)
	c.SetUserContext(contextkeys.WithUserID(c.UserContext(), userID))
}
