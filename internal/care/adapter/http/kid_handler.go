// Package http serves the kid routes that need more than plain document access: photo
// upload and download, and deletion that also drops the photo.
package http

import (
	"time"

	"carelog/internal/care/repository"
	docstorehttp "carelog/internal/docstore/adapter/http"
	docmodel "carelog/internal/docstore/domain/model"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"
	"carelog/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
)

const maxPhotoBytes = 5 << 20

type KidHandler struct {
	kids      *repository.KidRepository
	policy    *docstorehttp.Policy
	urlExpiry time.Duration
	log       logger.Logger
}

func NewKidHandler(kids *repository.KidRepository, policy *docstorehttp.Policy, urlExpiry time.Duration, log logger.Logger) *KidHandler {
	return &KidHandler{
		kids:      kids,
		policy:    policy,
		urlExpiry: urlExpiry,
		log:       logger.OrNop(log).WithComponent("kid_handler"),
	}
}

// RegisterRoutes must run before the generic document routes so DELETE on a kid lands here.
func (h *KidHandler) RegisterRoutes(router fiber.Router) {
	kids := router.Group("/users/:uid/kids")
	kids.Put("/:id/photo", h.UploadPhoto)
	kids.Get("/:id/photo", h.PhotoURL)
	kids.Delete("/:id", h.Remove)
}

func (h *KidHandler) authorize(c *fiber.Ctx) error {
	return docstorehttp.Authorize(c, h.policy, c.Params("uid"), docmodel.KindKid.String(), c.Params("id"))
}

// UploadPhoto stores the raw request body as the kid's photo.
func (h *KidHandler) UploadPhoto(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return utils.WriteError(c, err)
	}
	data := c.Body()
	if len(data) == 0 {
		return utils.WriteError(c, errors.NewValidationError("photo body is required"))
	}
	if len(data) > maxPhotoBytes {
		return utils.WriteError(c, errors.NewValidationError("photo is too large").WithDetail("maxBytes", maxPhotoBytes))
	}
	contentType := c.Get(fiber.HeaderContentType, "application/octet-stream")
	// fasthttp reuses the body buffer after the handler returns
	ref, err := h.kids.ReplacePhoto(c.UserContext(), c.Params("uid"), c.Params("id"), append([]byte(nil), data...), contentType)
	if err != nil {
		return utils.WriteError(c, err)
	}
	h.log.WithContext(c.UserContext()).Infof("Stored photo for kid %s", c.Params("id"))
	return c.JSON(fiber.Map{"photoURL": ref.String()})
}

// PhotoURL answers with a time-limited address for the photo, 404 when there is none.
func (h *KidHandler) PhotoURL(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return utils.WriteError(c, err)
	}
	kid, err := h.kids.Get(c.UserContext(), c.Params("uid"), c.Params("id"))
	if err != nil {
		return utils.WriteError(c, err)
	}
	url, err := h.kids.PhotoURL(c.UserContext(), kid, h.urlExpiry)
	if err != nil {
		return utils.WriteError(c, err)
	}
	if url == "" {
		return utils.WriteError(c, errors.NewNotFoundError("photo"))
	}
	return c.JSON(fiber.Map{"url": url, "expiresIn": int(h.urlExpiry.Seconds())})
}

func (h *KidHandler) Remove(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return utils.WriteError(c, err)
	}
	if err := h.kids.Remove(c.UserContext(), c.Params("uid"), c.Params("id")); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
