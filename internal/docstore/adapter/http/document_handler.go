// Package http exposes the document store over fiber: CRUD and queries on owner-scoped
// collections, and live queries over a websocket. Every route goes through the access Policy.
package http

import (
	authhttp "carelog/internal/auth/adapter/http"
	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"
	"carelog/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
)

// Document is the JSON form of a snapshot.
type Document struct {
	ID     string       `json:"id"`
	Fields model.Fields `json:"fields"`
}

// QueryResponse answers a collection query.
type QueryResponse struct {
	Documents []Document `json:"documents"`
}

func toDocuments(snaps []model.Snapshot) []Document {
	docs := make([]Document, len(snaps))
	for i, s := range snaps {
		docs[i] = Document{ID: s.ID, Fields: s.Fields}
	}
	return docs
}

type DocumentHandler struct {
	gw     *gateway.Gateway
	policy *Policy
	log    logger.Logger
}

func NewDocumentHandler(gw *gateway.Gateway, policy *Policy, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		gw:     gw,
		policy: policy,
		log:    logger.OrNop(log).WithComponent("document_handler"),
	}
}

// RegisterRoutes mounts the document and listen routes. router should already carry the
// optional auth middleware so the policy can see the caller.
func (h *DocumentHandler) RegisterRoutes(router fiber.Router) {
	users := router.Group("/users")
	users.Get("/:uid", h.GetProfile)
	users.Put("/:uid", h.SetProfile)

	users.Post("/:uid/:collection", h.Add)
	users.Get("/:uid/:collection", h.Query)
	users.Get("/:uid/:collection/:id", h.Get)
	users.Put("/:uid/:collection/:id", h.Set)
	users.Patch("/:uid/:collection/:id", h.Update)
	users.Delete("/:uid/:collection/:id", h.Delete)

	router.Get("/listen/users/:uid/:collection", h.upgrade, h.listenHandler())
}

// Authorize runs the policy for the current request against owner's collection.
func Authorize(c *fiber.Ctx, policy *Policy, owner, collection, id string) error {
	access := Access{
		Method:     c.Method(),
		Owner:      owner,
		Collection: collection,
		DocumentID: id,
	}
	if claims, ok := authhttp.ClaimsFrom(c); ok {
		access.UserID = claims.UserID
		access.Email = claims.Email
	}
	return policy.Check(access)
}

// collection resolves :uid/:collection and authorizes the request for it.
func (h *DocumentHandler) collection(c *fiber.Ctx) (model.CollectionPath, error) {
	uid, name := c.Params("uid"), c.Params("collection")
	kind, ok := model.KindFromCollection(name)
	if !ok || !kind.RequiresOwner() {
		return model.CollectionPath{}, errors.NewNotFoundError("collection").WithDetail("collection", name)
	}
	path, err := model.Resolve(kind, uid)
	if err != nil {
		return model.CollectionPath{}, errors.NewValidationError("invalid owner").WithCause(err)
	}
	if err := Authorize(c, h.policy, uid, name, c.Params("id")); err != nil {
		return model.CollectionPath{}, err
	}
	return path, nil
}

func (h *DocumentHandler) profile(c *fiber.Ctx) (model.CollectionPath, string, error) {
	uid := c.Params("uid")
	if err := model.ValidateDocumentID(uid); err != nil {
		return model.CollectionPath{}, "", err
	}
	if err := Authorize(c, h.policy, uid, model.RootCollection, uid); err != nil {
		return model.CollectionPath{}, "", err
	}
	return model.MustResolve(model.KindUser, ""), uid, nil
}

func (h *DocumentHandler) GetProfile(c *fiber.Ctx) error {
	path, uid, err := h.profile(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	fields, err := h.gw.GetDocument(c.UserContext(), path, uid)
	if err != nil {
		return utils.WriteError(c, err)
	}
	return c.JSON(Document{ID: uid, Fields: fields})
}

func (h *DocumentHandler) SetProfile(c *fiber.Ctx) error {
	path, uid, err := h.profile(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	fields, err := decodeBody(c.Body())
	if err != nil {
		return utils.WriteError(c, err)
	}
	if err := h.gw.SetDocument(c.UserContext(), path, uid, fields, c.QueryBool("merge")); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *DocumentHandler) Add(c *fiber.Ctx) error {
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	fields, err := decodeBody(c.Body())
	if err != nil {
		return utils.WriteError(c, err)
	}
	id, err := h.gw.AddDocument(c.UserContext(), path, fields)
	if err != nil {
		return utils.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func whereParams(c *fiber.Ctx) []string {
	var where []string
	for _, raw := range c.Context().QueryArgs().PeekMulti("where") {
		where = append(where, string(raw))
	}
	return where
}

func (h *DocumentHandler) Query(c *fiber.Ctx) error {
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	spec, err := parseQuery(whereParams(c), c.Query("orderBy"))
	if err != nil {
		return utils.WriteError(c, err)
	}
	snaps, err := h.gw.Query(c.UserContext(), path, spec)
	if err != nil {
		return utils.WriteError(c, err)
	}
	return c.JSON(QueryResponse{Documents: toDocuments(snaps)})
}

func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	id := c.Params("id")
	fields, err := h.gw.GetDocument(c.UserContext(), path, id)
	if err != nil {
		return utils.WriteError(c, err)
	}
	return c.JSON(Document{ID: id, Fields: fields})
}

// Set replaces the document, or merges into it with ?merge=true.
func (h *DocumentHandler) Set(c *fiber.Ctx) error {
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	fields, err := decodeBody(c.Body())
	if err != nil {
		return utils.WriteError(c, err)
	}
	if err := h.gw.SetDocument(c.UserContext(), path, c.Params("id"), fields, c.QueryBool("merge")); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Update patches the top-level fields in the body of an existing document.
func (h *DocumentHandler) Update(c *fiber.Ctx) error {
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	fields, err := decodeBody(c.Body())
	if err != nil {
		return utils.WriteError(c, err)
	}
	if err := h.gw.UpdateFields(c.UserContext(), path, c.Params("id"), toPatch(fields)); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	path, err := h.collection(c)
	if err != nil {
		return utils.WriteError(c, err)
	}
	if err := h.gw.DeleteDocument(c.UserContext(), path, c.Params("id")); err != nil {
		return utils.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
