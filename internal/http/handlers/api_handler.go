package handlers

import (
	"encoding/json"
	"errors"

	"productdesk/internal/domain"
	"productdesk/internal/log"
	"productdesk/internal/services"
	"productdesk/internal/validate"

	"github.com/gofiber/fiber/v2"
)

func errorsIsInvalid(err error) bool { return errors.Is(err, services.ErrInvalidInput) }

type productBody struct {
	Title  string      `json:"title"`
	Price  json.Number `json:"price"`
	Status string      `json:"status"`
}

func (b productBody) input() services.ProductInput {
	return services.ProductInput{Title: b.Title, Price: b.Price.String(), Status: b.Status}
}

type saveBody struct {
	productBody
	ExpectedUpdatedAt string `json:"expected_updated_at"`
}

func productID(c *fiber.Ctx) (string, error) {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return "", services.ErrNotFound
	}
	return id, nil
}

// GET /api/v1/me
func (h *ProductHandler) Me(c *fiber.Ctx) error {
	s := sessionOf(c)
	return c.JSON(fiber.Map{"id": s.UserID(), "email": s.Email(), "role": s.Role()})
}

// GET /api/v1/products
func (h *ProductHandler) List(c *fiber.Ctx) error {
	page, err := h.Catalog.List(c.UserContext(), listQuery(c))
	if err != nil {
		return apiError(c, "product.list", err, nil)
	}
	return c.JSON(page)
}

// GET /api/v1/products/:id
// A caller holding the lock renews its lease by reading.
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "product.get", err, nil)
	}
	p, err := h.Catalog.Get(c.UserContext(), id)
	if err != nil {
		return apiError(c, "product.get", err, nil)
	}
	self := sessionOf(c).UserID()
	if p.Holder() == self {
		if _, err := h.Guard.Heartbeat(c.UserContext(), id, self); err != nil {
			log.Error(c, "product.heartbeat.fail", err, map[string]any{"product_id": id})
		}
	}
	return c.JSON(h.view(c, p))
}

func (h *ProductHandler) view(c *fiber.Ctx, p domain.Product) fiber.Map {
	return fiber.Map{
		"product":      p,
		"holder_email": h.holderEmail(c, p),
		"held_by_self": p.Holder() != "" && p.Holder() == sessionOf(c).UserID(),
	}
}

// POST /api/v1/products
func (h *ProductHandler) CreateAPI(c *fiber.Ctx) error {
	var body productBody
	if err := c.BodyParser(&body); err != nil {
		return apiError(c, "product.create", &services.ValidationError{Fields: map[string]string{"body": "is not valid JSON"}}, nil)
	}
	p, err := h.Catalog.Create(c.UserContext(), sessionOf(c), body.input())
	if err != nil {
		return apiError(c, "product.create", err, nil)
	}
	log.Audit(c, "product.create", map[string]any{"product_id": p.ID, "title": p.Title})
	return c.Status(fiber.StatusCreated).JSON(p)
}

// POST /api/v1/products/:id/lock
func (h *ProductHandler) Lock(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "product.lock", err, nil)
	}
	res, err := h.editor(c).BeginEdit(c.UserContext(), id)
	if err != nil {
		return apiError(c, "product.lock", err, nil)
	}
	if res.Granted {
		log.Audit(c, "product.lock", map[string]any{"product_id": id})
	}
	return c.JSON(res)
}

// DELETE /api/v1/products/:id/lock
func (h *ProductHandler) Unlock(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "product.unlock", err, nil)
	}
	if err := h.editor(c).CancelEdit(c.UserContext(), id); err != nil {
		return apiError(c, "product.unlock", err, nil)
	}
	log.Audit(c, "product.unlock", map[string]any{"product_id": id})
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /api/v1/products/:id/lock/release
// Target of navigator.sendBeacon on page unload; never fails visibly.
func (h *ProductHandler) ReleaseBeacon(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err := h.Guard.Release(c.UserContext(), id, sessionOf(c).UserID()); err != nil {
		log.Error(c, "product.unlock.beacon.fail", err, map[string]any{"product_id": id})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PUT /api/v1/products/:id
func (h *ProductHandler) Save(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "product.save", err, nil)
	}
	var body saveBody
	if err := c.BodyParser(&body); err != nil {
		return apiError(c, "product.save", &services.ValidationError{Fields: map[string]string{"body": "is not valid JSON"}}, nil)
	}
	if body.ExpectedUpdatedAt == "" {
		return apiError(c, "product.save", &services.ValidationError{Fields: map[string]string{"expected_updated_at": "is required"}}, nil)
	}
	p, err := h.editor(c).Save(c.UserContext(), id, body.ExpectedUpdatedAt, body.input())
	if err != nil {
		if errors.Is(err, services.ErrStaleWrite) {
			return apiError(c, "product.save", err, &p)
		}
		return apiError(c, "product.save", err, nil)
	}
	log.Audit(c, "product.save", map[string]any{"product_id": id, "updated_at": p.UpdatedAt})
	return c.JSON(p)
}

// GET /api/v1/products/:id/versions
func (h *ProductHandler) Versions(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "version.list", err, nil)
	}
	vs, err := h.editor(c).Versions(c.UserContext(), id)
	if err != nil {
		return apiError(c, "version.list", err, nil)
	}
	return c.JSON(fiber.Map{"items": vs})
}

// POST /api/v1/products/:id/versions/:vid/restore
func (h *ProductHandler) Restore(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "version.restore", err, nil)
	}
	vid, ok := validate.ID(c.Params("vid"))
	if !ok {
		return apiError(c, "version.restore", services.ErrNotFound, nil)
	}
	p, err := h.editor(c).Restore(c.UserContext(), id, vid)
	if err != nil {
		return apiError(c, "version.restore", err, nil)
	}
	log.Audit(c, "version.restore", map[string]any{"product_id": id, "version_id": vid})
	return c.JSON(p)
}

// DELETE /api/v1/products/:id/versions/:vid
func (h *ProductHandler) DeleteVersion(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return apiError(c, "version.delete", err, nil)
	}
	vid, ok := validate.ID(c.Params("vid"))
	if !ok {
		return apiError(c, "version.delete", services.ErrNotFound, nil)
	}
	if err := h.editor(c).DeleteVersion(c.UserContext(), id, vid); err != nil {
		return apiError(c, "version.delete", err, nil)
	}
	log.Audit(c, "version.delete", map[string]any{"product_id": id, "version_id": vid})
	return c.SendStatus(fiber.StatusNoContent)
}
