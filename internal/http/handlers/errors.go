package handlers

import (
	"errors"

	"productdesk/internal/domain"
	applog "productdesk/internal/log"
	"productdesk/internal/services"

	"github.com/gofiber/fiber/v2"
)

// apiError writes the JSON error for err. product, when non-nil, is the
// re-fetched row handed back with a stale write.
func apiError(c *fiber.Ctx, action string, err error, product *domain.Product) error {
	var (
		lc *services.LockConflictError
		ve *services.ValidationError
	)
	switch {
	case errors.As(err, &lc):
		applog.Info(c, action+".conflict", map[string]any{"holder_id": lc.HolderID})
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": lc.Error(), "kind": "lock_conflict",
			"holder_id": lc.HolderID, "holder_email": lc.HolderEmail,
		})
	case errors.Is(err, services.ErrLockNotHeld):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "kind": "lock_not_held"})
	case errors.Is(err, services.ErrStaleWrite):
		applog.Info(c, action+".stale", nil)
		body := fiber.Map{"error": err.Error(), "kind": "stale_write"}
		if product != nil {
			body["product"] = product
		}
		return c.Status(fiber.StatusConflict).JSON(body)
	case errors.As(err, &ve):
		applog.Security(c, "validation.fail", map[string]any{"fields": ve.Fields})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input", "kind": "invalid_input", "fields": ve.Fields})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found", "kind": "not_found"})
	case errors.Is(err, services.ErrForbidden):
		applog.Security(c, action+".forbidden", nil)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "kind": "forbidden"})
	case errors.Is(err, services.ErrStoreUnavailable):
		applog.Error(c, action+".fail", err, nil)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store unavailable, try again", "kind": "store_unavailable"})
	}
	applog.Error(c, action+".fail", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something went wrong"})
}

// pageError renders the friendly error page for err.
func pageError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "This product is no longer available"})
	case errors.Is(err, services.ErrForbidden):
		applog.Security(c, action+".forbidden", nil)
		return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Access denied"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).Render("notfound", fiber.Map{"Message": err.Error()})
	case errors.Is(err, services.ErrStoreUnavailable):
		applog.Error(c, action+".fail", err, nil)
		return c.Status(fiber.StatusServiceUnavailable).Render("notfound", fiber.Map{"Message": "The store is unavailable. Please try again."})
	}
	applog.Error(c, action+".fail", err, nil)
	return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Something went wrong. Please try again."})
}
