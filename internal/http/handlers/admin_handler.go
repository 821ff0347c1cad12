package handlers

import (
	"productdesk/internal/domain"
	applog "productdesk/internal/log"
	"productdesk/internal/services"
	"productdesk/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	Admin *services.AdminService
}

// GET /admin/users
func (h *AdminHandler) UsersPage(c *fiber.Ctx) error {
	users, err := h.Admin.ListProfiles(c.UserContext(), sessionOf(c))
	if err != nil {
		applog.Error(c, "admin.users.list.fail", err, nil)
		return pageError(c, "admin.users.list", err)
	}
	return render(c, "admin_users", fiber.Map{"Users": users, "Msg": c.Query("msg")})
}

// POST /admin/users/:id/role
func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(400).SendString("missing id")
	}
	role := domain.Role(c.FormValue("role"))
	if err := h.Admin.SetRole(c.UserContext(), sessionOf(c), id, role); err != nil {
		applog.Security(c, "admin.users.role.fail", map[string]any{"user_id": id, "role": role, "err": err.Error()})
		return pageError(c, "admin.users.role", err)
	}
	applog.Audit(c, "admin.users.role", map[string]any{"user_id": id, "role": role})
	return c.Redirect("/admin/users?msg=role+updated")
}

// POST /admin/users/:id/delete
// Removes the profile, its sessions and any edit lock it held.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(400).SendString("missing id")
	}
	if err := h.Admin.DeleteProfile(c.UserContext(), sessionOf(c), id); err != nil {
		applog.Error(c, "admin.users.delete.fail", err, map[string]any{"user_id": id})
		return pageError(c, "admin.users.delete", err)
	}
	applog.Audit(c, "admin.users.delete", map[string]any{"user_id": id})
	return c.Redirect("/admin/users?msg=user+deleted")
}
