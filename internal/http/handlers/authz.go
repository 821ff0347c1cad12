package handlers

import (
	"productdesk/internal/domain"
	applog "productdesk/internal/log"
	"productdesk/internal/services"

	"github.com/gofiber/fiber/v2"
)

// LoadUser attaches the signed-in user and its session context to the
// request when the sid cookie is bound.
func LoadUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		currentSession(c, auth)
		return c.Next()
	}
}

func currentSession(c *fiber.Ctx, auth *services.AuthService) *services.Session {
	if s, ok := c.Locals("session").(*services.Session); ok {
		return s
	}
	sid := c.Cookies("sid")
	if sid == "" {
		return nil
	}
	s, err := auth.Session(c.UserContext(), sid)
	if err != nil {
		return nil
	}
	u := s.User()
	c.Locals("session", s)
	c.Locals("user", &u)
	c.Locals("user_id", u.ID)
	return s
}

func sessionOf(c *fiber.Ctx) *services.Session {
	s, _ := c.Locals("session").(*services.Session)
	return s
}

func RequireAdmin(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Cookies("sid") == "" {
			return c.Redirect("/login")
		}
		s := currentSession(c, auth)
		if s == nil || s.Role() != domain.RoleAdmin {
			applog.Security(c, "access.denied.admin", nil)
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Access denied"})
		}
		return c.Next()
	}
}

// RequireUser enforces that a user is logged in; otherwise redirect to login.
func RequireUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentSession(c, auth) == nil {
			return c.Redirect("/login")
		}
		return c.Next()
	}
}

// RequireAPIUser is RequireUser for JSON clients.
func RequireAPIUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentSession(c, auth) == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "sign in required"})
		}
		return c.Next()
	}
}

func RequireAPIAdmin(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := currentSession(c, auth)
		if s == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "sign in required"})
		}
		if s.Role() != domain.RoleAdmin {
			applog.Security(c, "access.denied.admin", nil)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
		}
		return c.Next()
	}
}
