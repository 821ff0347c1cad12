package handlers

import (
	"time"

	applog "productdesk/internal/log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Mount registers every route on app. Global middleware (request id,
// logging, CSRF) is the caller's business.
func Mount(app *fiber.App, d *Deps) {
	auth := d.Auth
	ph := d.ProductHandler

	app.Get("/", func(c *fiber.Ctx) error { return c.Redirect("/dashboard") })

	// Auth routes (login throttled)
	app.Get("/login", d.AuthHandler.LoginForm)
	app.Post("/login", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			c.Status(fiber.StatusTooManyRequests)
			return render(c, "login", fiber.Map{"Err": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	app.Get("/signup", d.AuthHandler.SignupForm)
	app.Post("/signup", limiter.New(limiter.Config{Max: 5, Expiration: 10 * time.Minute}), d.AuthHandler.Signup)
	app.Post("/logout", d.AuthHandler.Logout)

	// Pages
	app.Get("/dashboard", RequireUser(auth), ph.Dashboard)
	app.Get("/products/:id", RequireUser(auth), ph.Detail)
	app.Get("/create", RequireAdmin(auth), ph.CreateForm)
	app.Post("/create", RequireAdmin(auth), ph.Create)

	// Admin
	admin := app.Group("/admin", RequireAdmin(auth))
	admin.Get("/users", d.AdminHandler.UsersPage)
	admin.Post("/users/:id/role", d.AdminHandler.SetRole)
	admin.Post("/users/:id/delete", d.AdminHandler.DeleteUser)

	// API
	api := app.Group("/api/v1", RequireAPIUser(auth))
	writeLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|write"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.write.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	adminOnly := RequireAPIAdmin(auth)

	api.Get("/me", ph.Me)
	api.Get("/products", ph.List)
	api.Post("/products", adminOnly, writeLimiter, ph.CreateAPI)
	api.Get("/products/:id", ph.Get)
	api.Get("/products/:id/watch", ph.Watch)
	api.Post("/products/:id/lock", adminOnly, ph.Lock)
	api.Delete("/products/:id/lock", adminOnly, ph.Unlock)
	api.Post("/products/:id/lock/release", ph.ReleaseBeacon)
	api.Put("/products/:id", adminOnly, writeLimiter, ph.Save)
	api.Get("/products/:id/versions", adminOnly, ph.Versions)
	api.Post("/products/:id/versions/:vid/restore", adminOnly, writeLimiter, ph.Restore)
	api.Delete("/products/:id/versions/:vid", adminOnly, ph.DeleteVersion)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).Render("notfound", fiber.Map{"Message": "Page not found"})
	})
}
