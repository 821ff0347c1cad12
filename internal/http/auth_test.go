package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	html "github.com/gofiber/template/html/v2"

	"productdesk/internal/domain"
	"productdesk/internal/http/handlers"
	"productdesk/internal/repos"
	"productdesk/internal/services"
)

// login throttling + success/fail paths
func TestLoginSuccessFailAndThrottle(t *testing.T) {
	// Minimal app with real login handler and per-route limiter
	db, err := repos.OpenDB("sqlite", ":memory:", true)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	authSvc := services.NewAuthService(repos.NewUserRepo(db))
	authH := &handlers.AuthHandler{Auth: authSvc}
	engine := html.New("../../web/templates", ".html")
	app := fiber.New(fiber.Config{Views: engine})
	app.Use(csrf.New(csrf.Config{KeyLookup: "form:csrf", CookieName: "csrf_", CookieSameSite: "Lax"}))

	app.Get("/login", authH.LoginForm)
	app.Post("/login", limiter.New(limiter.Config{Max: 2, Expiration: time.Minute}), authH.Login)

	csrfTok := csrfToken(t, app)

	// bad password -> 401
	respBad := postForm(t, app, "/login", "", csrfTok, "email=admin@productdesk.test&password=Wrongpass1!")
	if respBad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad creds, got %d", respBad.StatusCode)
	}

	// good password -> redirect
	respGood := postForm(t, app, "/login", "", csrfTok, "email=admin@productdesk.test&password=Passw0rd!")
	if respGood.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect on success, got %d", respGood.StatusCode)
	}
	if loc := respGood.Header.Get("Location"); loc != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", loc)
	}
	if extractCookie(respGood, "sid") == "" {
		t.Fatal("sid cookie not issued on login")
	}

	// throttle after 2 attempts (we already did 2; a third should 429)
	respThird := postForm(t, app, "/login", "", csrfTok, "email=admin@productdesk.test&password=Wrongpass1!")
	if respThird.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after throttle, got %d", respThird.StatusCode)
	}
}

func TestSignupCreatesViewer(t *testing.T) {
	app, store := newTestApp(t)
	csrfTok := csrfToken(t, app)

	resp := postForm(t, app, "/signup", "sid-new", csrfTok, "email=newbie@productdesk.test&password=Passw0rd!")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect after signup, got %d", resp.StatusCode)
	}
	u, err := store.Users.SessionUser(context.Background(), "sid-new")
	if err != nil {
		t.Fatalf("session not bound: %v", err)
	}
	if u.Role != domain.RoleViewer {
		t.Fatalf("new accounts must be viewers, got %s", u.Role)
	}

	// duplicate email is refused
	resp = postForm(t, app, "/signup", "sid-dup", csrfTok, "email=newbie@productdesk.test&password=Passw0rd!")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", resp.StatusCode)
	}
}

func TestLogoutUnbindsSession(t *testing.T) {
	app, store := newTestApp(t)
	sid := loginAs(t, store, "sid-admin", "u-admin")
	csrfTok := csrfToken(t, app)

	resp := postForm(t, app, "/logout", sid, csrfTok, "")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect after logout, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to login after logout, got %d", resp.StatusCode)
	}
}

func TestFormPostWithoutCSRFRejected(t *testing.T) {
	app, _ := newTestApp(t)
	req := httptest.NewRequest("POST", "/login", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", resp.StatusCode)
	}
}
