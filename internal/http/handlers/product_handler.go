package handlers

import (
	"time"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	"productdesk/internal/log"
	"productdesk/internal/repos"
	"productdesk/internal/services"
	"productdesk/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type ProductHandler struct {
	Store        *repos.Store
	Catalog      *services.CatalogService
	Guard        *services.Guard
	Ledger       *services.Ledger
	Events       events.Broker
	PollInterval time.Duration
}

func (h *ProductHandler) editor(c *fiber.Ctx) *services.Editor {
	return services.NewEditor(h.Store, h.Guard, h.Ledger, sessionOf(c), h.Events)
}

func listQuery(c *fiber.Ctx) services.ListQuery {
	return services.ListQuery{
		Q:        c.Query("q"),
		Status:   c.Query("status"),
		Sort:     c.Query("sort", "created_at"),
		Desc:     c.Query("dir", "desc") == "desc",
		Page:     validate.Page(c.Query("page"), 1, 1000),
		PageSize: validate.Page(c.Query("size"), 10, 100),
	}
}

// GET /dashboard
func (h *ProductHandler) Dashboard(c *fiber.Ctx) error {
	q := listQuery(c)
	page, err := h.Catalog.List(c.UserContext(), q)
	errMsg := ""
	if err != nil {
		if !errorsIsInvalid(err) {
			return pageError(c, "dashboard.list", err)
		}
		log.Security(c, "validation.fail", map[string]any{"field": "filter"})
		errMsg = err.Error()
		c.Status(fiber.StatusBadRequest)
	}
	dir := "asc"
	if q.Desc {
		dir = "desc"
	}
	return render(c, "dashboard", fiber.Map{
		"Page": page, "Q": q.Q, "Status": q.Status, "Sort": q.Sort, "Dir": dir, "Err": errMsg,
		"Prev": q.Page - 1, "Next": q.Page + 1, "HasNext": q.Page < page.Pages,
	})
}

// GET /products/:id
func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		log.Security(c, "validation.fail", map[string]any{"field": "product"})
		return c.Status(404).Render("notfound", fiber.Map{"Message": "This product is no longer available"})
	}
	p, err := h.Catalog.Get(c.UserContext(), id)
	if err != nil {
		return pageError(c, "product.detail", err)
	}
	data := fiber.Map{
		"P":          p,
		"HolderMail": h.holderEmail(c, p),
		"HeldBySelf": p.Holder() != "" && p.Holder() == sessionOf(c).UserID(),
		"PollMS":     h.PollInterval.Milliseconds(),
	}
	if sessionOf(c).IsAdmin() {
		vs, err := h.editor(c).Versions(c.UserContext(), id)
		if err != nil {
			return pageError(c, "product.versions", err)
		}
		data["Versions"] = vs
	}
	return render(c, "product", data)
}

func (h *ProductHandler) holderEmail(c *fiber.Ctx, p domain.Product) string {
	if p.Holder() == "" {
		return ""
	}
	u, err := h.Store.Users.ByID(c.UserContext(), p.Holder())
	if err != nil {
		return ""
	}
	return u.Email
}

// GET /create
func (h *ProductHandler) CreateForm(c *fiber.Ctx) error {
	return render(c, "create", fiber.Map{"Err": "", "In": services.ProductInput{Status: "draft"}})
}

// POST /create
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	in := services.ProductInput{
		Title:  c.FormValue("title"),
		Price:  c.FormValue("price"),
		Status: c.FormValue("status"),
	}
	p, err := h.Catalog.Create(c.UserContext(), sessionOf(c), in)
	if err != nil {
		if !errorsIsInvalid(err) {
			return pageError(c, "product.create", err)
		}
		log.Security(c, "validation.fail", map[string]any{"field": "product"})
		c.Status(fiber.StatusBadRequest)
		return render(c, "create", fiber.Map{"Err": err.Error(), "In": in})
	}
	log.Audit(c, "product.create", map[string]any{"product_id": p.ID, "title": p.Title})
	return c.Redirect("/products/" + p.ID)
}
