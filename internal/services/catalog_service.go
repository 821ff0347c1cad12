package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	"productdesk/internal/repos"
	"productdesk/internal/validate"
)

// ProductInput is the editable part of a product as submitted by a form
// or the JSON API.
type ProductInput struct {
	Title  string `json:"title" form:"title" validate:"required,max=200"`
	Price  string `json:"price" form:"price" validate:"required,price"`
	Status string `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
}

func (in ProductInput) normalize() (string, decimal.Decimal, domain.Status, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if fields := validate.Struct(in); fields != nil {
		return "", decimal.Zero, "", &ValidationError{Fields: fields}
	}
	price, err := validate.Price(in.Price)
	if err != nil {
		return "", decimal.Zero, "", invalid("price", err.Error())
	}
	return in.Title, price, domain.Status(in.Status), nil
}

type CatalogService struct {
	store  *repos.Store
	events events.Broker
	now    func() time.Time
}

func NewCatalogService(store *repos.Store, broker events.Broker) *CatalogService {
	return &CatalogService{store: store, events: broker, now: time.Now}
}

type ListQuery struct {
	Q        string
	Status   string
	Sort     string
	Desc     bool
	Page     int
	PageSize int
}

type Page struct {
	Items    []domain.Product `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Pages    int              `json:"pages"`
}

func (s *CatalogService) List(ctx context.Context, q ListQuery) (Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 10
	}
	f := repos.ListFilter{Sort: q.Sort, Desc: q.Desc, Limit: q.PageSize, Offset: (q.Page - 1) * q.PageSize}
	if q.Q != "" {
		v, ok := validate.Q(q.Q)
		if !ok {
			return Page{}, invalid("q", "has unsupported characters")
		}
		f.Q = v
	}
	if q.Status != "" {
		v, ok := validate.Status(q.Status)
		if !ok {
			return Page{}, invalid("status", "must be draft or published")
		}
		f.Status = domain.Status(v)
	}

	items, total, err := s.store.Products.List(ctx, f)
	if err != nil {
		return Page{}, storeErr("catalog.list", err)
	}
	return Page{
		Items:    items,
		Total:    total,
		Page:     q.Page,
		PageSize: q.PageSize,
		Pages:    (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.store.Products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, storeErr("catalog.get", err)
	}
	return p, nil
}

// Create inserts a new product; status defaults to draft.
func (s *CatalogService) Create(ctx context.Context, sess *Session, in ProductInput) (domain.Product, error) {
	if err := sess.requireAdmin(); err != nil {
		return domain.Product{}, err
	}
	title, price, status, err := in.normalize()
	if err != nil {
		return domain.Product{}, err
	}
	if status == "" {
		status = domain.StatusDraft
	}
	now := domain.FormatTime(s.now())
	p := domain.Product{
		ID:        uuid.NewString(),
		Title:     title,
		Price:     price,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Products.Insert(ctx, p); err != nil {
		return domain.Product{}, storeErr("catalog.create", err)
	}
	publish(ctx, s.events, events.Event{Type: events.ProductCreated, ProductID: p.ID, ActorID: sess.UserID(), UpdatedAt: p.UpdatedAt})
	return p, nil
}
