package handlers

import (
	"productdesk/internal/config"
	"productdesk/internal/events"
	"productdesk/internal/repos"
	"productdesk/internal/services"
)

type Deps struct {
	Auth    *services.AuthService
	Guard   *services.Guard
	Ledger  *services.Ledger
	Catalog *services.CatalogService

	AuthHandler    *AuthHandler
	ProductHandler *ProductHandler
	AdminHandler   *AdminHandler
}

func NewDeps(store *repos.Store, cfg config.Config, broker events.Broker) *Deps {
	authSvc := services.NewAuthService(store.Users)
	guard := services.NewGuard(store, broker)
	ledger := services.NewLedger(store)
	catalogSvc := services.NewCatalogService(store, broker)

	return &Deps{
		Auth:    authSvc,
		Guard:   guard,
		Ledger:  ledger,
		Catalog: catalogSvc,

		AuthHandler: &AuthHandler{Auth: authSvc, CookieSecure: cfg.CookieSecure},
		ProductHandler: &ProductHandler{
			Store:        store,
			Catalog:      catalogSvc,
			Guard:        guard,
			Ledger:       ledger,
			Events:       broker,
			PollInterval: cfg.PollInterval,
		},
		AdminHandler: &AdminHandler{Admin: services.NewAdminService(store)},
	}
}
