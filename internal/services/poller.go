package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"productdesk/internal/domain"
	"productdesk/internal/events"
	applog "productdesk/internal/log"
	"productdesk/internal/repos"
)

const DefaultPollInterval = 5 * time.Second

// View is what one poll observed.
type View struct {
	Product    domain.Product `json:"product"`
	Role       domain.Role    `json:"role"`
	HeldBySelf bool           `json:"held_by_self"`
	At         time.Time      `json:"at"`
	Err        error          `json:"-"`
}

// Poller keeps one session's view of one product current. It refreshes
// on start, on every tick and on every change event for the product, and
// never pauses while an edit is in progress. When Run returns, a lock the
// session still holds is released.
type Poller struct {
	store     *repos.Store
	guard     *Guard
	session   *Session
	productID string
	interval  time.Duration
	events    events.Broker
	onUpdate  func(View)

	mu     sync.RWMutex
	latest View
}

func NewPoller(store *repos.Store, guard *Guard, session *Session, productID string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{store: store, guard: guard, session: session, productID: productID, interval: interval}
}

// WithEvents makes change events for the product trigger an immediate
// refresh. The ticker keeps running either way.
func (p *Poller) WithEvents(b events.Broker) *Poller {
	p.events = b
	return p
}

// OnUpdate registers fn to receive every view. It runs on the poller's
// goroutine.
func (p *Poller) OnUpdate(fn func(View)) *Poller {
	p.onUpdate = fn
	return p
}

func (p *Poller) Latest() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	defer p.releaseOnExit()

	kick := make(chan struct{}, 1)
	if p.events != nil {
		err := p.events.Subscribe(ctx, func(_ context.Context, e events.Event) {
			if e.ProductID != p.productID {
				return
			}
			select {
			case kick <- struct{}{}:
			default:
			}
		})
		if err != nil {
			applog.L().Warn("poller.subscribe.fail", zap.String("product_id", p.productID), zap.Error(err))
		}
	}

	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-kick:
		}
		p.Refresh(ctx)
	}
}

// Refresh reads the product and the session role concurrently and
// renews the lease when the session holds the lock. The two reads apply
// independently: a failed product read keeps the previous product, a
// failed role read keeps the session's current role. Either error is
// reported in the view.
func (p *Poller) Refresh(ctx context.Context) View {
	var (
		prod          domain.Product
		role          domain.Role
		prodErr, rErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		prod, err = p.store.Products.Get(ctx, p.productID)
		prodErr = storeErr("poller.product", err)
		return prodErr
	})
	g.Go(func() error {
		role, rErr = p.session.Refresh(ctx)
		return rErr
	})
	err := g.Wait()

	p.mu.Lock()
	v := View{Product: p.latest.Product, Role: p.session.Role(), At: time.Now().UTC(), Err: err}
	if prodErr == nil {
		v.Product = prod
	}
	if rErr == nil {
		v.Role = role
	}
	v.HeldBySelf = v.Product.Holder() != "" && v.Product.Holder() == p.session.UserID()
	p.latest = v
	p.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		applog.L().Warn("poller.refresh.fail", zap.String("product_id", p.productID), zap.Error(err))
	}
	if prodErr == nil && v.HeldBySelf {
		if _, herr := p.guard.Heartbeat(ctx, p.productID, p.session.UserID()); herr != nil {
			applog.L().Warn("poller.heartbeat.fail", zap.String("product_id", p.productID), zap.Error(herr))
		}
	}
	if p.onUpdate != nil && ctx.Err() == nil {
		p.onUpdate(v)
	}
	return v
}

// releaseOnExit always attempts the release. The last view may predate a
// lock taken since, and releasing a lock the session does not hold is a
// no-op.
func (p *Poller) releaseOnExit() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.guard.Release(ctx, p.productID, p.session.UserID()); err != nil {
		applog.L().Warn("poller.release.fail", zap.String("product_id", p.productID), zap.Error(err))
		return
	}
	applog.L().Debug("poller.release", zap.String("product_id", p.productID), zap.String("user_id", p.session.UserID()))
}
