package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	applog "productdesk/internal/log"
)

// Sweeper releases locks whose holder stopped heartbeating, covering
// sessions whose unload release never reached the server.
type Sweeper struct {
	guard *Guard
	ttl   time.Duration
	cron  *cron.Cron
}

func NewSweeper(guard *Guard, ttl time.Duration, spec string) (*Sweeper, error) {
	s := &Sweeper{guard: guard, ttl: ttl, cron: cron.New(cron.WithLocation(time.UTC))}
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.Sweep(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	n, err := s.guard.ExpireStale(ctx, s.ttl)
	if err != nil {
		applog.L().Error("locks.sweep.fail", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		applog.L().Info("locks.sweep", zap.Int64("released", n), zap.Duration("ttl", s.ttl))
	}
	return n, nil
}
