package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/masomo-notify/core"
)

// Reaper periodically deletes expired notifications, off the request path.
type Reaper struct {
	svc      *Service
	interval time.Duration
	logger   core.Logger
}

func NewReaper(svc *Service, interval time.Duration, logger core.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{svc: svc, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info(fmt.Sprintf("expiry reaper started : interval %s", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("expiry reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass. A panic or storage failure is logged and the next tick tries again.
func (r *Reaper) Sweep(ctx context.Context) int {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Sprintf("expiry reaper panic: %v", rec))
		}
	}()

	n, err := r.svc.ExpireSweep(ctx)
	if err != nil {
		r.logger.Error(fmt.Sprintf("sweeping expired notifications: %v", err), err)
		return 0
	}
	if n > 0 {
		r.logger.Info(fmt.Sprintf("swept %d expired notifications", n))
	}
	return n
}
