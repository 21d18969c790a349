package focus

import (
	"context"
	"fmt"
	"time"

	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Retention prunes ended sessions older than a fixed age on a cron schedule.
type Retention struct {
	store  store.Store
	maxAge time.Duration
	clock  clock.PassiveClock
	cron   *cron.Cron
	logger *zap.Logger
}

// NewRetention schedules pruning with a standard five field spec such as
// "0 3 * * *". maxAge must be positive.
func NewRetention(st store.Store, maxAge time.Duration, spec string, clk clock.PassiveClock, logger *zap.Logger) (*Retention, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention: max age must be positive, got %s", maxAge)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.L()
	}
	r := &Retention{
		store:  st,
		maxAge: maxAge,
		clock:  clk,
		cron:   cron.New(),
		logger: logger.Named("retention"),
	}
	if _, err := r.cron.AddFunc(spec, func() {
		if _, err := r.Prune(context.Background()); err != nil {
			r.logger.Error("scheduled prune failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("retention: schedule %q: %w", spec, err)
	}
	return r, nil
}

// Prune removes sessions that ended more than maxAge ago.
func (r *Retention) Prune(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-r.maxAge)
	n, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.logger.Info("pruned old sessions", zap.Int("count", n), zap.Time("before", cutoff))
	}
	return n, nil
}

// Start runs the schedule in the background.
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running prune.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}
