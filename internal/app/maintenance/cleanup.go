package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/cache"
	"github.com/adeelraza/floodcoord/internal/services"
	"github.com/adeelraza/floodcoord/pkg/logger"
)

const defaultSchedule = "@every 15m"

// Cleaner runs background maintenance: expiring overdue invitations and
// purging expired cache entries from the database-backed store. Both jobs are
// safety nets; the services also enforce expiry lazily at use.
type Cleaner struct {
	db          *gorm.DB
	invitations *services.InvitationService
	cron        *cron.Cron
	now         func() time.Time
	log         *zap.Logger
	schedule    string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification for both cleanup jobs.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(db *gorm.DB, invitations *services.InvitationService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:          db,
		invitations: invitations,
		now:         time.Now,
		schedule:    defaultSchedule,
		log:         logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.invitations == nil && c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.invitations != nil {
		expired, err := c.invitations.ExpireStale(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if expired > 0 {
			c.log.Info("expired stale invitations", zap.Int64("count", expired))
		}
	}

	if c.db != nil {
		purged, err := cache.NewDatabaseStore(c.db).PurgeExpired(ctx, c.now())
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if purged > 0 {
			c.log.Info("purged expired cache entries", zap.Int64("count", purged))
		}
	}

	return errs
}
