package scheduler

import (
	"time"

	"github.com/hackpilot/hackpilot/internal/database"
	"github.com/hackpilot/hackpilot/internal/logger"
	"github.com/hackpilot/hackpilot/internal/usage"
	"github.com/robfig/cron/v3"
)

const auditRetention = 90 * 24 * time.Hour

// Scheduler owns the recurring maintenance jobs: the midnight usage
// rollover and audit-trail pruning.
type Scheduler struct {
	cron  *cron.Cron
	db    *database.DB
	meter *usage.Meter
}

func New(db *database.DB, meter *usage.Meter) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds()),
		db:    db,
		meter: meter,
	}
}

func (s *Scheduler) Start() error {
	// Local midnight: usage counters reset on the calendar-day boundary.
	if _, err := s.cron.AddFunc("0 0 0 * * *", func() {
		s.meter.Rollover()
		logger.Info("Usage counters rolled over for the new day")
	}); err != nil {
		return err
	}

	// Daily audit pruning, offset from midnight so the jobs don't stack.
	if _, err := s.cron.AddFunc("0 30 3 * * *", func() {
		n, err := s.db.PruneAuditLog(auditRetention)
		if err != nil {
			logger.Error("Audit prune failed: %v", err)
			return
		}
		if n > 0 {
			logger.Info("Pruned %d audit entries older than %s", n, auditRetention)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	logger.Success("Scheduler started (usage rollover, audit retention)")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
