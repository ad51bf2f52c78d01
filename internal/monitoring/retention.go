package monitoring

import (
	"time"

	"github.com/quorumsec/auditcore/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// RetentionSweeper periodically purges audit events past the retention
// window. The schedule is a standard cron expression checked once a
// minute.
type RetentionSweeper struct {
	auditSvc  services.AuditServiceProvider
	schedule  cron.Schedule
	retention time.Duration
	ticker    *time.Ticker
	done      chan bool
	nextRun   time.Time
}

// NewRetentionSweeper creates a sweeper from a cron expression and a
// retention window in days.
func NewRetentionSweeper(auditSvc services.AuditServiceProvider, cronSpec string, retentionDays int) (*RetentionSweeper, error) {
	schedule, err := cron.ParseStandard(cronSpec)
	if err != nil {
		return nil, err
	}
	return &RetentionSweeper{
		auditSvc:  auditSvc,
		schedule:  schedule,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		done:      make(chan bool),
		nextRun:   schedule.Next(time.Now()),
	}, nil
}

// Run starts the sweeper's ticking loop.
func (rs *RetentionSweeper) Run() {
	log.Info().Time("next_run", rs.nextRun).Msg("Starting retention sweeper...")
	rs.ticker = time.NewTicker(1 * time.Minute)
	defer rs.ticker.Stop()

	for {
		select {
		case <-rs.done:
			log.Info().Msg("Stopping retention sweeper.")
			return
		case <-rs.ticker.C:
			now := time.Now()
			if now.After(rs.nextRun) {
				rs.sweep()
				rs.nextRun = rs.schedule.Next(now)
			}
		}
	}
}

// Stop halts the sweeper.
func (rs *RetentionSweeper) Stop() {
	rs.done <- true
}

// sweep removes events older than the retention window.
func (rs *RetentionSweeper) sweep() {
	removed := rs.auditSvc.PurgeOlderThan(rs.retention)
	log.Info().Int64("removed", removed).Dur("retention", rs.retention).Msg("Retention sweep complete")
}
