// Package scheduler provides cron-based background jobs for LangRelay, such
// as the inbound journal retention sweep.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/langrelay/langrelay/internal/store"
)

// DefaultJournalRetention is how long accepted-message journal rows are kept.
const DefaultJournalRetention = 30 * 24 * time.Hour

// DefaultSweepSchedule runs the retention sweep once a day.
const DefaultSweepSchedule = "30 3 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddJournalSweep schedules a periodic purge of journal rows older than the
// retention window. A zero retention falls back to the default.
func (s *Scheduler) AddJournalSweep(st store.Store, retention time.Duration, expr string) error {
	if retention <= 0 {
		retention = DefaultJournalRetention
	}
	if expr == "" {
		expr = DefaultSweepSchedule
	}
	return s.AddJob(expr, func() {
		cutoff := time.Now().Add(-retention)
		purged, err := st.PurgeJournalBefore(cutoff)
		if err != nil {
			slog.Error("Scheduler.journalSweep: purge failed", "cutoff", cutoff, "error", err)
			return
		}
		slog.Info("Scheduler.journalSweep: purged journal rows", "cutoff", cutoff, "rows", purged)
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
