// Package jobs runs the periodic maintenance sweeps: stale deposits,
// finished events, expired booking requests and payouts stuck APPROVED.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticketing-marketplace/internal/config"
	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
)

// DepositSweeper fails deposits that never completed.
type DepositSweeper interface {
	ExpireStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// EventCompleter closes events whose end time has passed.
type EventCompleter interface {
	CompleteEnded(ctx context.Context) (int64, error)
}

// BookingExpirer cancels booking requests left PENDING past their date.
type BookingExpirer interface {
	ExpirePending(ctx context.Context) (int64, error)
}

// PayoutReconciler settles payouts whose transfer outcome is unknown.
type PayoutReconciler interface {
	ReconcileApproved(ctx context.Context, maxAge time.Duration) (int, error)
}

// Sweeps groups the services the scheduler drives.
type Sweeps struct {
	Deposits DepositSweeper
	Events   EventCompleter
	Bookings BookingExpirer
	Payouts  PayoutReconciler
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

const runTimeout = 5 * time.Minute

// New registers the sweeps on their configured schedules.  A bad schedule
// expression is returned as an error.
func New(cfg config.JobsConfig, depositExpiry time.Duration, sw Sweeps, log logrus.FieldLogger) (*Scheduler, error) {
	log = log.WithField("component", "jobs")
	clog := cron.PrintfLogger(log)
	c := cron.New(cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	s := &Scheduler{cron: c, log: log}
	entries := []struct {
		name string
		spec string
		run  func(ctx context.Context) (int64, error)
	}{
		{"deposit_sweep", cfg.DepositSweep, func(ctx context.Context) (int64, error) {
			n, err := sw.Deposits.ExpireStale(ctx, depositExpiry)
			return int64(n), err
		}},
		{"event_completion", cfg.EventCompletion, sw.Events.CompleteEnded},
		{"booking_expiry", cfg.BookingExpiry, sw.Bookings.ExpirePending},
		{"payout_reconcile", cfg.PayoutReconcile, func(ctx context.Context) (int64, error) {
			n, err := sw.Payouts.ReconcileApproved(ctx, cfg.PayoutStaleAfter)
			return int64(n), err
		}},
	}
	for _, e := range entries {
		e := e
		if _, err := c.AddFunc(e.spec, func() { s.run(e.name, e.run) }); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	start := time.Now()
	n, err := fn(ctx)
	metrics.ObserveJob(name, err)
	log := s.log.WithFields(logrus.Fields{"job": name, "affected": n, "took": time.Since(start).String()})
	if err != nil {
		log.WithError(err).Error("job failed")
		return
	}
	log.Debug("job finished")
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("jobs still running at shutdown")
	}
}
