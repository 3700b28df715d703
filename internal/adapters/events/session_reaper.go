package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/eliodoroBezlu/inspection-auth-service/internal/ports"
)

const reaperLeaseName = "session-reaper"

// SessionSweeper is the application operation the reaper schedules.
type SessionSweeper interface {
	ReapSessions(ctx context.Context) (int64, error)
}

// SessionReaper runs the session sweep on a cron schedule. When a lease is
// configured only the instance holding it sweeps on a given tick.
type SessionReaper struct {
	logger   *slog.Logger
	sweeper  SessionSweeper
	lease    ports.JobLease
	schedule cron.Schedule
	leaseTTL time.Duration
	holder   string
}

// ParseSchedule validates a standard five-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return schedule, nil
}

func NewSessionReaper(
	logger *slog.Logger,
	sweeper SessionSweeper,
	lease ports.JobLease,
	spec string,
	leaseTTL time.Duration,
) (*SessionReaper, error) {
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	host, _ := os.Hostname()
	return &SessionReaper{
		logger:   logger,
		sweeper:  sweeper,
		lease:    lease,
		schedule: schedule,
		leaseTTL: leaseTTL,
		holder:   host + "/" + uuid.NewString(),
	}, nil
}

// Run blocks until ctx is cancelled, then waits for an in-flight sweep.
func (r *SessionReaper) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "session cleanup run failed",
				"module", "events.session_reaper",
				"layer", "adapter",
				"operation", "reap_sessions",
				"outcome", "failure",
				"error", err,
			)
		}
	}))
	c.Start()
	r.logger.InfoContext(ctx, "session reaper scheduled",
		"module", "events.session_reaper",
		"layer", "adapter",
		"operation", "schedule",
		"outcome", "success",
		"next_run", r.schedule.Next(time.Now().UTC()),
	)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// RunOnce performs one sweep. It reports false when another holder owns
// the lease for this tick.
func (r *SessionReaper) RunOnce(ctx context.Context) (bool, error) {
	if r.lease != nil {
		acquired, err := r.lease.Acquire(ctx, reaperLeaseName, r.holder, r.leaseTTL)
		if err != nil {
			return false, fmt.Errorf("acquire reaper lease: %w", err)
		}
		if !acquired {
			r.logger.InfoContext(ctx, "session cleanup skipped; lease held elsewhere",
				"module", "events.session_reaper",
				"layer", "adapter",
				"operation", "reap_sessions",
				"outcome", "skipped",
			)
			return false, nil
		}
		defer func() {
			if err := r.lease.Release(context.WithoutCancel(ctx), reaperLeaseName, r.holder); err != nil {
				r.logger.WarnContext(ctx, "failed to release reaper lease",
					"module", "events.session_reaper",
					"layer", "adapter",
					"operation", "release_lease",
					"outcome", "failure",
					"error", err,
				)
			}
		}()
	}

	if _, err := r.sweeper.ReapSessions(ctx); err != nil {
		return true, err
	}
	return true, nil
}
