// Package expiry periodically deactivates routing rules whose expiresAt has
// passed. Matching already ignores expired rules; the sweep keeps the
// stored is_active flag and the admin listings in step with that.
package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"conversation-router/internal/common/logging"
)

// Deactivator is implemented by *routing.Router
type Deactivator interface {
	DeactivateExpired(ctx context.Context) (int, error)
}

// Status describes the sweeper's last run
type Status struct {
	Schedule  string     `json:"schedule"`
	Runs      int        `json:"runs"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastCount int        `json:"lastCount"`
	LastError string     `json:"lastError,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
}

// Sweeper runs DeactivateExpired on a cron schedule. Overlapping runs are
// skipped rather than queued.
type Sweeper struct {
	target   Deactivator
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	entry    cron.EntryID
	logger   logging.Logger

	mu     sync.Mutex
	ctx    context.Context
	status Status
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewSweeper schedules target with a five-field cron spec or a descriptor
// such as "@every 1m".
func NewSweeper(target Deactivator, schedule string) (*Sweeper, error) {
	logger := logging.Component("expiry")

	s := &Sweeper{
		target:   target,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   logger,
		ctx:      context.Background(),
		status:   Status{Schedule: schedule},
	}

	cronLogger := cronLogger{logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	entry, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry sweep schedule %q: %w", schedule, err)
	}
	s.entry = entry
	return s, nil
}

// Start begins the schedule. Runs use ctx until Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Expiry sweeper started", logging.String("schedule", s.schedule))
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Expiry sweeper stopped")
}

func (s *Sweeper) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	_, _ = s.RunOnce(ctx)
}

// RunOnce performs one sweep immediately
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now().UTC()
	n, err := s.target.DeactivateExpired(ctx)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = &started
	s.status.LastCount = n
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Expiry sweep failed", err)
		return 0, err
	}
	s.logger.Debug("Expiry sweep finished",
		logging.Int("deactivated", n),
		logging.Duration("took", time.Since(started)),
	)
	return n, nil
}

// Status returns a snapshot of the sweeper's progress
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()

	if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
		status.NextRun = &next
	}
	return status
}

// cronLogger routes cron's internal logging into the service logger
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, fields(keysAndValues)...)
}

func fields(keysAndValues []interface{}) []logging.Field {
	out := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, logging.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
