package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"classroom_reminder_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cycleTimeout bounds a single reminder cycle end to end. Generous, since a
// cycle may dispatch to many students across many exams.
const cycleTimeout = 30 * time.Minute

// ReminderScheduler owns the background reminder loop lifecycle
// (stopped -> running -> stopped). Cycles never overlap, panics inside a
// cycle are contained, and a failed cycle arms a backoff gate so the next
// trigger does not hammer an unavailable store.
type ReminderScheduler struct {
	cronEngine      *cron.Cron
	reminderService app.ReminderService
	logger          *logrus.Logger
	cronSpec        string
	errorBackoff    time.Duration

	mu         sync.Mutex
	running    bool
	scheduled  bool
	retryAfter time.Time
}

func NewReminderScheduler(
	reminderService app.ReminderService,
	logger *logrus.Logger,
	cronSpec string, // e.g. "@every 1h"
	errorBackoff time.Duration,
) *ReminderScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &ReminderScheduler{
		cronEngine: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		reminderService: reminderService,
		logger:          logger,
		cronSpec:        cronSpec,
		errorBackoff:    errorBackoff,
	}
}

// Start begins periodic reminder cycles. Calling Start on a running
// scheduler is a no-op.
func (s *ReminderScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.scheduled {
		if _, err := s.cronEngine.AddFunc(s.cronSpec, s.runCycle); err != nil {
			return fmt.Errorf("failed to schedule reminder cycle with spec %q: %w", s.cronSpec, err)
		}
		s.scheduled = true
	}
	s.cronEngine.Start()
	s.running = true
	s.logger.Infof("Reminder scheduler started (spec %q)", s.cronSpec)
	return nil
}

// Stop halts scheduling and waits for an in-flight cycle to finish, so
// shutdown never aborts sends midway.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping reminder scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Reminder scheduler stopped")
}

// IsRunning reports the lifecycle state.
func (s *ReminderScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ReminderScheduler) runCycle() {
	s.mu.Lock()
	if !s.retryAfter.IsZero() && time.Now().Before(s.retryAfter) {
		wait := time.Until(s.retryAfter).Round(time.Second)
		s.mu.Unlock()
		s.logger.Warnf("Skipping reminder cycle, still backing off for %s after a failure", wait)
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if err := s.reminderService.RunCycle(ctx); err != nil {
		s.mu.Lock()
		s.retryAfter = time.Now().Add(s.errorBackoff)
		s.mu.Unlock()
		s.logger.Errorf("Reminder cycle failed, backing off %s before the next attempt: %v", s.errorBackoff, err)
		return
	}

	s.mu.Lock()
	s.retryAfter = time.Time{}
	s.mu.Unlock()
}
