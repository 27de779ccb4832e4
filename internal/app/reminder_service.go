// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"classroom_reminder_bot/internal/domain/audit"
	"classroom_reminder_bot/internal/domain/exam"
	"classroom_reminder_bot/internal/domain/reminder"
	"classroom_reminder_bot/internal/domain/roster"
	domainTelegram "classroom_reminder_bot/internal/domain/telegram"
	idb "classroom_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// ReminderService runs the submission reminder pipeline: decide whether a
// threshold is due for an exam, work out who still has to submit, and fan the
// personalized reminders out.
type ReminderService interface {
	// RunCycle processes every currently eligible exam once. Per-exam
	// failures are isolated and logged; the returned error reports only a
	// failure to list the exams themselves.
	RunCycle(ctx context.Context) error
	// ProcessExam runs the threshold -> progress -> dispatch pipeline for a
	// single exam.
	ProcessExam(ctx context.Context, e *exam.Exam) error
}

// ReminderConfig carries the engine tunables. Zero values fall back to the
// reference defaults.
type ReminderConfig struct {
	Thresholds         []reminder.Threshold
	ExamMinAge         time.Duration // staleness guard passed to the exam listing
	SendDelay          time.Duration // pause after each send, for provider rate limits
	SendTimeout        time.Duration // per-recipient send deadline
	MaxConcurrentSends int
	Clock              func() time.Time // injectable for tests; defaults to UTC now
}

// Progress summarizes submissions for one exam at evaluation time.
type Progress struct {
	TotalStudents  int
	SubmittedCount int
	SubmissionRate float64 // percentage, 0 when the roster is empty
	Pending        []*roster.Student
}

// ReminderServiceImpl implements the ReminderService interface.
type ReminderServiceImpl struct {
	examRepo       exam.Repository
	rosterRepo     roster.Repository
	ledgerRepo     reminder.Repository
	auditRepo      audit.Repository
	telegramClient domainTelegram.Client
	logger         *logrus.Logger

	thresholds         []reminder.Threshold
	examMinAge         time.Duration
	sendDelay          time.Duration
	sendTimeout        time.Duration
	maxConcurrentSends int
	now                func() time.Time
}

func NewReminderServiceImpl(
	er exam.Repository,
	rr roster.Repository,
	lr reminder.Repository,
	ar audit.Repository,
	tc domainTelegram.Client,
	logger *logrus.Logger,
	cfg ReminderConfig,
) *ReminderServiceImpl {
	if cfg.Thresholds == nil {
		cfg.Thresholds = reminder.DefaultThresholds()
	}
	if cfg.ExamMinAge <= 0 {
		cfg.ExamMinAge = 2 * time.Hour
	}
	if cfg.SendDelay <= 0 {
		cfg.SendDelay = 50 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrentSends <= 0 {
		cfg.MaxConcurrentSends = 20
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &ReminderServiceImpl{
		examRepo:           er,
		rosterRepo:         rr,
		ledgerRepo:         lr,
		auditRepo:          ar,
		telegramClient:     tc,
		logger:             logger,
		thresholds:         cfg.Thresholds,
		examMinAge:         cfg.ExamMinAge,
		sendDelay:          cfg.SendDelay,
		sendTimeout:        cfg.SendTimeout,
		maxConcurrentSends: cfg.MaxConcurrentSends,
		now:                cfg.Clock,
	}
}

// RunCycle processes all eligible exams. One exam's failure must not prevent
// the others from being processed.
func (s *ReminderServiceImpl) RunCycle(ctx context.Context) error {
	exams, err := s.examRepo.ListActiveUnexpired(ctx, s.examMinAge)
	if err != nil {
		s.logger.Errorf("Failed to list active exams: %v", err)
		return fmt.Errorf("failed to list active exams: %w", err)
	}
	s.logger.Infof("Reminder cycle started: %d eligible exam(s)", len(exams))

	for _, e := range exams {
		if ctx.Err() != nil {
			s.logger.Warnf("Reminder cycle cancelled with exams remaining: %v", ctx.Err())
			return nil
		}
		if err := s.ProcessExam(ctx, e); err != nil {
			s.logger.Errorf("Failed to process exam %d (%s): %v", e.ID, e.Title, err)
		}
	}
	return nil
}

// ProcessExam runs the full pipeline for one exam: threshold policy, progress
// evaluation, dispatch.
func (s *ReminderServiceImpl) ProcessExam(ctx context.Context, e *exam.Exam) error {
	now := s.now()

	due, err := reminder.NextDue(e.CreatedAt, e.DurationDays, now, s.thresholds, func(percent int) (bool, error) {
		return s.ledgerRepo.IsSent(ctx, e.ID, percent)
	})
	if err != nil {
		return fmt.Errorf("failed to check reminder ledger for exam %d: %w", e.ID, err)
	}
	if due == nil {
		return nil
	}
	s.logger.Infof("Exam %d (%s): %.1f%% of time elapsed, reminder %s is due",
		e.ID, e.Title, reminder.ElapsedPercent(e.CreatedAt, e.DurationDays, now), due.Label)

	progress, err := s.evaluateProgress(ctx, e)
	if err != nil {
		return err
	}
	if progress.TotalStudents == 0 {
		// No threshold work performed, so the ledger stays untouched and the
		// threshold remains eligible on a later cycle.
		s.logger.Infof("Exam %d (%s): no approved students in class %d, nothing to do", e.ID, e.Title, e.ClassID)
		return nil
	}
	if len(progress.Pending) == 0 {
		s.logger.Infof("All students have submitted for exam %s", e.Title)
		return nil
	}

	return s.dispatchReminders(ctx, e, progress, due, now)
}

// evaluateProgress computes the submitted/pending split and the submission
// rate for one exam.
func (s *ReminderServiceImpl) evaluateProgress(ctx context.Context, e *exam.Exam) (*Progress, error) {
	students, err := s.rosterRepo.ListApproved(ctx, e.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved students for class %d: %w", e.ClassID, err)
	}
	submitted, err := s.examRepo.SubmittedUserIDs(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submitted users for exam %d: %w", e.ID, err)
	}

	p := &Progress{
		TotalStudents:  len(students),
		SubmittedCount: len(submitted),
	}
	for _, st := range students {
		if _, ok := submitted[st.UserID]; !ok {
			p.Pending = append(p.Pending, st)
		}
	}
	if p.TotalStudents > 0 {
		p.SubmissionRate = float64(p.SubmittedCount) / float64(p.TotalStudents) * 100
	}
	return p, nil
}

// dispatchReminders sends the personalized messages for the due threshold and
// records the ledger entry. Reminders go only to individual pending students,
// never to the class's group chat.
func (s *ReminderServiceImpl) dispatchReminders(ctx context.Context, e *exam.Exam, progress *Progress, due *reminder.Threshold, now time.Time) error {
	hoursRemaining := reminder.HoursRemaining(e.CreatedAt, e.DurationDays, now)

	// Staff never receive student-facing reminders. Role membership can
	// change between cycles, so it is re-checked here at dispatch time.
	recipients := make([]*roster.Student, 0, len(progress.Pending))
	for _, st := range progress.Pending {
		excluded, err := s.isStaff(ctx, st.UserID, e.GroupID)
		if err != nil {
			s.logger.Warnf("Could not check staff roles for user %d, skipping them this cycle: %v", st.UserID, err)
			continue
		}
		if excluded {
			s.logger.Infof("Skipping reminder for %s (manager/owner)", st.FullName)
			continue
		}
		recipients = append(recipients, st)
	}

	var successCount int64
	attempted := len(recipients)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.maxConcurrentSends)
	for _, st := range recipients {
		st := st
		p.Go(func(ctx context.Context) error {
			text := s.composeReminder(st, e, progress, due, hoursRemaining)
			if err := s.sendWithTimeout(ctx, st.UserID, text); err != nil {
				s.logger.Warnf("Failed to send reminder to %s (user %d): %v", st.FullName, st.UserID, err)
			} else {
				atomic.AddInt64(&successCount, 1)
			}
			time.Sleep(s.sendDelay)
			// Sends are independent: a recipient's failure never aborts the batch.
			return nil
		})
	}
	_ = p.Wait()

	// The ledger entry records that this threshold was attempted, not that
	// every recipient received it, so it is written even after send failures.
	if err := s.ledgerRepo.MarkSent(ctx, e.ID, due.Percent); err != nil {
		if errors.Is(err, idb.ErrDuplicateReminder) {
			s.logger.Warnf("Reminder %s for exam %d was already recorded, treating threshold as fired", due.Label, e.ID)
		} else {
			// Leave the threshold unfired so the next cycle retries. Sending
			// twice on a persistence hiccup beats never notifying.
			return fmt.Errorf("failed to record reminder %d%% for exam %d: %w", due.Percent, e.ID, err)
		}
	}

	details := fmt.Sprintf("exam_id:%d, reminder:%s, sent_to:%d/%d, rate:%.1f%%",
		e.ID, due.Label, successCount, attempted, progress.SubmissionRate)
	if err := s.auditRepo.Append(ctx, nil, "smart_reminder_sent", details); err != nil {
		s.logger.Errorf("Failed to append audit log entry for exam %d: %v", e.ID, err)
	}

	s.logger.Infof("Reminder %s sent for exam %s: %d/%d successful", due.Label, e.Title, successCount, attempted)
	return nil
}

func (s *ReminderServiceImpl) isStaff(ctx context.Context, userID, groupID int64) (bool, error) {
	isManager, err := s.rosterRepo.IsClassManager(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check class manager role for user %d: %w", userID, err)
	}
	if isManager {
		return true, nil
	}
	isOwner, err := s.rosterRepo.IsGroupOwner(ctx, userID, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to check group owner role for user %d: %w", userID, err)
	}
	return isOwner, nil
}

// sendWithTimeout bounds a single send so one stuck delivery cannot block the
// whole batch. The Client interface is synchronous, so the timeout abandons
// the call rather than interrupting it.
func (s *ReminderServiceImpl) sendWithTimeout(ctx context.Context, userID int64, text string) error {
	done := make(chan error, 1)
	go func() {
		done <- s.telegramClient.SendMessage(userID, text, nil)
	}()

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("send to user %d timed out after %s", userID, s.sendTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReminderServiceImpl) composeReminder(st *roster.Student, e *exam.Exam, progress *Progress, due *reminder.Threshold, hoursRemaining int) string {
	return fmt.Sprintf(
		"⚡ **تذكير %s**\n\n"+
			"مرحبًا %s! 👋\n\n"+
			"📝 الواجب/التقرير: **%s**\n"+
			"📚 الشعبة: **%s**\n"+
			"⏰ الوقت المتبقي: **%d ساعة**\n\n"+
			"📊 **معلومات:**\n"+
			"✅ %d من زملائك أنهوا الواجب\n"+
			"⏳ %d طالب لم ينتهوا بعد\n"+
			"📈 نسبة الإنجاز: %.1f%%\n\n"+
			"🚀 **لا تتأخر!** زملاؤك يتقدمون!\n\n"+
			"👆 اضغط /panel للإجابة الآن",
		due.Label, st.FullName, e.Title, e.ClassName, hoursRemaining,
		progress.SubmittedCount, len(progress.Pending), progress.SubmissionRate)
}
