package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"classroom_reminder_bot/internal/domain/exam"
	"classroom_reminder_bot/internal/domain/roster"
	domainTelegram "classroom_reminder_bot/internal/domain/telegram"
	idb "classroom_reminder_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

var examCreatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- fakes -----------------------------------------------------------------

type fakeExamRepo struct {
	exams     []*exam.Exam
	submitted map[int64]map[int64]struct{} // examID -> user set
	listErr   error
}

func (f *fakeExamRepo) ListActiveUnexpired(_ context.Context, _ time.Duration) ([]*exam.Exam, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.exams, nil
}

func (f *fakeExamRepo) SubmittedUserIDs(_ context.Context, examID int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	for id := range f.submitted[examID] {
		out[id] = struct{}{}
	}
	return out, nil
}

type fakeRosterRepo struct {
	students map[int64][]*roster.Student // classID -> roster
	managers map[int64]bool
	owners   map[int64]int64 // userID -> owned groupID
	roleErr  error
}

func (f *fakeRosterRepo) ListApproved(_ context.Context, classID int64) ([]*roster.Student, error) {
	return f.students[classID], nil
}

func (f *fakeRosterRepo) IsClassManager(_ context.Context, userID int64) (bool, error) {
	if f.roleErr != nil {
		return false, f.roleErr
	}
	return f.managers[userID], nil
}

func (f *fakeRosterRepo) IsGroupOwner(_ context.Context, userID, groupID int64) (bool, error) {
	if f.roleErr != nil {
		return false, f.roleErr
	}
	return f.owners[userID] == groupID, nil
}

type ledgerKey struct {
	examID  int64
	percent int
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[ledgerKey]time.Time
	markErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[ledgerKey]time.Time)}
}

func (f *fakeLedger) IsSent(_ context.Context, examID int64, percent int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[ledgerKey{examID, percent}]
	return ok, nil
}

func (f *fakeLedger) MarkSent(_ context.Context, examID int64, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	key := ledgerKey{examID, percent}
	if _, ok := f.records[key]; ok {
		return idb.ErrDuplicateReminder
	}
	f.records[key] = time.Now()
	return nil
}

func (f *fakeLedger) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeLedger) has(examID int64, percent int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[ledgerKey{examID, percent}]
	return ok
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeAudit) Append(_ context.Context, _ *int64, action, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, action+" "+details)
	return nil
}

func (f *fakeAudit) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return ""
	}
	return f.entries[len(f.entries)-1]
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[int64][]string), failFor: make(map[int64]error)}
}

func (f *fakeTransport) SendMessage(recipientChatID int64, text string, _ *telebot.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[recipientChatID]; ok {
		return err
	}
	f.sent[recipientChatID] = append(f.sent[recipientChatID], text)
	return nil
}

func (f *fakeTransport) totalSent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msgs := range f.sent {
		n += len(msgs)
	}
	return n
}

func (f *fakeTransport) messagesFor(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[userID]
}

// --- fixture ---------------------------------------------------------------

type fixture struct {
	examRepo   *fakeExamRepo
	rosterRepo *fakeRosterRepo
	ledger     *fakeLedger
	audit      *fakeAudit
	transport  *fakeTransport
	clock      time.Time
	service    *ReminderServiceImpl
}

func tenStudents() []*roster.Student {
	students := make([]*roster.Student, 0, 10)
	for i := int64(1); i <= 10; i++ {
		students = append(students, &roster.Student{UserID: 100 + i, FullName: fmt.Sprintf("طالب %d", i)})
	}
	return students
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		examRepo: &fakeExamRepo{
			exams: []*exam.Exam{{
				ID:           1,
				ClassID:      7,
				GroupID:      3,
				Title:        "تقرير الفيزياء",
				ClassName:    "شعبة أ",
				GroupTitle:   "مجموعة الفيزياء",
				CreatedAt:    examCreatedAt,
				DurationDays: 10,
				IsActive:     true,
			}},
			submitted: map[int64]map[int64]struct{}{},
		},
		rosterRepo: &fakeRosterRepo{
			students: map[int64][]*roster.Student{7: tenStudents()},
			managers: map[int64]bool{},
			owners:   map[int64]int64{},
		},
		ledger:    newFakeLedger(),
		audit:     &fakeAudit{},
		transport: newFakeTransport(),
		clock:     examCreatedAt.Add(6 * 24 * time.Hour), // 60% elapsed
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f.service = NewReminderServiceImpl(
		f.examRepo, f.rosterRepo, f.ledger, f.audit, f.transport, logger,
		ReminderConfig{
			SendDelay:          time.Millisecond,
			SendTimeout:        time.Second,
			MaxConcurrentSends: 4,
			Clock:              func() time.Time { return f.clock },
		},
	)
	return f
}

// --- tests -----------------------------------------------------------------

func TestFirstThresholdFires(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 10, f.transport.totalSent())
	assert.True(t, f.ledger.has(1, 50))
	assert.False(t, f.ledger.has(1, 70))
	assert.False(t, f.ledger.has(1, 90))

	msgs := f.transport.messagesFor(101)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "تذكير الأول (50%)")
	assert.Contains(t, msgs[0], "تقرير الفيزياء")
	assert.Contains(t, msgs[0], "شعبة أ")
	assert.Contains(t, msgs[0], "96 ساعة") // 4 of 10 days left
	assert.Contains(t, msgs[0], "طالب 1")

	assert.Contains(t, f.audit.last(), "smart_reminder_sent")
	assert.Contains(t, f.audit.last(), "sent_to:10/10")
	assert.Contains(t, f.audit.last(), "rate:0.0%")
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.service.RunCycle(context.Background()))
	require.Equal(t, 10, f.transport.totalSent())
	require.Equal(t, 1, f.ledger.size())

	// Half a day later, no new submissions: nothing new happens.
	f.clock = examCreatedAt.Add(6*24*time.Hour + 12*time.Hour)
	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 10, f.transport.totalSent())
	assert.Equal(t, 1, f.ledger.size())
}

func TestOnlyLowestUnfiredThresholdFiresPerPass(t *testing.T) {
	f := newFixture(t)
	// 90% elapsed, never polled before: the thresholds fire one per pass,
	// in ascending order.
	f.clock = examCreatedAt.Add(9 * 24 * time.Hour)

	require.NoError(t, f.service.RunCycle(context.Background()))
	assert.True(t, f.ledger.has(1, 50))
	assert.Equal(t, 1, f.ledger.size())

	require.NoError(t, f.service.RunCycle(context.Background()))
	assert.True(t, f.ledger.has(1, 70))
	assert.Equal(t, 2, f.ledger.size())

	require.NoError(t, f.service.RunCycle(context.Background()))
	assert.True(t, f.ledger.has(1, 90))
	assert.Equal(t, 3, f.ledger.size())

	require.NoError(t, f.service.RunCycle(context.Background()))
	assert.Equal(t, 3, f.ledger.size())
	assert.Equal(t, 30, f.transport.totalSent())
}

func TestAllSubmittedMeansNoAction(t *testing.T) {
	f := newFixture(t)
	all := make(map[int64]struct{})
	for _, st := range f.rosterRepo.students[7] {
		all[st.UserID] = struct{}{}
	}
	f.examRepo.submitted[1] = all

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 0, f.transport.totalSent())
	assert.Equal(t, 0, f.ledger.size())
}

func TestStaffNeverReceiveReminders(t *testing.T) {
	f := newFixture(t)
	f.rosterRepo.managers[101] = true // manages a class
	f.rosterRepo.owners[102] = 3      // owns the exam's group
	f.rosterRepo.owners[103] = 99     // owns an unrelated group, still a recipient

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Empty(t, f.transport.messagesFor(101))
	assert.Empty(t, f.transport.messagesFor(102))
	assert.Len(t, f.transport.messagesFor(103), 1)
	assert.Equal(t, 8, f.transport.totalSent())
	assert.True(t, f.ledger.has(1, 50))
	assert.Contains(t, f.audit.last(), "sent_to:8/8")
}

func TestZeroDurationExamNeverFires(t *testing.T) {
	f := newFixture(t)
	f.examRepo.exams[0].DurationDays = 0
	f.clock = examCreatedAt.Add(365 * 24 * time.Hour)

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 0, f.transport.totalSent())
	assert.Equal(t, 0, f.ledger.size())
}

func TestPartialSendFailureStillFiresThreshold(t *testing.T) {
	f := newFixture(t)
	f.transport.failFor[101] = domainTelegram.ErrRecipientBlocked
	f.transport.failFor[102] = domainTelegram.ErrRecipientUnreachable
	f.transport.failFor[103] = errors.New("transient network error")

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 7, f.transport.totalSent())
	assert.True(t, f.ledger.has(1, 50))
	assert.Contains(t, f.audit.last(), "sent_to:7/10")
}

func TestLedgerWriteFailureLeavesThresholdUnfired(t *testing.T) {
	f := newFixture(t)
	f.ledger.markErr = errors.New("database unavailable")

	err := f.service.ProcessExam(context.Background(), f.examRepo.exams[0])
	require.Error(t, err)
	assert.Equal(t, 10, f.transport.totalSent())
	assert.Equal(t, 0, f.ledger.size())

	// Next cycle retries and records: at-least-once, never silently dropped.
	f.ledger.markErr = nil
	require.NoError(t, f.service.ProcessExam(context.Background(), f.examRepo.exams[0]))
	assert.Equal(t, 20, f.transport.totalSent())
	assert.True(t, f.ledger.has(1, 50))
}

func TestDuplicateLedgerEntryIsBenign(t *testing.T) {
	f := newFixture(t)
	// Another writer recorded the threshold between the IsSent check and the
	// dispatch: the duplicate insert is treated as "already fired".
	e := f.examRepo.exams[0]
	progress, err := f.service.evaluateProgress(context.Background(), e)
	require.NoError(t, err)
	require.NoError(t, f.ledger.MarkSent(context.Background(), e.ID, 50))

	due := f.service.thresholds[0]
	require.NoError(t, f.service.dispatchReminders(context.Background(), e, progress, &due, f.clock))
	assert.Equal(t, 1, f.ledger.size())
}

func TestEmptyRosterMeansNoAction(t *testing.T) {
	f := newFixture(t)
	f.rosterRepo.students[7] = nil

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 0, f.transport.totalSent())
	assert.Equal(t, 0, f.ledger.size())
}

func TestListFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.examRepo.listErr = errors.New("connection refused")

	err := f.service.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list active exams")
}

func TestOneExamFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	// First exam points at a class whose roster lookup is fine but whose
	// ledger write fails; the second exam must still be processed.
	second := *f.examRepo.exams[0]
	second.ID = 2
	second.Title = "واجب الرياضيات"
	f.examRepo.exams = append(f.examRepo.exams, &second)

	f.ledger.markErr = errors.New("disk full")

	require.NoError(t, f.service.RunCycle(context.Background()))

	// Both exams attempted their sends even though neither ledger write stuck.
	assert.Equal(t, 20, f.transport.totalSent())
	assert.Equal(t, 0, f.ledger.size())
}

func TestSubmissionRateInMessage(t *testing.T) {
	f := newFixture(t)
	f.examRepo.submitted[1] = map[int64]struct{}{101: {}, 102: {}, 103: {}, 104: {}}

	require.NoError(t, f.service.RunCycle(context.Background()))

	assert.Equal(t, 6, f.transport.totalSent())
	msgs := f.transport.messagesFor(105)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "✅ 4 من زملائك أنهوا الواجب")
	assert.Contains(t, msgs[0], "⏳ 6 طالب لم ينتهوا بعد")
	assert.Contains(t, msgs[0], "نسبة الإنجاز: 40.0%")
	assert.True(t, strings.Contains(f.audit.last(), "rate:40.0%"))
}
