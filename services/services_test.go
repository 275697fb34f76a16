package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/database/dbtest"
	"thesisdefense_go/models"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	db     *gorm.DB
	sender *mailer.ConsoleSender
	mail   *mailer.Mailer
	notifs *notifications.Service
	admin  models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.New(t)
	sender := &mailer.ConsoleSender{}
	e := &env{
		db:     db,
		sender: sender,
		mail:   mailer.New(db, sender, 3),
		notifs: notifications.NewServiceWith(db, nil, nil),
	}
	admin := "admin"
	e.admin = models.User{Username: &admin, Email: "admin@example.com", Password: "x", FirstName: "Site", LastName: "Admin", Role: models.RoleAdmin, Status: models.UserStatusActive}
	require.NoError(t, db.Create(&e.admin).Error)
	return e
}

func (e *env) panelist(t *testing.T, first, last string) models.User {
	t.Helper()
	u := models.User{
		Email:     fmt.Sprintf("%s.%s.%d@example.com", first, last, time.Now().UnixNano()),
		Password:  "x",
		FirstName: first,
		LastName:  last,
		Role:      models.RolePanelist,
		Status:    models.UserStatusActive,
	}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *env) emailCount(t *testing.T, template string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.EmailLog{}).Where("template = ?", template).Count(&n).Error)
	return n
}

func TestPanelistRegistrationAndApproval(t *testing.T) {
	e := newEnv(t)
	svc := NewPanelistService(e.db, e.mail, e.notifs)
	ctx := context.Background()

	first, err := svc.Register(ctx, RegisterInput{FirstName: "Ana", LastName: "Cruz", Email: "Ana@Example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusPending, first.Status)
	assert.Nil(t, first.Username)
	assert.Equal(t, "ana@example.com", first.Email)

	_, err = svc.Register(ctx, RegisterInput{FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	second, err := svc.Register(ctx, RegisterInput{FirstName: "Ana", LastName: "Cruz", Email: "ana.cruz@example.com", Password: "secret123"})
	require.NoError(t, err)

	var adminNotes int64
	require.NoError(t, e.db.Model(&models.Notification{}).Where("user_id = ?", e.admin.ID).Count(&adminNotes).Error)
	assert.Equal(t, int64(2), adminNotes)

	approved, err := svc.Approve(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, approved.Username)
	assert.Equal(t, "anacruz", *approved.Username)
	assert.Equal(t, models.UserStatusActive, approved.Status)

	approved2, err := svc.Approve(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "anacruz1", *approved2.Username)

	_, err = svc.Approve(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, svc.Reject(ctx, first.ID), ErrNotPending)
	assert.Equal(t, int64(2), e.emailCount(t, mailer.TemplateAccountApproved))

	_, err = svc.Approve(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPanelistReject(t *testing.T) {
	e := newEnv(t)
	svc := NewPanelistService(e.db, e.mail, e.notifs)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{FirstName: "Jo", LastName: "Lim", Email: "jo@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NoError(t, svc.Reject(ctx, u.ID))

	_, err = svc.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err := svc.List(ctx, models.UserStatusPending, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPanelistSetActiveAndProfile(t *testing.T) {
	e := newEnv(t)
	svc := NewPanelistService(e.db, e.mail, e.notifs)
	ctx := context.Background()
	p := e.panelist(t, "Rey", "Dizon")

	u, err := svc.SetActive(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusInactive, u.Status)

	dept := "Computer Science"
	blank := "   "
	u, err = svc.UpdateProfile(ctx, p.ID, ProfileInput{Department: &dept, FirstName: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Computer Science", u.Department)
	assert.Equal(t, "Rey", u.FirstName)

	pending, err := svc.Register(ctx, RegisterInput{FirstName: "New", LastName: "Comer", Email: "nc@example.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, pending.ID, true)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPanelistWorkload(t *testing.T) {
	e := newEnv(t)
	svc := NewPanelistService(e.db, e.mail, e.notifs)
	busy := e.panelist(t, "Busy", "Bee")
	idle := e.panelist(t, "Idle", "Ant")

	group := models.ThesisGroup{LeaderName: "L", Course: "BSIT", Title: "T"}
	require.NoError(t, e.db.Create(&group).Error)
	for i, status := range []string{models.ScheduleStatusPending, models.ScheduleStatusCancelled, models.ScheduleStatusDone} {
		s := models.Schedule{GroupID: group.ID, DefenseDate: fmt.Sprintf("2025-06-%02d", 9+i), StartTime: "09:00:00", EndTime: "10:00:00", Status: status}
		require.NoError(t, e.db.Create(&s).Error)
		require.NoError(t, e.db.Create(&models.Assignment{ScheduleID: s.ID, GroupID: group.ID, PanelistID: busy.ID, Role: models.PanelRoleChair}).Error)
	}

	rows, err := svc.Workload(context.Background(), "2025-06-15")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, busy.ID, rows[0].PanelistID)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, idle.ID, rows[1].PanelistID)
	assert.Equal(t, int64(0), rows[1].Count)

	_, err = svc.Workload(context.Background(), "June")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAvailabilityAdd(t *testing.T) {
	e := newEnv(t)
	svc := NewAvailabilityService(e.db, e.mail, e.notifs)
	ctx := context.Background()
	p := e.panelist(t, "Mia", "Tan")

	slot, err := svc.Add(ctx, p, "monday", "09:00", "11:00")
	require.NoError(t, err)
	assert.Equal(t, "Monday", slot.DayOfWeek)
	assert.Equal(t, "09:00:00", slot.StartTime)

	tests := []struct {
		name       string
		day        string
		start, end string
		wantErr    error
	}{
		{"overlapping", "Monday", "10:00", "12:00", ErrSlotOverlap},
		{"contained", "Monday", "09:30", "10:30", ErrSlotOverlap},
		{"adjacent", "Monday", "11:00", "12:00", nil},
		{"other day", "Tuesday", "09:00", "11:00", nil},
		{"weekend", "Saturday", "09:00", "11:00", ErrInvalidInput},
		{"reversed", "Wednesday", "11:00", "09:00", ErrInvalidInput},
		{"bad time", "Wednesday", "nine", "11:00", ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Add(ctx, p, tc.day, tc.start, tc.end)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err = svc.Add(ctx, p, "Monday", "08:00", "09:30")
	require.ErrorIs(t, err, ErrSlotOverlap)
	assert.Contains(t, err.Error(), "09:00-11:00")

	list, err := svc.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Monday", "Monday", "Tuesday"}, []string{list[0].DayOfWeek, list[1].DayOfWeek, list[2].DayOfWeek})
	assert.Equal(t, "09:00:00", list[0].StartTime)

	assert.Equal(t, int64(3), e.emailCount(t, mailer.TemplateAvailabilityAdded))
	var notes int64
	require.NoError(t, e.db.Model(&models.Notification{}).Where("user_id = ?", e.admin.ID).Count(&notes).Error)
	assert.Equal(t, int64(3), notes)
}

func TestAvailabilityDeleteAndLookup(t *testing.T) {
	e := newEnv(t)
	svc := NewAvailabilityService(e.db, nil, nil)
	ctx := context.Background()
	mia := e.panelist(t, "Mia", "Tan")
	leo := e.panelist(t, "Leo", "Uy")

	slot, err := svc.Add(ctx, mia, "Monday", "08:00", "12:00")
	require.NoError(t, err)
	_, err = svc.Add(ctx, leo, "Monday", "10:00", "12:00")
	require.NoError(t, err)

	// 2025-06-09 is a Monday
	free, err := svc.AvailableOn(ctx, "2025-06-09", "09:00", "10:00")
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, mia.ID, free[0].ID)

	assert.ErrorIs(t, svc.Delete(ctx, leo.ID, slot.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, mia.ID, slot.ID))

	free, err = svc.AvailableOn(ctx, "2025-06-09", "09:00", "10:00")
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestDefenseReminders(t *testing.T) {
	e := newEnv(t)
	ns := NewNotificationScheduler(e.db, e.mail, e.notifs)
	chair := e.panelist(t, "Chair", "One")
	critic := e.panelist(t, "Critic", "Two")

	group := models.ThesisGroup{LeaderName: "Lea", Course: "BSIT", Title: "Smart Irrigation"}
	require.NoError(t, e.db.Create(&group).Error)

	now := time.Date(2025, 6, 8, 7, 0, 0, 0, time.Local)
	tomorrow := models.Schedule{GroupID: group.ID, DefenseDate: "2025-06-09", StartTime: "09:00:00", EndTime: "10:00:00", Status: models.ScheduleStatusConfirmed}
	cancelled := models.Schedule{GroupID: group.ID, DefenseDate: "2025-06-09", StartTime: "13:00:00", EndTime: "14:00:00", Status: models.ScheduleStatusCancelled}
	later := models.Schedule{GroupID: group.ID, DefenseDate: "2025-06-10", StartTime: "09:00:00", EndTime: "10:00:00", Status: models.ScheduleStatusPending}
	for _, s := range []*models.Schedule{&tomorrow, &cancelled, &later} {
		require.NoError(t, e.db.Create(s).Error)
		require.NoError(t, e.db.Create(&models.Assignment{ScheduleID: s.ID, GroupID: group.ID, PanelistID: chair.ID, Role: models.PanelRoleChair}).Error)
	}
	require.NoError(t, e.db.Create(&models.Assignment{ScheduleID: tomorrow.ID, GroupID: group.ID, PanelistID: critic.ID, Role: models.PanelRoleCritic}).Error)

	sent, err := ns.SendDefenseReminders(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int64(2), e.emailCount(t, mailer.TemplateReminder))

	sent, err = ns.SendDefenseReminders(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, sent)

	var stamped int64
	require.NoError(t, e.db.Model(&models.Assignment{}).Where("reminder_sent_at IS NOT NULL").Count(&stamped).Error)
	assert.Equal(t, int64(2), stamped)
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func seedAuditLogs(t *testing.T, db *gorm.DB, userID uint) {
	t.Helper()
	old := time.Now().AddDate(0, 0, -40)
	for i := 0; i < 3; i++ {
		l := models.AuditLog{UserID: userID, Action: "update", Resource: "schedules", ResourceID: uint(i + 1), Details: models.JSON(`{"status":"Done"}`)}
		require.NoError(t, db.Create(&l).Error)
		require.NoError(t, db.Model(&l).UpdateColumn("created_at", old).Error)
	}
	require.NoError(t, db.Create(&models.AuditLog{UserID: userID, Action: "create", Resource: "rooms"}).Error)
}

func TestArchiveOldLogs(t *testing.T) {
	e := newEnv(t)
	store := &memStore{}
	svc := NewLogArchiveService(e.db, nil, store)
	ctx := context.Background()
	seedAuditLogs(t, e.db, e.admin.ID)

	assert.Error(t, svc.ArchiveOldLogs(ctx, 3))
	require.NoError(t, svc.ArchiveOldLogs(ctx, 30))

	var remaining int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	archives, err := svc.GetArchivedLogs(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, "completed", archives[0].Status)
	assert.Equal(t, 3, archives[0].RecordCount)
	assert.Contains(t, store.objects, archives[0].S3Key)

	rc, name, err := svc.DownloadArchivedLogs(ctx, archives[0].ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, archives[0].FileName, name)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, archives[0].FileSize, int64(len(body)))

	_, _, err = svc.DownloadArchivedLogs(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveUploadFailureKeepsLogs(t *testing.T) {
	e := newEnv(t)
	svc := NewLogArchiveService(e.db, nil, &memStore{fail: errors.New("bucket gone")})
	seedAuditLogs(t, e.db, e.admin.ID)

	assert.Error(t, svc.ArchiveOldLogs(context.Background(), 30))

	var remaining int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).Count(&remaining).Error)
	assert.Equal(t, int64(4), remaining)

	var failed models.AuditArchive
	require.NoError(t, e.db.First(&failed).Error)
	assert.Equal(t, "failed", failed.Status)
	assert.Equal(t, "bucket gone", failed.Error)
}

func TestHealthReport(t *testing.T) {
	e := newEnv(t)
	cfg := config.Default()
	require.NoError(t, e.mail.Enqueue(context.Background(), "p@example.com", mailer.TemplateAccountApproved, mailer.AccountData{Name: "P", Username: "p"}))

	pending := models.User{Email: "wait@example.com", Password: "x", FirstName: "Wait", LastName: "Ing", Role: models.RolePanelist, Status: models.UserStatusPending}
	require.NoError(t, e.db.Create(&pending).Error)
	now := time.Now().UTC()
	day := func(offset int) string { return now.AddDate(0, 0, offset).Format(utils.DateLayout) }
	for _, sc := range []models.Schedule{
		{GroupID: 1, DefenseDate: day(0), StartTime: "09:00:00", EndTime: "10:00:00", Status: models.ScheduleStatusPending},
		{GroupID: 2, DefenseDate: day(1), StartTime: "09:00:00", EndTime: "10:00:00", Status: models.ScheduleStatusConfirmed},
		{GroupID: 3, DefenseDate: day(-1), StartTime: "09:00:00", EndTime: "10:00:00", Status: models.ScheduleStatusPending},
		{GroupID: 4, DefenseDate: day(2), StartTime: "09:00:00", EndTime: "10:00:00", Status: models.ScheduleStatusCancelled},
	} {
		sc := sc
		require.NoError(t, e.db.Create(&sc).Error)
	}

	svc := NewHealthService("", "", cfg, e.db, nil, e.mail)
	svc.SetStartTime(time.Now().Add(-90 * time.Minute))
	report := svc.GetHealthReport(context.Background())

	assert.Equal(t, overallStatusOK, report.Status)
	assert.Equal(t, defaultServiceName, report.Service)
	assert.Equal(t, "development", report.Environment)
	assert.Equal(t, "1h 30m", report.UptimeHuman)
	assert.Equal(t, 200, svc.HTTPStatusForOverall(report.Status))

	byName := map[string]DependencyStatus{}
	for _, d := range report.Dependencies {
		byName[d.Name] = d
	}
	assert.Equal(t, dependencyStatusUp, byName["mysql"].Status)
	assert.Equal(t, dependencyStatusDisabled, byName["redis"].Status)
	assert.Equal(t, dependencyStatusUp, byName["mail"].Status)
	assert.Equal(t, "console", byName["mail"].Details["driver"])
	assert.Equal(t, int64(1), byName["mail"].Details["queued"])

	require.NotNil(t, report.Scheduling)
	assert.Equal(t, SchedulingBacklog{PendingApprovals: 1, UpcomingDefenses: 2, UnconfirmedToday: 1}, *report.Scheduling)
}

func TestHealthReportWithoutDatabase(t *testing.T) {
	svc := NewHealthService("svc", "2.0.0", nil, nil, nil, nil)
	report := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusCritical, report.Status)
	assert.Equal(t, 503, svc.HTTPStatusForOverall(report.Status))
	assert.Equal(t, "unknown", report.Environment)
	assert.Nil(t, report.Scheduling)
}

func TestCombineStatusAndHumanize(t *testing.T) {
	assert.Equal(t, overallStatusDegraded, combineStatus(overallStatusOK, overallStatusDegraded))
	assert.Equal(t, overallStatusCritical, combineStatus(overallStatusCritical, overallStatusOK))
	assert.Equal(t, "0s", humanizeDuration(0))
	assert.Equal(t, "1d 2h 5s", humanizeDuration(26*time.Hour+5*time.Second))
}
