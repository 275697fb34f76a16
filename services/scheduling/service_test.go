package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"thesisdefense_go/database/dbtest"
	"thesisdefense_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	svc       *Service
	hooks     *recordingHooks
	group     models.ThesisGroup
	other     models.ThesisGroup
	room      models.Room
	panelists []models.User
}

type recordingHooks struct {
	mu       sync.Mutex
	booked   []Booking
	statuses []string
}

func (h *recordingHooks) Booked(_ context.Context, b Booking) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.booked = append(h.booked, b)
}

func (h *recordingHooks) StatusChanged(_ context.Context, s models.Schedule, previous string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, previous+"->"+s.Status)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{db: db, hooks: &recordingHooks{}}
	f.svc = NewService(db, DefaultMonthlyCap, f.hooks)

	f.group = models.ThesisGroup{BaseModel: models.BaseModel{ID: 12}, LeaderName: "Lea Santos", Course: "BSIT", Title: "Smart Irrigation", Status: models.GroupStatusPending}
	f.other = models.ThesisGroup{BaseModel: models.BaseModel{ID: 13}, LeaderName: "Mark Reyes", Course: "BSCS", Title: "Campus Navigation", Status: models.GroupStatusPending}
	require.NoError(t, db.Create(&f.group).Error)
	require.NoError(t, db.Create(&f.other).Error)

	f.room = models.Room{BaseModel: models.BaseModel{ID: 3}, Name: "CL-3", Status: "available"}
	require.NoError(t, db.Create(&f.room).Error)

	for i := 1; i <= 5; i++ {
		u := models.User{
			Email:     fmt.Sprintf("p%d@example.com", i),
			Password:  "x",
			FirstName: "Panel",
			LastName:  fmt.Sprintf("Ist%d", i),
			Role:      models.RolePanelist,
			Status:    models.UserStatusActive,
		}
		require.NoError(t, db.Create(&u).Error)
		f.panelists = append(f.panelists, u)
	}
	return f
}

func (f *fixture) panel(idx ...int) []Slot {
	roles := []string{models.PanelRoleChair, models.PanelRoleCritic, models.PanelRoleMember, models.PanelRoleMember}
	out := make([]Slot, 0, len(idx))
	for i, n := range idx {
		out = append(out, Slot{Role: roles[i], PanelistID: f.panelists[n].ID})
	}
	return out
}

func roomID(id uint) *uint { return &id }

func codes(cs []Conflict) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Code)
	}
	return out
}

func (f *fixture) seedBooking(t *testing.T, group uint, date, start, end string, room *uint, panel []Slot) models.Schedule {
	t.Helper()
	b, err := f.svc.Book(context.Background(), Proposal{
		GroupID: group, Date: date, StartTime: start, EndTime: end, RoomID: room, Panel: panel,
	}, 1)
	require.NoError(t, err)
	return b.Schedule
}

func TestBookRejectsWeekend(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Book(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-07", StartTime: "09:00", EndTime: "10:00",
		RoomID: roomID(3), Panel: f.panel(0, 1, 2),
	}, 1)

	var ce *ConflictError
	require.True(t, errors.As(err, &ce), "expected conflict error, got %v", err)
	assert.Equal(t, []string{ConflictWeekend}, codes(ce.Conflicts))

	var count int64
	f.db.Model(&models.Schedule{}).Count(&count)
	assert.Zero(t, count)
}

func TestBookRoomOverlapThenAdjacentSlot(t *testing.T) {
	f := newFixture(t)
	f.seedBooking(t, 13, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(3))

	_, err := f.svc.Book(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-09", StartTime: "09:30", EndTime: "10:30",
		RoomID: roomID(3), Panel: f.panel(0, 1, 2),
	}, 1)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce), "expected conflict error, got %v", err)
	assert.Equal(t, []string{ConflictRoom}, codes(ce.Conflicts))
	assert.Contains(t, ce.Conflicts[0].Message, "CL-3")

	b, err := f.svc.Book(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-09", StartTime: "10:00", EndTime: "11:00",
		RoomID: roomID(3), Panel: f.panel(0, 1, 2),
	}, 1)
	require.NoError(t, err)
	assert.False(t, b.Updated)
	assert.Len(t, b.Schedule.Assignments, 3)
	assert.Equal(t, "10:00:00", b.Schedule.StartTime)

	var schedules, assignments int64
	f.db.Model(&models.Schedule{}).Where("group_id = ?", 12).Count(&schedules)
	f.db.Model(&models.Assignment{}).Where("group_id = ?", 12).Count(&assignments)
	assert.EqualValues(t, 1, schedules)
	assert.EqualValues(t, 3, assignments)

	var group models.ThesisGroup
	require.NoError(t, f.db.First(&group, 12).Error)
	assert.Equal(t, models.GroupStatusForDefense, group.Status)
}

func TestCheckAccumulatesConflicts(t *testing.T) {
	f := newFixture(t)
	// panelist 0 is busy 13:00-14:00 that Monday
	f.seedBooking(t, 13, "2025-06-09", "13:00", "14:00", nil, f.panel(0))

	adviser := f.panelists[1].ID
	require.NoError(t, f.db.Create(&models.Thesis{GroupID: 12, Title: "Smart Irrigation", AdviserID: &adviser}).Error)

	panel := []Slot{
		{Role: models.PanelRoleChair, PanelistID: f.panelists[0].ID},
		{Role: models.PanelRoleCritic, PanelistID: f.panelists[1].ID},
		{Role: models.PanelRoleMember, PanelistID: f.panelists[2].ID},
		{Role: models.PanelRoleMember, PanelistID: f.panelists[2].ID},
	}
	conflicts, err := f.svc.Check(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-09", StartTime: "13:30", EndTime: "14:30", Panel: panel,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ConflictPanelistOverlap, ConflictAdviser, ConflictDuplicate}, codes(conflicts))
	require.NotNil(t, conflicts[1].PanelistID)
	assert.Equal(t, adviser, *conflicts[1].PanelistID)

	var count int64
	f.db.Model(&models.Schedule{}).Where("group_id = ?", 12).Count(&count)
	assert.Zero(t, count, "check must not write")
}

func TestWorkloadCap(t *testing.T) {
	f := newFixture(t)
	chair := f.panelists[0]
	// ten assignments for the chair in June 2025 spread over groups
	dates := []string{"2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05", "2025-06-06",
		"2025-06-10", "2025-06-11", "2025-06-12", "2025-06-13", "2025-06-16"}
	for i, d := range dates {
		g := models.ThesisGroup{LeaderName: "L", Course: "C", Title: fmt.Sprintf("T%d", i), Status: models.GroupStatusPending}
		require.NoError(t, f.db.Create(&g).Error)
		f.seedBooking(t, g.ID, d, "08:00", "09:00", nil, []Slot{{Role: models.PanelRoleChair, PanelistID: chair.ID}})
	}

	conflicts, err := f.svc.Check(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-20", StartTime: "08:00", EndTime: "09:00", Panel: f.panel(0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ConflictWorkload}, codes(conflicts))
	assert.Contains(t, conflicts[0].Message, "June 2025")

	// next month is fine
	conflicts, err = f.svc.Check(context.Background(), Proposal{
		GroupID: 12, Date: "2025-07-01", StartTime: "08:00", EndTime: "09:00", Panel: f.panel(0, 1),
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	// cancelling one frees a slot
	var one models.Schedule
	require.NoError(t, f.db.Where("defense_date = ?", "2025-06-02").First(&one).Error)
	_, err = f.svc.UpdateStatus(context.Background(), one.ID, models.ScheduleStatusCancelled)
	require.NoError(t, err)
	conflicts, err = f.svc.Check(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-20", StartTime: "08:00", EndTime: "09:00", Panel: f.panel(0, 1),
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestRebookReplacesScheduleAndPanel(t *testing.T) {
	f := newFixture(t)
	first := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(0, 1, 2))

	// same group may move into an overlapping slot of its own schedule
	b, err := f.svc.Book(context.Background(), Proposal{
		GroupID: 12, Date: "2025-06-09", StartTime: "09:30", EndTime: "10:30",
		RoomID: roomID(3), Panel: f.panel(3, 4), Notes: "moved",
	}, 1)
	require.NoError(t, err)
	assert.True(t, b.Updated)
	assert.Equal(t, first.ID, b.Schedule.ID)
	assert.Equal(t, "09:30:00", b.Schedule.StartTime)
	assert.Equal(t, "moved", b.Schedule.Notes)
	assert.ElementsMatch(t, []uint{f.panelists[0].ID, f.panelists[1].ID, f.panelists[2].ID}, b.PreviousPanel)

	var schedules int64
	f.db.Model(&models.Schedule{}).Where("group_id = ?", 12).Count(&schedules)
	assert.EqualValues(t, 1, schedules)

	var panel []uint
	f.db.Model(&models.Assignment{}).Where("schedule_id = ?", first.ID).Order("id").Pluck("panelist_id", &panel)
	assert.Equal(t, []uint{f.panelists[3].ID, f.panelists[4].ID}, panel)

	require.Len(t, f.hooks.booked, 2)
	assert.True(t, f.hooks.booked[1].Updated)
}

func TestCancelledScheduleIsNotReplaced(t *testing.T) {
	f := newFixture(t)
	first := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(0))
	_, err := f.svc.UpdateStatus(context.Background(), first.ID, models.ScheduleStatusCancelled)
	require.NoError(t, err)

	second := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(0))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRebookAfterDoneCreatesNewSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	defended := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(0, 1, 2))
	_, err := f.svc.UpdateStatus(ctx, defended.ID, models.ScheduleStatusDone)
	require.NoError(t, err)

	b, err := f.svc.Book(ctx, Proposal{
		GroupID: 12, Date: "2025-07-14", StartTime: "09:00", EndTime: "10:00",
		RoomID: roomID(3), DefenseType: "Re-Defense", Panel: f.panel(0, 1, 2),
	}, 1)
	require.NoError(t, err)
	assert.False(t, b.Updated)
	assert.NotEqual(t, defended.ID, b.Schedule.ID)
	assert.Equal(t, models.ScheduleStatusPending, b.Schedule.Status)

	var kept models.Schedule
	require.NoError(t, f.db.First(&kept, defended.ID).Error)
	assert.Equal(t, models.ScheduleStatusDone, kept.Status)
	assert.Equal(t, "2025-06-09", kept.DefenseDate)

	var panel int64
	f.db.Model(&models.Assignment{}).Where("schedule_id = ?", defended.ID).Count(&panel)
	assert.EqualValues(t, 3, panel)

	_, err = f.svc.UpdateStatus(ctx, b.Schedule.ID, models.ScheduleStatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, b.Schedule.ID, models.ScheduleStatusCancelled)
	require.NoError(t, err)
}

func TestRebookConfirmedResetsToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(0, 1))
	_, err := f.svc.UpdateStatus(ctx, s.ID, models.ScheduleStatusConfirmed)
	require.NoError(t, err)

	b, err := f.svc.Book(ctx, Proposal{
		GroupID: 12, Date: "2025-06-10", StartTime: "13:00", EndTime: "14:00",
		RoomID: roomID(3), Panel: f.panel(2, 3),
	}, 1)
	require.NoError(t, err)
	assert.True(t, b.Updated)
	assert.Equal(t, s.ID, b.Schedule.ID)
	assert.Equal(t, models.ScheduleStatusPending, b.Schedule.Status)
}

func TestCheckAdviserAgainstActivePanel(t *testing.T) {
	f := newFixture(t)
	s := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", roomID(3), f.panel(0, 1))

	err := CheckAdviser(f.db, 12, f.panelists[0])
	var ce *ConflictError
	require.True(t, errors.As(err, &ce), "expected conflict error, got %v", err)
	assert.Equal(t, []string{ConflictAdviser}, codes(ce.Conflicts))

	assert.NoError(t, CheckAdviser(f.db, 12, f.panelists[2]))
	assert.NoError(t, CheckAdviser(f.db, 13, f.panelists[0]))

	_, err = f.svc.UpdateStatus(context.Background(), s.ID, models.ScheduleStatusDone)
	require.NoError(t, err)
	assert.NoError(t, CheckAdviser(f.db, 12, f.panelists[0]))
}

func TestCheckPanelistLoadFailureIsNotValidation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&models.User{}))

	_, err := f.svc.Check(context.Background(), Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00", Panel: f.panel(0, 1, 2)})
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "load panelists")
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.panelists[4].ID).Update("status", models.UserStatusPending).Error)

	tests := []struct {
		name  string
		p     Proposal
		field string
	}{
		{"bad date", Proposal{GroupID: 12, Date: "09/06/2025", StartTime: "09:00", EndTime: "10:00", Panel: f.panel(0)}, "defense_date"},
		{"end before start", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "10:00", EndTime: "09:00", Panel: f.panel(0)}, "end_time"},
		{"equal times", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "10:00", EndTime: "10:00", Panel: f.panel(0)}, "end_time"},
		{"unknown group", Proposal{GroupID: 99, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00", Panel: f.panel(0)}, "group_id"},
		{"unknown room", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00", RoomID: roomID(42), Panel: f.panel(0)}, "room_id"},
		{"no chair", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00",
			Panel: []Slot{{Role: models.PanelRoleMember, PanelistID: f.panelists[0].ID}}}, "panel"},
		{"two chairs", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00",
			Panel: []Slot{{Role: models.PanelRoleChair, PanelistID: f.panelists[0].ID}, {Role: models.PanelRoleChair, PanelistID: f.panelists[1].ID}}}, "panel"},
		{"bad role", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00",
			Panel: []Slot{{Role: models.PanelRoleChair, PanelistID: f.panelists[0].ID}, {Role: "Judge", PanelistID: f.panelists[1].ID}}}, "panel[1].role"},
		{"inactive panelist", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00", Panel: f.panel(4)}, "panel"},
		{"unknown panelist", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00",
			Panel: []Slot{{Role: models.PanelRoleChair, PanelistID: 999}}}, "panel"},
		{"bad defense type", Proposal{GroupID: 12, Date: "2025-06-09", StartTime: "09:00", EndTime: "10:00", DefenseType: "Oral", Panel: f.panel(0)}, "defense_type"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), tc.p, 1)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Contains(t, ve.Fields, tc.field)
		})
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	s := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", nil, f.panel(0))

	got, err := f.svc.UpdateStatus(context.Background(), s.ID, models.ScheduleStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusConfirmed, got.Status)

	_, err = f.svc.UpdateStatus(context.Background(), s.ID, models.ScheduleStatusDone)
	require.NoError(t, err)

	var group models.ThesisGroup
	require.NoError(t, f.db.First(&group, 12).Error)
	assert.Equal(t, models.GroupStatusDefended, group.Status)

	_, err = f.svc.UpdateStatus(context.Background(), s.ID, models.ScheduleStatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(context.Background(), 999, models.ScheduleStatusDone)
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	assert.Equal(t, []string{"Pending->Confirmed", "Confirmed->Done"}, f.hooks.statuses)
}

func TestDeleteScheduleResetsGroup(t *testing.T) {
	f := newFixture(t)
	s := f.seedBooking(t, 12, "2025-06-09", "09:00", "10:00", nil, f.panel(0, 1))
	require.NoError(t, f.svc.Delete(context.Background(), s.ID))

	var assignments int64
	f.db.Model(&models.Assignment{}).Where("schedule_id = ?", s.ID).Count(&assignments)
	assert.Zero(t, assignments)

	var group models.ThesisGroup
	require.NoError(t, f.db.First(&group, 12).Error)
	assert.Equal(t, models.GroupStatusPending, group.Status)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), s.ID), ErrScheduleNotFound)
}

func TestListAndPanelistSchedules(t *testing.T) {
	f := newFixture(t)
	f.seedBooking(t, 12, "2025-06-10", "09:00", "10:00", roomID(3), f.panel(0, 1))
	f.seedBooking(t, 13, "2025-06-09", "13:00", "14:00", nil, f.panel(2, 0))

	all, total, err := f.svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, all, 2)
	assert.Equal(t, "2025-06-09", all[0].DefenseDate)

	byRoom, _, err := f.svc.List(context.Background(), Filter{RoomID: 3})
	require.NoError(t, err)
	require.Len(t, byRoom, 1)
	assert.Equal(t, uint(12), byRoom[0].GroupID)

	mine, err := f.svc.PanelistSchedules(context.Background(), f.panelists[0].ID, "2025-06-10")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, uint(12), mine[0].GroupID)
	assert.Equal(t, "Smart Irrigation", mine[0].Group.Title)
}
