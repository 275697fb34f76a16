package scheduling

import (
	"context"
	"errors"
	"fmt"

	"thesisdefense_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Hooks receives post-commit events. Implementations must not fail the caller.
type Hooks interface {
	Booked(ctx context.Context, b Booking)
	StatusChanged(ctx context.Context, s models.Schedule, previous string)
}

// Booking is the outcome of a successful Book call.
type Booking struct {
	Schedule      models.Schedule `json:"schedule"`
	Updated       bool            `json:"updated"`
	PreviousPanel []uint          `json:"-"`
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	From    string
	To      string
	Status  string
	RoomID  uint
	GroupID uint
	Page    int
	Limit   int
}

type Service struct {
	db      *gorm.DB
	checker *Checker
	hooks   Hooks
}

func NewService(db *gorm.DB, monthlyCap int, hooks Hooks) *Service {
	return &Service{db: db, checker: NewChecker(monthlyCap), hooks: hooks}
}

// Check runs validation and conflict detection without writing anything.
func (s *Service) Check(ctx context.Context, p Proposal) ([]Conflict, error) {
	return s.checker.Check(ctx, s.db, p)
}

// Book creates the group's schedule or replaces its active one. Group, room and
// panelist rows are locked so concurrent bookings for the same resources serialize
// before the checks run.
func (s *Service) Book(ctx context.Context, p Proposal, actorID uint) (*Booking, error) {
	var (
		scheduleID uint
		updated    bool
		previous   []uint
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRows(tx, p); err != nil {
			return err
		}

		cp, err := s.checker.validate(tx, p)
		if err != nil {
			return err
		}
		conflicts, err := s.checker.conflicts(tx, cp)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		sched := models.Schedule{
			GroupID:     cp.GroupID,
			DefenseDate: cp.Date,
			StartTime:   cp.StartTime,
			EndTime:     cp.EndTime,
			RoomID:      cp.RoomID,
			DefenseType: cp.DefenseType,
			Notes:       cp.Notes,
			Status:      models.ScheduleStatusPending,
			CreatedByID: actorID,
		}

		if cp.existingID != 0 {
			updated = true
			if err := tx.Model(&models.Assignment{}).
				Where("schedule_id = ?", cp.existingID).
				Pluck("panelist_id", &previous).Error; err != nil {
				return fmt.Errorf("load previous panel: %w", err)
			}
			if err := tx.Model(&models.Schedule{}).Where("id = ?", cp.existingID).Updates(map[string]interface{}{
				"defense_date": sched.DefenseDate,
				"start_time":   sched.StartTime,
				"end_time":     sched.EndTime,
				"room_id":      sched.RoomID,
				"defense_type": sched.DefenseType,
				"notes":        sched.Notes,
				"status":       models.ScheduleStatusPending,
			}).Error; err != nil {
				return fmt.Errorf("update schedule: %w", err)
			}
			if err := tx.Where("schedule_id = ?", cp.existingID).Delete(&models.Assignment{}).Error; err != nil {
				return fmt.Errorf("clear assignments: %w", err)
			}
			scheduleID = cp.existingID
		} else {
			if err := tx.Create(&sched).Error; err != nil {
				return fmt.Errorf("create schedule: %w", err)
			}
			scheduleID = sched.ID
		}

		assignments := make([]models.Assignment, 0, len(cp.Panel))
		for _, slot := range cp.Panel {
			assignments = append(assignments, models.Assignment{
				ScheduleID: scheduleID,
				GroupID:    cp.GroupID,
				PanelistID: slot.PanelistID,
				Role:       slot.Role,
			})
		}
		if err := tx.Create(&assignments).Error; err != nil {
			return fmt.Errorf("create assignments: %w", err)
		}

		if err := tx.Model(&models.ThesisGroup{}).Where("id = ?", cp.GroupID).
			Update("status", models.GroupStatusForDefense).Error; err != nil {
			return fmt.Errorf("update group status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sched, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	b := &Booking{Schedule: *sched, Updated: updated, PreviousPanel: previous}
	if s.hooks != nil {
		s.hooks.Booked(ctx, *b)
	}
	logrus.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"group_id":    p.GroupID,
		"updated":     updated,
		"panel_size":  len(p.Panel),
	}).Info("defense booked")
	return b, nil
}

// lockRows takes row locks on everything the checks read. Missing rows are left
// for validation to report.
func lockRows(tx *gorm.DB, p Proposal) error {
	lock := clause.Locking{Strength: "UPDATE"}
	var group models.ThesisGroup
	if err := tx.Clauses(lock).Where("id = ?", p.GroupID).Limit(1).Find(&group).Error; err != nil {
		return fmt.Errorf("lock group: %w", err)
	}
	if p.RoomID != nil && *p.RoomID != 0 {
		var room models.Room
		if err := tx.Clauses(lock).Where("id = ?", *p.RoomID).Limit(1).Find(&room).Error; err != nil {
			return fmt.Errorf("lock room: %w", err)
		}
	}
	ids := make([]uint, 0, len(p.Panel))
	for _, slot := range p.Panel {
		if slot.PanelistID != 0 {
			ids = append(ids, slot.PanelistID)
		}
	}
	if len(ids) > 0 {
		var users []models.User
		if err := tx.Clauses(lock).Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
			return fmt.Errorf("lock panelists: %w", err)
		}
	}
	return nil
}

func (s *Service) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Group").
		Preload("Room").
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Assignments.Panelist")
}

// Get loads a schedule with group, room and panel.
func (s *Service) Get(ctx context.Context, id uint) (*models.Schedule, error) {
	var sched models.Schedule
	if err := s.preloaded(ctx).First(&sched, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &sched, nil
}

// List returns schedules ordered by date and start time.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Schedule, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Schedule{})
	if f.From != "" {
		q = q.Where("defense_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("defense_date <= ?", f.To)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RoomID != 0 {
		q = q.Where("room_id = ?", f.RoomID)
	}
	if f.GroupID != 0 {
		q = q.Where("group_id = ?", f.GroupID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Schedule
	q = q.Preload("Group").Preload("Room").Preload("Assignments.Panelist").
		Order("defense_date, start_time")
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * f.Limit).Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// PanelistSchedules lists the schedules a panelist sits on, optionally from a date onward.
func (s *Service) PanelistSchedules(ctx context.Context, panelistID uint, from string) ([]models.Schedule, error) {
	q := s.preloaded(ctx).
		Where("id IN (?)", s.db.Model(&models.Assignment{}).Select("schedule_id").Where("panelist_id = ?", panelistID)).
		Where("status <> ?", models.ScheduleStatusCancelled)
	if from != "" {
		q = q.Where("defense_date >= ?", from)
	}
	var out []models.Schedule
	if err := q.Order("defense_date, start_time").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

var transitions = map[string][]string{
	models.ScheduleStatusPending:   {models.ScheduleStatusConfirmed, models.ScheduleStatusDone, models.ScheduleStatusCancelled},
	models.ScheduleStatusConfirmed: {models.ScheduleStatusPending, models.ScheduleStatusDone, models.ScheduleStatusCancelled},
}

// UpdateStatus moves a schedule through its lifecycle and keeps the group status in step.
func (s *Service) UpdateStatus(ctx context.Context, id uint, status string) (*models.Schedule, error) {
	var previous string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched models.Schedule
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sched, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScheduleNotFound
			}
			return err
		}
		previous = sched.Status
		if previous == status {
			return nil
		}
		if !contains(transitions[previous], status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatus, previous, status)
		}
		if err := tx.Model(&sched).Update("status", status).Error; err != nil {
			return err
		}

		var groupStatus string
		switch status {
		case models.ScheduleStatusDone:
			groupStatus = models.GroupStatusDefended
		case models.ScheduleStatusCancelled:
			groupStatus = models.GroupStatusPending
		default:
			groupStatus = models.GroupStatusForDefense
		}
		return tx.Model(&models.ThesisGroup{}).Where("id = ?", sched.GroupID).
			Update("status", groupStatus).Error
	})
	if err != nil {
		return nil, err
	}

	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.hooks != nil && previous != status {
		s.hooks.StatusChanged(ctx, *sched, previous)
	}
	return sched, nil
}

// Delete removes a schedule and its assignments. An active schedule returns the group to Pending.
func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched models.Schedule
		if err := tx.First(&sched, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrScheduleNotFound
			}
			return err
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&models.Assignment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&sched).Error; err != nil {
			return err
		}
		if sched.Status == models.ScheduleStatusPending || sched.Status == models.ScheduleStatusConfirmed {
			return tx.Model(&models.ThesisGroup{}).
				Where("id = ? AND status = ?", sched.GroupID, models.GroupStatusForDefense).
				Update("status", models.GroupStatusPending).Error
		}
		return nil
	})
}
