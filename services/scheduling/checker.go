// Package scheduling validates defense proposals, detects conflicts and books
// schedules with their panel assignments.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"thesisdefense_go/models"
	"thesisdefense_go/utils"

	"gorm.io/gorm"
)

// Conflict codes
const (
	ConflictWeekend         = "weekend"
	ConflictRoom            = "room_overlap"
	ConflictPanelistOverlap = "panelist_overlap"
	ConflictAdviser         = "adviser_conflict"
	ConflictDuplicate       = "duplicate_panelist"
	ConflictWorkload        = "workload_cap"
)

// DefaultMonthlyCap is the number of non-cancelled assignments a panelist may hold per month.
const DefaultMonthlyCap = 10

// ActiveStatuses are the schedule statuses a booking replaces in place.
var ActiveStatuses = []string{models.ScheduleStatusPending, models.ScheduleStatusConfirmed}

var defenseTypes = []string{"Proposal", "Final", "Re-Defense"}

// Slot is one panel seat in a proposal.
type Slot struct {
	Role       string `json:"role"`
	PanelistID uint   `json:"panelist_id"`
}

// Proposal describes a defense the caller wants to book.
type Proposal struct {
	GroupID     uint   `json:"group_id"`
	Date        string `json:"defense_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	RoomID      *uint  `json:"room_id"`
	DefenseType string `json:"defense_type"`
	Notes       string `json:"notes"`
	Panel       []Slot `json:"panel"`
}

// Conflict is one reason a proposal cannot be booked.
type Conflict struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	PanelistID *uint  `json:"panelist_id,omitempty"`
}

// checked is a proposal after validation, with resolved rows.
type checked struct {
	Proposal
	day        time.Time
	group      models.ThesisGroup
	room       *models.Room
	panelists  map[uint]models.User
	order      []uint // distinct panelist ids in slot order
	existingID uint   // group's Pending or Confirmed schedule, 0 if none
}

// Checker runs the booking preconditions and conflict checks.
type Checker struct {
	MonthlyCap int
}

func NewChecker(monthlyCap int) *Checker {
	if monthlyCap <= 0 {
		monthlyCap = DefaultMonthlyCap
	}
	return &Checker{MonthlyCap: monthlyCap}
}

// Check validates p and returns all conflicts. A *ValidationError is returned for
// malformed input; conflicts are not errors.
func (ck *Checker) Check(ctx context.Context, db *gorm.DB, p Proposal) ([]Conflict, error) {
	cp, err := ck.validate(db.WithContext(ctx), p)
	if err != nil {
		return nil, err
	}
	return ck.conflicts(db.WithContext(ctx), cp)
}

func (ck *Checker) validate(db *gorm.DB, p Proposal) (*checked, error) {
	verr := &ValidationError{}
	cp := &checked{Proposal: p, panelists: make(map[uint]models.User)}

	day, err := utils.ParseDate(p.Date)
	if err != nil {
		verr.add("defense_date", "must be a date in YYYY-MM-DD format")
	}
	cp.day = day
	cp.Date = strings.TrimSpace(p.Date)

	start, err1 := utils.NormalizeTime(p.StartTime)
	if err1 != nil {
		verr.add("start_time", "must be a time in HH:MM format")
	}
	end, err2 := utils.NormalizeTime(p.EndTime)
	if err2 != nil {
		verr.add("end_time", "must be a time in HH:MM format")
	}
	if err1 == nil && err2 == nil && start >= end {
		verr.add("end_time", "must be after start_time")
	}
	cp.StartTime, cp.EndTime = start, end

	if cp.DefenseType == "" {
		cp.DefenseType = "Final"
	} else if !contains(defenseTypes, cp.DefenseType) {
		verr.add("defense_type", "must be one of: "+strings.Join(defenseTypes, ", "))
	}

	if p.GroupID == 0 {
		verr.add("group_id", "is required")
	} else if err := db.First(&cp.group, p.GroupID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load group: %w", err)
		}
		verr.add("group_id", "thesis group not found")
	}

	if p.RoomID != nil && *p.RoomID != 0 {
		var room models.Room
		if err := db.First(&room, *p.RoomID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("load room: %w", err)
			}
			verr.add("room_id", "room not found")
		} else if room.Status == "maintenance" {
			verr.add("room_id", "room is under maintenance")
		} else {
			cp.room = &room
		}
	} else {
		cp.RoomID = nil
	}

	if err := ck.validatePanel(db, cp, verr); err != nil {
		return nil, err
	}

	if !verr.empty() {
		return nil, verr
	}

	var existing models.Schedule
	err = db.Select("id").
		Where("group_id = ? AND status IN ?", p.GroupID, ActiveStatuses).
		Order("id DESC").
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("load existing schedule: %w", err)
	}
	cp.existingID = existing.ID

	return cp, nil
}

func (ck *Checker) validatePanel(db *gorm.DB, cp *checked, verr *ValidationError) error {
	if len(cp.Panel) == 0 {
		verr.add("panel", "at least a Chair is required")
		return nil
	}
	roleCount := map[string]int{}
	seen := map[uint]bool{}
	for i, s := range cp.Panel {
		if !utils.IsValidPanelRole(s.Role) {
			verr.add(fmt.Sprintf("panel[%d].role", i), "must be one of: Chair, Critic, Member")
			continue
		}
		if s.PanelistID == 0 {
			verr.add(fmt.Sprintf("panel[%d].panelist_id", i), "is required")
			continue
		}
		roleCount[s.Role]++
		if !seen[s.PanelistID] {
			seen[s.PanelistID] = true
			cp.order = append(cp.order, s.PanelistID)
		}
	}
	if roleCount[models.PanelRoleChair] == 0 {
		verr.add("panel", "a Chair is required")
	}
	if roleCount[models.PanelRoleChair] > 1 {
		verr.add("panel", "only one Chair may be assigned")
	}
	if roleCount[models.PanelRoleCritic] > 1 {
		verr.add("panel", "only one Critic may be assigned")
	}
	if len(cp.order) == 0 {
		return nil
	}

	var users []models.User
	if err := db.Where("id IN ?", cp.order).Find(&users).Error; err != nil {
		return fmt.Errorf("load panelists: %w", err)
	}
	for _, u := range users {
		cp.panelists[u.ID] = u
	}
	for _, id := range cp.order {
		u, ok := cp.panelists[id]
		switch {
		case !ok:
			verr.add("panel", fmt.Sprintf("panelist %d not found", id))
		case u.Role != models.RolePanelist:
			verr.add("panel", fmt.Sprintf("user %d is not a panelist", id))
		case u.Status != models.UserStatusActive:
			verr.add("panel", fmt.Sprintf("panelist %s is not active", u.FullName()))
		}
	}
	return nil
}

// conflicts runs the six checks in order and accumulates every violation.
func (ck *Checker) conflicts(db *gorm.DB, cp *checked) ([]Conflict, error) {
	out := []Conflict{}

	// 1. weekend
	if utils.IsWeekend(cp.day) {
		out = append(out, Conflict{
			Code:    ConflictWeekend,
			Message: fmt.Sprintf("Defenses cannot be scheduled on weekends (%s is a %s)", cp.Date, cp.day.Weekday()),
		})
	}

	// 2. room overlap
	if cp.room != nil {
		var clash []models.Schedule
		err := db.Preload("Group").
			Where("room_id = ? AND defense_date = ? AND status <> ? AND id <> ?",
				cp.room.ID, cp.Date, models.ScheduleStatusCancelled, cp.existingID).
			Where("start_time < ? AND end_time > ?", cp.EndTime, cp.StartTime).
			Order("start_time").
			Find(&clash).Error
		if err != nil {
			return nil, fmt.Errorf("room overlap query: %w", err)
		}
		for _, s := range clash {
			out = append(out, Conflict{
				Code: ConflictRoom,
				Message: fmt.Sprintf("Room %s is already booked on %s from %s to %s (%s)",
					cp.room.Name, cp.Date, short(s.StartTime), short(s.EndTime), s.Group.Title),
			})
		}
	}

	// 3. panelist overlap
	for _, id := range cp.order {
		var count int64
		err := db.Table("assignments").
			Joins("JOIN schedules ON schedules.id = assignments.schedule_id").
			Where("assignments.panelist_id = ? AND schedules.defense_date = ? AND schedules.status <> ? AND schedules.id <> ?",
				id, cp.Date, models.ScheduleStatusCancelled, cp.existingID).
			Where("schedules.start_time < ? AND schedules.end_time > ?", cp.EndTime, cp.StartTime).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("panelist overlap query: %w", err)
		}
		if count > 0 {
			out = append(out, panelistConflict(ConflictPanelistOverlap, id,
				fmt.Sprintf("%s already has a defense on %s between %s and %s",
					cp.panelists[id].FullName(), cp.Date, short(cp.StartTime), short(cp.EndTime))))
		}
	}

	// 4. adviser conflict of interest
	var thesis models.Thesis
	if err := db.Where("group_id = ?", cp.GroupID).Limit(1).Find(&thesis).Error; err != nil {
		return nil, fmt.Errorf("load thesis: %w", err)
	}
	if thesis.AdviserID != nil {
		for _, id := range cp.order {
			if id == *thesis.AdviserID {
				out = append(out, adviserConflict(id, cp.panelists[id].FullName()))
			}
		}
	}

	// 5. duplicate across role slots
	slots := map[uint]int{}
	for _, s := range cp.Panel {
		slots[s.PanelistID]++
	}
	for _, id := range cp.order {
		if slots[id] > 1 {
			out = append(out, panelistConflict(ConflictDuplicate, id,
				fmt.Sprintf("%s is assigned to more than one panel role", cp.panelists[id].FullName())))
		}
	}

	// 6. monthly workload cap
	first, last := utils.MonthRange(cp.day)
	for _, id := range cp.order {
		var count int64
		err := db.Table("assignments").
			Joins("JOIN schedules ON schedules.id = assignments.schedule_id").
			Where("assignments.panelist_id = ? AND schedules.defense_date BETWEEN ? AND ? AND schedules.status <> ? AND schedules.id <> ?",
				id, first, last, models.ScheduleStatusCancelled, cp.existingID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("workload query: %w", err)
		}
		if count >= int64(ck.MonthlyCap) {
			out = append(out, panelistConflict(ConflictWorkload, id,
				fmt.Sprintf("%s already has %d defenses in %s (limit %d)",
					cp.panelists[id].FullName(), count, cp.day.Format("January 2006"), ck.MonthlyCap)))
		}
	}

	return out, nil
}

func adviserConflict(id uint, name string) Conflict {
	return panelistConflict(ConflictAdviser, id,
		fmt.Sprintf("%s is the thesis adviser and cannot sit on this panel", name))
}

// CheckAdviser returns a ConflictError when adviser already sits on the group's
// Pending or Confirmed panel.
func CheckAdviser(db *gorm.DB, groupID uint, adviser models.User) error {
	var count int64
	err := db.Table("assignments").
		Joins("JOIN schedules ON schedules.id = assignments.schedule_id").
		Where("schedules.group_id = ? AND schedules.status IN ? AND assignments.panelist_id = ?",
			groupID, ActiveStatuses, adviser.ID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("adviser panel query: %w", err)
	}
	if count > 0 {
		return &ConflictError{Conflicts: []Conflict{adviserConflict(adviser.ID, adviser.FullName())}}
	}
	return nil
}

func panelistConflict(code string, id uint, msg string) Conflict {
	pid := id
	return Conflict{Code: code, Message: msg, PanelistID: &pid}
}

// short trims seconds from HH:MM:SS.
func short(t string) string {
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
