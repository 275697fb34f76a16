package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"thesisdefense_go/models"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Weekdays on which availability may be declared, in display order.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// AvailabilityService manages weekly availability slots.
type AvailabilityService struct {
	db     *gorm.DB
	mail   *mailer.Mailer
	notifs *notifications.Service
}

func NewAvailabilityService(db *gorm.DB, mail *mailer.Mailer, notifs *notifications.Service) *AvailabilityService {
	return &AvailabilityService{db: db, mail: mail, notifs: notifs}
}

// normalizeDay accepts any casing of a weekday name.
func normalizeDay(day string) (string, bool) {
	for _, d := range Weekdays {
		if strings.EqualFold(strings.TrimSpace(day), d) {
			return d, true
		}
	}
	return "", false
}

// Add stores a slot after checking it against the panelist's other slots that day.
func (s *AvailabilityService) Add(ctx context.Context, panelist models.User, day, start, end string) (*models.Availability, error) {
	dayName, ok := normalizeDay(day)
	if !ok {
		return nil, fmt.Errorf("%w: day_of_week must be one of %s", ErrInvalidInput, strings.Join(Weekdays, ", "))
	}
	startT, err := utils.NormalizeTime(start)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrInvalidInput, err)
	}
	endT, err := utils.NormalizeTime(end)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ErrInvalidInput, err)
	}
	if startT >= endT {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidInput)
	}

	slot := models.Availability{PanelistID: panelist.ID, DayOfWeek: dayName, StartTime: startT, EndTime: endT}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// serialize concurrent adds for the same panelist
		var owner models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&owner, panelist.ID).Error; err != nil {
			return err
		}
		var existing []models.Availability
		if err := tx.Where("panelist_id = ? AND day_of_week = ?", panelist.ID, dayName).
			Find(&existing).Error; err != nil {
			return err
		}
		for _, e := range existing {
			if utils.Overlaps(startT, endT, e.StartTime, e.EndTime) {
				return fmt.Errorf("%w: %s-%s", ErrSlotOverlap, hhmm(e.StartTime), hhmm(e.EndTime))
			}
		}
		return tx.Create(&slot).Error
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, panelist, slot)
	return &slot, nil
}

// announce tells every active admin about the new slot.
func (s *AvailabilityService) announce(ctx context.Context, panelist models.User, slot models.Availability) {
	msg := fmt.Sprintf("%s is available on %s from %s to %s.", panelist.FullName(), slot.DayOfWeek, hhmm(slot.StartTime), hhmm(slot.EndTime))
	if s.notifs != nil {
		if err := s.notifs.NotifyAdmins(ctx, notifications.New("Availability added", msg, "info",
			map[string]interface{}{"panelist_id": panelist.ID, "availability_id": slot.ID})); err != nil {
			logrus.WithError(err).Warn("availability notification failed")
		}
	}
	if s.mail == nil {
		return
	}
	var admins []models.User
	if err := s.db.WithContext(ctx).Where("role = ? AND status = ?", models.RoleAdmin, models.UserStatusActive).Find(&admins).Error; err != nil {
		logrus.WithError(err).Warn("load admins for availability email failed")
		return
	}
	for _, a := range admins {
		_ = s.mail.Enqueue(ctx, a.Email, mailer.TemplateAvailabilityAdded, mailer.AvailabilityData{
			AdminName:    a.FullName(),
			PanelistName: panelist.FullName(),
			DayOfWeek:    slot.DayOfWeek,
			StartTime:    hhmm(slot.StartTime),
			EndTime:      hhmm(slot.EndTime),
		})
	}
}

// Delete removes a slot owned by the panelist.
func (s *AvailabilityService) Delete(ctx context.Context, panelistID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND panelist_id = ?", id, panelistID).Delete(&models.Availability{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a panelist's slots ordered Monday to Friday, then by start time.
func (s *AvailabilityService) List(ctx context.Context, panelistID uint) ([]models.Availability, error) {
	var out []models.Availability
	err := s.db.WithContext(ctx).
		Where("panelist_id = ?", panelistID).
		Order("CASE day_of_week WHEN 'Monday' THEN 1 WHEN 'Tuesday' THEN 2 WHEN 'Wednesday' THEN 3 WHEN 'Thursday' THEN 4 WHEN 'Friday' THEN 5 ELSE 6 END").
		Order("start_time").
		Find(&out).Error
	return out, err
}

// AvailableOn lists active panelists with a slot covering [start, end) on the weekday of date.
func (s *AvailabilityService) AvailableOn(ctx context.Context, date, start, end string) ([]models.User, error) {
	d, err := utils.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	startT, err1 := utils.NormalizeTime(start)
	endT, err2 := utils.NormalizeTime(end)
	if err := errors.Join(err1, err2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var out []models.User
	err = s.db.WithContext(ctx).
		Where("role = ? AND status = ?", models.RolePanelist, models.UserStatusActive).
		Where("id IN (?)", s.db.Model(&models.Availability{}).Select("panelist_id").
			Where("day_of_week = ? AND start_time <= ? AND end_time >= ?", d.Weekday().String(), startT, endT)).
		Order("last_name, first_name").
		Find(&out).Error
	return out, err
}
