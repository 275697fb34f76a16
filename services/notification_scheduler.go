package services

import (
	"context"
	"fmt"
	"time"

	"thesisdefense_go/models"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationScheduler sends day-before defense reminders to panelists.
type NotificationScheduler struct {
	db     *gorm.DB
	mail   *mailer.Mailer
	notifs *notifications.Service
}

func NewNotificationScheduler(db *gorm.DB, mail *mailer.Mailer, notifs *notifications.Service) *NotificationScheduler {
	return &NotificationScheduler{db: db, mail: mail, notifs: notifs}
}

// SendDefenseReminders reminds every panelist of defenses held the day after now.
// Each assignment is reminded at most once. It returns the number of reminders sent.
func (ns *NotificationScheduler) SendDefenseReminders(ctx context.Context, now time.Time) (int, error) {
	tomorrow := now.AddDate(0, 0, 1).Format(utils.DateLayout)

	var schedules []models.Schedule
	err := ns.db.WithContext(ctx).
		Preload("Group").
		Preload("Room").
		Preload("Assignments", "reminder_sent_at IS NULL").
		Preload("Assignments.Panelist").
		Where("defense_date = ? AND status IN ?", tomorrow,
			[]string{models.ScheduleStatusPending, models.ScheduleStatusConfirmed}).
		Find(&schedules).Error
	if err != nil {
		return 0, fmt.Errorf("load tomorrow's defenses: %w", err)
	}

	sent := 0
	for _, s := range schedules {
		for _, a := range s.Assignments {
			// claim the assignment first so overlapping runs cannot double-send
			stamp := now
			res := ns.db.WithContext(ctx).Model(&models.Assignment{}).
				Where("id = ? AND reminder_sent_at IS NULL", a.ID).
				Update("reminder_sent_at", &stamp)
			if res.Error != nil {
				logrus.WithError(res.Error).WithField("assignment_id", a.ID).Error("reminder claim failed")
				continue
			}
			if res.RowsAffected == 0 {
				continue
			}

			if ns.notifs != nil {
				msg := fmt.Sprintf("Reminder: you are %s for \"%s\" tomorrow at %s.", a.Role, s.Group.Title, hhmm(s.StartTime))
				if err := ns.notifs.EnqueueOrCreate(ctx, []uint{a.PanelistID}, notifications.New("Defense tomorrow", msg, "warning",
					map[string]interface{}{"schedule_id": s.ID}, "normal", "popup")); err != nil {
					logrus.WithError(err).Warn("reminder notification failed")
				}
			}
			if ns.mail != nil {
				_ = ns.mail.Enqueue(ctx, a.Panelist.Email, mailer.TemplateReminder, DefenseData(s, a))
			}
			sent++
		}
	}
	if sent > 0 {
		logrus.WithFields(logrus.Fields{"date": tomorrow, "reminders": sent}).Info("defense reminders sent")
	}
	return sent, nil
}
