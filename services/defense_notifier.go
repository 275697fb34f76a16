package services

import (
	"context"
	"fmt"

	"thesisdefense_go/models"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/services/scheduling"

	"github.com/sirupsen/logrus"
)

// DefenseNotifier fans booking and status events out to in-app notifications,
// email and the LINE group. Every failure is logged and swallowed.
type DefenseNotifier struct {
	notifs *notifications.Service
	mail   *mailer.Mailer
	line   *LineMessagingService
}

var _ scheduling.Hooks = (*DefenseNotifier)(nil)

func NewDefenseNotifier(notifs *notifications.Service, mail *mailer.Mailer, line *LineMessagingService) *DefenseNotifier {
	return &DefenseNotifier{notifs: notifs, mail: mail, line: line}
}

// DefenseData builds the email template payload for one assignment.
func DefenseData(s models.Schedule, a models.Assignment) mailer.DefenseData {
	d := mailer.DefenseData{
		PanelistName: a.Panelist.FullName(),
		Role:         a.Role,
		GroupTitle:   s.Group.Title,
		LeaderName:   s.Group.LeaderName,
		Date:         s.DefenseDate,
		StartTime:    hhmm(s.StartTime),
		EndTime:      hhmm(s.EndTime),
		DefenseType:  s.DefenseType,
	}
	if s.Room != nil {
		d.Room = s.Room.Name
	}
	return d
}

func (n *DefenseNotifier) Booked(ctx context.Context, b scheduling.Booking) {
	s := b.Schedule
	previous := make(map[uint]bool, len(b.PreviousPanel))
	for _, id := range b.PreviousPanel {
		previous[id] = true
	}
	link := map[string]interface{}{"schedule_id": s.ID, "group_id": s.GroupID}

	for _, a := range s.Assignments {
		template := mailer.TemplateAssignment
		title := "New panel assignment"
		msg := fmt.Sprintf("You are %s for \"%s\" on %s at %s.", a.Role, s.Group.Title, s.DefenseDate, hhmm(s.StartTime))
		if b.Updated && previous[a.PanelistID] {
			template = mailer.TemplateScheduleChange
			title = "Defense schedule updated"
			msg = fmt.Sprintf("\"%s\" is now on %s at %s. Your role: %s.", s.Group.Title, s.DefenseDate, hhmm(s.StartTime), a.Role)
		}
		n.notify(ctx, a.PanelistID, notifications.New(title, msg, "info", link, "normal", "popup"))
		n.email(ctx, a.Panelist.Email, template, DefenseData(s, a))
	}

	// panelists dropped from an updated panel
	if b.Updated {
		current := make(map[uint]bool, len(s.Assignments))
		for _, a := range s.Assignments {
			current[a.PanelistID] = true
		}
		for _, id := range b.PreviousPanel {
			if current[id] {
				continue
			}
			n.notify(ctx, id, notifications.New("Panel assignment removed",
				fmt.Sprintf("You are no longer on the panel for \"%s\".", s.Group.Title), "warning", link))
		}
	}

	headline := "Defense scheduled"
	if b.Updated {
		headline = "Defense rescheduled"
	}
	if err := n.line.AnnounceDefense(s, headline); err != nil {
		logrus.WithError(err).WithField("schedule_id", s.ID).Warn("LINE announcement failed")
	}
}

func (n *DefenseNotifier) StatusChanged(ctx context.Context, s models.Schedule, previous string) {
	link := map[string]interface{}{"schedule_id": s.ID, "group_id": s.GroupID}
	for _, a := range s.Assignments {
		switch s.Status {
		case models.ScheduleStatusCancelled:
			n.notify(ctx, a.PanelistID, notifications.New("Defense cancelled",
				fmt.Sprintf("The defense of \"%s\" on %s has been cancelled.", s.Group.Title, s.DefenseDate), "warning", link, "normal", "popup"))
			n.email(ctx, a.Panelist.Email, mailer.TemplateCancellation, DefenseData(s, a))
		case models.ScheduleStatusConfirmed:
			n.notify(ctx, a.PanelistID, notifications.New("Defense confirmed",
				fmt.Sprintf("The defense of \"%s\" on %s at %s is confirmed.", s.Group.Title, s.DefenseDate, hhmm(s.StartTime)), "success", link))
		}
	}
	if s.Status == models.ScheduleStatusCancelled {
		if err := n.line.AnnounceDefense(s, "Defense cancelled"); err != nil {
			logrus.WithError(err).WithField("schedule_id", s.ID).Warn("LINE announcement failed")
		}
	}
	logrus.WithFields(logrus.Fields{"schedule_id": s.ID, "from": previous, "to": s.Status}).Info("schedule status changed")
}

func (n *DefenseNotifier) notify(ctx context.Context, userID uint, p notifications.Payload) {
	if n.notifs == nil {
		return
	}
	if err := n.notifs.EnqueueOrCreate(ctx, []uint{userID}, p); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("notification failed")
	}
}

func (n *DefenseNotifier) email(ctx context.Context, to, template string, data interface{}) {
	if n.mail == nil || to == "" {
		return
	}
	// Enqueue logs its own failures
	_ = n.mail.Enqueue(ctx, to, template, data)
}
