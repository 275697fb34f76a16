package services

import (
	"fmt"
	"strings"

	"thesisdefense_go/models"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// LineMessagingService pushes defense announcements to a LINE group.
type LineMessagingService struct {
	Bot     *linebot.Client
	GroupID string
}

// NewLineMessagingService returns a disabled service when credentials are missing.
func NewLineMessagingService(channelSecret, channelToken, groupID string) *LineMessagingService {
	if channelSecret == "" || channelToken == "" {
		logrus.Info("LINE announcements disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_TOKEN")
		return &LineMessagingService{}
	}

	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		logrus.WithError(err).Error("cannot create LINE bot client; announcements disabled")
		return &LineMessagingService{}
	}
	return &LineMessagingService{Bot: bot, GroupID: groupID}
}

// Enabled reports whether announcements can be sent.
func (s *LineMessagingService) Enabled() bool {
	return s != nil && s.Bot != nil && s.GroupID != ""
}

// SendLineMessageToGroup sends a text message to a group by id.
func (s *LineMessagingService) SendLineMessageToGroup(groupID string, message string) error {
	if s == nil || s.Bot == nil {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	if _, err := s.Bot.PushMessage(groupID, linebot.NewTextMessage(message)).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %w", err)
	}
	return nil
}

// AnnounceDefense posts a schedule summary to the configured group.
func (s *LineMessagingService) AnnounceDefense(sched models.Schedule, headline string) error {
	if !s.Enabled() {
		return nil
	}
	return s.SendLineMessageToGroup(s.GroupID, FormatDefenseAnnouncement(sched, headline))
}

// FormatDefenseAnnouncement renders a plain-text defense summary.
func FormatDefenseAnnouncement(sched models.Schedule, headline string) string {
	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s (%s)\n", sched.Group.Title, sched.DefenseType)
	fmt.Fprintf(&b, "%s %s-%s", sched.DefenseDate, hhmm(sched.StartTime), hhmm(sched.EndTime))
	if sched.Room != nil {
		fmt.Fprintf(&b, " @ %s", sched.Room.Name)
	}
	for _, a := range sched.Assignments {
		fmt.Fprintf(&b, "\n- %s: %s", a.Role, a.Panelist.FullName())
	}
	return b.String()
}

func hhmm(t string) string {
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}
