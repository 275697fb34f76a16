// Package mailer renders notification emails and delivers them through an
// outbox table drained in the background.
package mailer

import (
	"context"
	"sync"
	"time"

	"thesisdefense_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const drainBatch = 50

// Mailer queues emails in email_logs and drains them through a Sender.
type Mailer struct {
	db          *gorm.DB
	sender      Sender
	maxAttempts int

	drainMu sync.Mutex
	kick    chan struct{}
}

func New(db *gorm.DB, sender Sender, maxAttempts int) *Mailer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Mailer{
		db:          db,
		sender:      sender,
		maxAttempts: maxAttempts,
		kick:        make(chan struct{}, 1),
	}
}

// SenderName reports the active delivery driver.
func (m *Mailer) SenderName() string {
	return m.sender.Name()
}

// Enqueue renders a template and stores it for delivery. Errors are logged and
// returned but callers treat email as best effort.
func (m *Mailer) Enqueue(ctx context.Context, to, template string, data interface{}) error {
	subject, body, err := Render(template, data)
	if err != nil {
		logrus.WithError(err).WithField("template", template).Error("email render failed")
		return err
	}
	row := models.EmailLog{
		Recipient: to,
		Subject:   subject,
		Body:      body,
		Template:  template,
		Status:    models.EmailStatusQueued,
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		logrus.WithError(err).WithField("to", to).Error("email enqueue failed")
		return err
	}
	select {
	case m.kick <- struct{}{}:
	default:
	}
	return nil
}

// Drain sends queued messages and retries failed ones below the attempt limit.
// It returns how many messages were sent.
func (m *Mailer) Drain(ctx context.Context) int {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()

	var pending []models.EmailLog
	err := m.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND attempts < ?)", models.EmailStatusQueued, models.EmailStatusFailed, m.maxAttempts).
		Order("id").
		Limit(drainBatch).
		Find(&pending).Error
	if err != nil {
		logrus.WithError(err).Error("email outbox query failed")
		return 0
	}

	sent := 0
	for _, row := range pending {
		err := m.sender.Send(ctx, Message{To: row.Recipient, Subject: row.Subject, HTML: row.Body})
		updates := map[string]interface{}{"attempts": row.Attempts + 1}
		if err != nil {
			updates["status"] = models.EmailStatusFailed
			updates["last_error"] = err.Error()
			logrus.WithError(err).WithFields(logrus.Fields{
				"email_id": row.ID,
				"to":       row.Recipient,
				"attempt":  row.Attempts + 1,
			}).Warn("email delivery failed")
		} else {
			now := time.Now()
			updates["status"] = models.EmailStatusSent
			updates["sent_at"] = &now
			updates["last_error"] = ""
			sent++
		}
		if err := m.db.WithContext(ctx).Model(&models.EmailLog{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			logrus.WithError(err).WithField("email_id", row.ID).Error("email status update failed")
		}
	}
	return sent
}

// Start drains whenever something is enqueued until stop closes.
func (m *Mailer) Start(stop <-chan struct{}) {
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-m.kick:
				m.Drain(context.Background())
			}
		}
	}()
}

// Stats counts outbox rows per status.
func (m *Mailer) Stats(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := m.db.WithContext(ctx).Model(&models.EmailLog{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
