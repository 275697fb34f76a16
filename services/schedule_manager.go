package services

import (
	"context"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/services/mailer"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduleManager owns the background cron jobs.
type ScheduleManager struct {
	cron      *cron.Cron
	reminders *NotificationScheduler
	mail      *mailer.Mailer
	archive   *LogArchiveService
	cfg       *config.Config
}

func NewScheduleManager(cfg *config.Config, reminders *NotificationScheduler, mail *mailer.Mailer, archive *LogArchiveService) *ScheduleManager {
	return &ScheduleManager{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		reminders: reminders,
		mail:      mail,
		archive:   archive,
		cfg:       cfg,
	}
}

// Start registers every job and starts the cron runner.
func (sm *ScheduleManager) Start() error {
	jobs := []struct {
		name     string
		schedule string
		timeout  time.Duration
		run      func(ctx context.Context)
	}{
		{"defense_reminders", sm.cfg.ReminderCron, 5 * time.Minute, func(ctx context.Context) {
			if _, err := sm.reminders.SendDefenseReminders(ctx, time.Now()); err != nil {
				logrus.WithError(err).Error("defense reminder job failed")
			}
		}},
		{"email_outbox", sm.cfg.MailDrainCron, time.Minute, func(ctx context.Context) {
			sm.mail.Drain(ctx)
		}},
		{"audit_flush", "@hourly", 5 * time.Minute, func(ctx context.Context) {
			if err := sm.archive.FlushCachedLogsToDatabase(ctx); err != nil {
				logrus.WithError(err).Warn("audit flush failed")
			}
		}},
		{"audit_archive", "30 2 * * *", 30 * time.Minute, func(ctx context.Context) {
			if err := sm.archive.ArchiveOldLogs(ctx, sm.cfg.AuditRetentionDays); err != nil {
				logrus.WithError(err).Error("audit archive failed")
			}
		}},
	}

	for _, j := range jobs {
		j := j
		if _, err := sm.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
			defer cancel()
			j.run(ctx)
		}); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"job": j.name, "schedule": j.schedule}).Info("cron job registered")
	}
	sm.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (sm *ScheduleManager) Stop() {
	<-sm.cron.Stop().Done()
}
