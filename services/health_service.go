package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/models"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/utils"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	overallStatusOK       = "ok"
	overallStatusDegraded = "degraded"
	overallStatusCritical = "critical"

	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "Thesis Defense Scheduler API"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond

	mailFailedDegradedThreshold = 50
)

// HealthService reports the state of the database, Redis and the mail outbox
// together with the scheduling backlog.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration

	cfg  *config.Config
	db   *gorm.DB
	rdb  *redis.Client
	mail *mailer.Mailer
}

// HealthReport represents the JSON response for health endpoints.
type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Scheduling    *SchedulingBacklog `json:"scheduling,omitempty"`
}

// DependencyStatus captures the health of a single external dependency.
type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SchedulingBacklog counts work waiting on an administrator.
type SchedulingBacklog struct {
	PendingApprovals int64 `json:"pending_approvals"`
	UpcomingDefenses int64 `json:"upcoming_defenses"`
	UnconfirmedToday int64 `json:"unconfirmed_today"`
}

// NewHealthService creates a new HealthService. db, rdb and mail may be nil.
func NewHealthService(serviceName, version string, cfg *config.Config, db *gorm.DB, rdb *redis.Client, mail *mailer.Mailer) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}

	return &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
		cfg:         cfg,
		db:          db,
		rdb:         rdb,
		mail:        mail,
	}
}

// SetStartTime overrides the start time used for uptime calculations.
func (s *HealthService) SetStartTime(t time.Time) {
	if !t.IsZero() {
		s.startTime = t
	}
}

// GetHealthReport collects the current health information.
func (s *HealthService) GetHealthReport(parent context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	report := HealthReport{
		Status:      overallStatusOK,
		Service:     s.serviceName,
		Version:     s.version,
		Environment: s.currentEnvironment(),
		Time:        time.Now().UTC(),
	}

	uptime := time.Since(s.startTime)
	if uptime < 0 {
		uptime = 0
	}
	report.UptimeSeconds = uptime.Seconds()
	report.UptimeHuman = humanizeDuration(uptime)

	var deps []DependencyStatus

	dbDep, dbStatus := s.checkDatabase(ctx)
	deps = append(deps, *dbDep)
	report.Status = combineStatus(report.Status, dbStatus)

	redisDep, redisStatus := s.checkRedis(ctx)
	deps = append(deps, *redisDep)
	report.Status = combineStatus(report.Status, redisStatus)

	mailDep, mailStatus := s.checkMail(ctx)
	deps = append(deps, *mailDep)
	report.Status = combineStatus(report.Status, mailStatus)

	report.Dependencies = deps
	if dbStatus == overallStatusOK {
		report.Scheduling = s.schedulingBacklog(ctx, report.Time)
	}

	return report
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	switch status {
	case overallStatusCritical:
		return 503
	default:
		return 200
	}
}

func (s *HealthService) checkDatabase(ctx context.Context) (*DependencyStatus, string) {
	dep := &DependencyStatus{Name: "mysql"}

	if s.db == nil {
		dep.Status = dependencyStatusDown
		dep.Error = "database connection not initialised"
		return dep, overallStatusCritical
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = fmt.Sprintf("sql DB handle error: %v", err)
		return dep, overallStatusCritical
	}

	pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	start := time.Now()
	err = sqlDB.PingContext(pingCtx)
	cancel()
	dep.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, overallStatusCritical
	}

	dep.Status = dependencyStatusUp
	stats := sqlDB.Stats()
	dep.Details = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	}
	return dep, overallStatusOK
}

// schedulingBacklog returns nil when any count fails; the dependency list
// already carries database errors.
func (s *HealthService) schedulingBacklog(ctx context.Context, now time.Time) *SchedulingBacklog {
	db := s.db.WithContext(ctx)
	today := now.Format(utils.DateLayout)
	var b SchedulingBacklog
	if err := db.Model(&models.User{}).Where("status = ?", models.UserStatusPending).Count(&b.PendingApprovals).Error; err != nil {
		return nil
	}
	if err := db.Model(&models.Schedule{}).
		Where("defense_date >= ? AND status IN ?", today, []string{models.ScheduleStatusPending, models.ScheduleStatusConfirmed}).
		Count(&b.UpcomingDefenses).Error; err != nil {
		return nil
	}
	if err := db.Model(&models.Schedule{}).
		Where("defense_date = ? AND status = ?", today, models.ScheduleStatusPending).
		Count(&b.UnconfirmedToday).Error; err != nil {
		return nil
	}
	return &b
}

func (s *HealthService) checkRedis(ctx context.Context) (*DependencyStatus, string) {
	dep := &DependencyStatus{Name: "redis"}
	overall := overallStatusOK

	client := s.rdb
	useRedis := s.cfg != nil && s.cfg.UseRedisNotifications

	if client == nil {
		if useRedis {
			dep.Status = dependencyStatusDown
			dep.Error = "redis client not initialised"
			overall = overallStatusDegraded
		} else {
			dep.Status = dependencyStatusDisabled
		}
		return dep, overall
	}

	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	start := time.Now()
	res := client.Ping(pingCtx)
	cancel()
	dep.LatencyMs = time.Since(start).Milliseconds()

	if err := res.Err(); err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		if useRedis {
			overall = overallStatusDegraded
		}
		return dep, overall
	}

	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{"address": client.Options().Addr}
	return dep, overall
}

// checkMail reports the configured sender and the outbox backlog. A large
// failed backlog degrades the service but never makes it critical.
func (s *HealthService) checkMail(ctx context.Context) (*DependencyStatus, string) {
	dep := &DependencyStatus{Name: "mail"}
	if s.mail == nil {
		dep.Status = dependencyStatusDisabled
		return dep, overallStatusOK
	}

	start := time.Now()
	stats, err := s.mail.Stats(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, overallStatusDegraded
	}

	dep.Status = dependencyStatusUp
	dep.Details = map[string]interface{}{
		"driver": s.mail.SenderName(),
		"queued": stats["queued"],
		"sent":   stats["sent"],
		"failed": stats["failed"],
	}
	if stats["failed"] > mailFailedDegradedThreshold {
		return dep, overallStatusDegraded
	}
	return dep, overallStatusOK
}

func (s *HealthService) currentEnvironment() string {
	if s.cfg == nil {
		return "unknown"
	}
	env := strings.TrimSpace(s.cfg.AppEnv)
	if env == "" {
		return "unknown"
	}
	return env
}

func combineStatus(current, candidate string) string {
	order := map[string]int{
		overallStatusOK:       0,
		overallStatusDegraded: 1,
		overallStatusCritical: 2,
	}

	if _, ok := order[current]; !ok {
		current = overallStatusOK
	}

	if v, ok := order[candidate]; ok && v > order[current] {
		return candidate
	}
	return current
}

func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d %= 24 * time.Hour
	hours := d / time.Hour
	d %= time.Hour
	minutes := d / time.Minute
	d %= time.Minute
	seconds := d / time.Second

	parts := []string{}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}

	return strings.Join(parts, " ")
}
