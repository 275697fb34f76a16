package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"thesisdefense_go/database"
	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LogController struct {
	archive *services.LogArchiveService
}

func NewLogController(archive *services.LogArchiveService) *LogController {
	return &LogController{archive: archive}
}

// LogResponse represents a log entry response
type LogResponse struct {
	ID         uint                   `json:"id"`
	UserID     uint                   `json:"user_id"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID uint                   `json:"resource_id"`
	Details    map[string]interface{} `json:"details"`
	IPAddress  string                 `json:"ip_address"`
	UserAgent  string                 `json:"user_agent"`
	CreatedAt  time.Time              `json:"created_at"`
	User       *UserBasicInfo         `json:"user,omitempty"`
}

type UserBasicInfo struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LogsStatsResponse struct {
	Total             int64                 `json:"total"`
	TotalToday        int64                 `json:"total_today"`
	TotalThisWeek     int64                 `json:"total_this_week"`
	TotalThisMonth    int64                 `json:"total_this_month"`
	ActionBreakdown   map[string]int64      `json:"action_breakdown"`
	ResourceBreakdown map[string]int64      `json:"resource_breakdown"`
	TopUsers          []UserActivitySummary `json:"top_users"`
}

type UserActivitySummary struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Count    int64  `json:"count"`
}

func toLogResponse(l models.AuditLog) LogResponse {
	out := LogResponse{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if !l.Details.IsNull() {
		var details map[string]interface{}
		if err := json.Unmarshal(l.Details, &details); err == nil {
			out.Details = details
		}
	}
	if l.User.ID > 0 {
		info := &UserBasicInfo{ID: l.User.ID, Role: l.User.Role}
		if l.User.Username != nil {
			info.Username = *l.User.Username
		}
		out.User = info
	}
	return out
}

// logQuery applies the shared list and export filters.
func logQuery(c *fiber.Ctx) *gorm.DB {
	query := database.DB.Model(&models.AuditLog{}).Preload("User")
	if userID := c.QueryInt("user_id"); userID > 0 {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", startDate, time.Local); err == nil {
			query = query.Where("created_at >= ?", parsed)
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", endDate, time.Local); err == nil {
			query = query.Where("created_at < ?", parsed.Add(24*time.Hour))
		}
	}
	return query
}

// GetLogs retrieves paginated audit logs with filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	page, limit := pagination(c, 50)
	query := logQuery(c)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return serviceError(c, err, "Failed to retrieve logs count")
	}
	var rows []models.AuditLog
	if err := query.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&rows).Error; err != nil {
		return serviceError(c, err, "Failed to retrieve logs")
	}

	logs := make([]LogResponse, 0, len(rows))
	for _, l := range rows {
		logs = append(logs, toLogResponse(l))
	}
	return c.JSON(fiber.Map{
		"logs":        logs,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": (total + int64(limit) - 1) / int64(limit),
	})
}

// GetLog retrieves a single log entry by ID
func (lc *LogController) GetLog(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var l models.AuditLog
	if err := database.DB.Preload("User").First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Log not found"})
		}
		return serviceError(c, err, "Failed to retrieve log")
	}
	return c.JSON(fiber.Map{"log": toLogResponse(l)})
}

// GetLogStats summarizes audit activity
func (lc *LogController) GetLogStats(c *fiber.Ctx) error {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thisWeek := today.AddDate(0, 0, -int(today.Weekday()))
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := LogsStatsResponse{
		ActionBreakdown:   make(map[string]int64),
		ResourceBreakdown: make(map[string]int64),
		TopUsers:          []UserActivitySummary{},
	}

	database.DB.Model(&models.AuditLog{}).Count(&stats.Total)
	database.DB.Model(&models.AuditLog{}).Where("created_at >= ?", today).Count(&stats.TotalToday)
	database.DB.Model(&models.AuditLog{}).Where("created_at >= ?", thisWeek).Count(&stats.TotalThisWeek)
	database.DB.Model(&models.AuditLog{}).Where("created_at >= ?", thisMonth).Count(&stats.TotalThisMonth)

	var actionStats []struct {
		Action string
		Count  int64
	}
	database.DB.Model(&models.AuditLog{}).Select("action, COUNT(*) as count").Group("action").Scan(&actionStats)
	for _, s := range actionStats {
		stats.ActionBreakdown[s.Action] = s.Count
	}

	var resourceStats []struct {
		Resource string
		Count    int64
	}
	database.DB.Model(&models.AuditLog{}).Select("resource, COUNT(*) as count").Group("resource").Scan(&resourceStats)
	for _, s := range resourceStats {
		stats.ResourceBreakdown[s.Resource] = s.Count
	}

	var top []struct {
		UserID   uint
		Username *string
		Role     string
		Count    int64
	}
	database.DB.Model(&models.AuditLog{}).
		Select("audit_logs.user_id, users.username, users.role, COUNT(*) as count").
		Joins("LEFT JOIN users ON audit_logs.user_id = users.id").
		Where("audit_logs.created_at >= ?", thisWeek).
		Group("audit_logs.user_id, users.username, users.role").
		Order("count DESC").
		Limit(10).
		Scan(&top)
	for _, t := range top {
		s := UserActivitySummary{UserID: t.UserID, Role: t.Role, Count: t.Count}
		if t.Username != nil {
			s.Username = *t.Username
		}
		stats.TopUsers = append(stats.TopUsers, s)
	}

	return c.JSON(stats)
}

// ExportLogs downloads filtered audit logs as xlsx
func (lc *LogController) ExportLogs(c *fiber.Ctx) error {
	var rows []models.AuditLog
	if err := logQuery(c).Order("created_at DESC").Limit(10000).Find(&rows).Error; err != nil {
		return serviceError(c, err, "Failed to export logs")
	}

	header := []string{"ID", "Time", "User", "Role", "Action", "Resource", "Resource ID", "IP Address", "Details"}
	out := make([][]interface{}, 0, len(rows))
	for _, l := range rows {
		r := toLogResponse(l)
		username, role := "", ""
		if r.User != nil {
			username, role = r.User.Username, r.User.Role
		}
		out = append(out, []interface{}{
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), username, role,
			r.Action, r.Resource, r.ResourceID, r.IPAddress, string(l.Details),
		})
	}
	return sendXLSX(c, fmt.Sprintf("audit_logs_%s.xlsx", time.Now().Format("20060102")), "Audit Logs", header, out)
}

// FlushLogs moves cached audit entries into the database now
func (lc *LogController) FlushLogs(c *fiber.Ctx) error {
	if err := lc.archive.FlushCachedLogsToDatabase(c.UserContext()); err != nil {
		return serviceError(c, err, "Failed to flush logs")
	}
	return c.JSON(fiber.Map{"message": "Cached logs flushed"})
}

// GetArchives lists S3 archives of old audit logs
func (lc *LogController) GetArchives(c *fiber.Ctx) error {
	archives, err := lc.archive.GetArchivedLogs(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to list archives")
	}
	return c.JSON(fiber.Map{"archives": archives})
}

// DownloadArchive streams an archive zip
func (lc *LogController) DownloadArchive(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	rc, name, err := lc.archive.DownloadArchivedLogs(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "Failed to download archive")
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return serviceError(c, err, "Failed to download archive")
	}
	middleware.LogActivity(c, "DOWNLOAD", "audit_archives", id, nil)
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Send(body)
}
