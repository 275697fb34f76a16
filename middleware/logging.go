package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"thesisdefense_go/database"
	"thesisdefense_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditQueueKey is the Redis sorted set holding cached audit log keys.
const AuditQueueKey = "audit:queue"

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		}).Info("HTTP Request")

		return err
	}
}

// auditedKey marks requests whose handler already wrote an audit entry.
const auditedKey = "audited"

// LogActivity records an audit entry for the current user. The entry is cached in
// Redis for batch flushing and falls back to a direct insert.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	var userID uint
	if user, err := GetCurrentUser(c); err == nil {
		userID = user.ID
	}

	meta := map[string]interface{}{
		"request_id": utils.CopyString(c.Get("X-Request-ID", uuid.NewString())),
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     c.Response().StatusCode(),
	}
	if details != nil {
		meta["details"] = details
	}
	detailsJSON, _ := json.Marshal(meta)

	entry := models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    detailsJSON,
		IPAddress:  utils.CopyString(c.IP()),
		UserAgent:  utils.CopyString(c.Get("User-Agent")),
	}
	entry.CreatedAt = time.Now()
	c.Locals(auditedKey, true)

	go func(al models.AuditLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()
		if err := cacheAuditLog(al); err != nil {
			if database.DB == nil {
				return
			}
			if dbErr := database.DB.Create(&al).Error; dbErr != nil {
				logrus.WithError(dbErr).Error("Failed to save audit log to database")
			}
		}
	}(entry)
}

// cacheAuditLog stores an audit log in Redis with 24-hour TTL
func cacheAuditLog(al models.AuditLog) error {
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return fmt.Errorf("redis client is nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(al)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log: %w", err)
	}

	cacheKey := fmt.Sprintf("audit:%d:%s:%d", al.UserID, al.Action, time.Now().UnixNano())
	if err := redisClient.Set(ctx, cacheKey, data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache audit log: %w", err)
	}
	if err := redisClient.ZAdd(ctx, AuditQueueKey, &redis.Z{
		Score:  float64(al.CreatedAt.Unix()),
		Member: cacheKey,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add audit log to processing queue")
	}
	return nil
}

// LogActivityMiddleware automatically logs mutating requests
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || strings.Contains(c.Path(), "/auth/") {
			return c.Next()
		}

		err := c.Next()

		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		case fiber.MethodDelete:
			action = "DELETE"
		default:
			return err
		}

		resource, resourceID := resourceFromPath(c.Path())
		if _, done := c.Locals(auditedKey).(bool); done {
			return err
		}
		if err == nil && c.Response().StatusCode() < 400 {
			LogActivity(c, action, resource, resourceID, nil)
		}
		return err
	}
}

// resourceFromPath turns /api/schedules/12/status into ("schedules", 12).
func resourceFromPath(path string) (string, uint) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && parts[0] == "api" {
		parts = parts[1:]
	}
	var resource string
	var id uint
	for _, p := range parts {
		if n, err := strconv.ParseUint(p, 10, 64); err == nil {
			if id == 0 {
				id = uint(n)
			}
			continue
		}
		if resource == "" {
			resource = p
		}
	}
	return resource, id
}
