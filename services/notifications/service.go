// Package notifications stores in-app notifications, optionally through a Redis
// queue, and pushes them to connected WebSocket clients.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/database"
	"thesisdefense_go/models"
	"thesisdefense_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Payload is the queued form of a notification fanned out to many users.
type Payload struct {
	UserIDs   []uint    `json:"user_ids"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Channels  []string  `json:"channels,omitempty"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

var ErrNotFound = errors.New("notification not found")

// WSHub interface for WebSocket broadcasting
type WSHub interface {
	BroadcastToUser(userID uint, message interface{})
}

// defaultHub lets services built in schedulers and controllers share the app hub.
var defaultHub WSHub

// SetDefaultWSHub sets the hub used by new Service instances.
func SetDefaultWSHub(h WSHub) {
	defaultHub = h
}

type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
}

// NewService wires the service to the global database and Redis client.
func NewService() *Service {
	rdb := database.GetRedisClient()
	return &Service{
		db:       database.GetDB(),
		redis:    rdb,
		useRedis: config.AppConfig != nil && config.AppConfig.UseRedisNotifications && rdb != nil,
		wsHub:    defaultHub,
	}
}

// NewServiceWith builds a service over explicit dependencies. rdb may be nil.
func NewServiceWith(db *gorm.DB, rdb *redis.Client, hub WSHub) *Service {
	return &Service{db: db, redis: rdb, useRedis: rdb != nil, wsHub: hub}
}

// normalizeChannels keeps only allowed values and ensures default channel
func normalizeChannels(in []string) []string {
	allowed := map[string]struct{}{"normal": {}, "popup": {}, "email": {}}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, ch := range in {
		if _, ok := allowed[ch]; !ok {
			continue
		}
		if _, dup := seen[ch]; !dup {
			out = append(out, ch)
			seen[ch] = struct{}{}
		}
	}
	if len(out) == 0 {
		out = []string{"normal"}
	}
	return out
}

// New builds a payload with optional structured data for deep links.
func New(title, message, typ string, data any, channels ...string) Payload {
	return Payload{Title: title, Message: message, Type: typ, Data: data, Channels: normalizeChannels(channels)}
}

// EnqueueOrCreate stores notifications using the Redis queue when enabled, else inserts directly.
func (s *Service) EnqueueOrCreate(ctx context.Context, userIDs []uint, n Payload) error {
	if len(userIDs) == 0 {
		return errors.New("no user ids")
	}
	n.UserIDs = userIDs
	n.CreatedAt = time.Now().UTC()

	if s.useRedis {
		b, err := json.Marshal(n)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("notification queue push failed, inserting directly")
	}
	return s.createDirect(ctx, n)
}

// NotifyAdmins sends n to every active admin.
func (s *Service) NotifyAdmins(ctx context.Context, n Payload) error {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND status = ?", models.RoleAdmin, models.UserStatusActive).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.EnqueueOrCreate(ctx, ids, n)
}

func (s *Service) createDirect(ctx context.Context, n Payload) error {
	if len(n.UserIDs) == 0 {
		return nil
	}
	// MySQL forbids JSON column defaults, so channels are always set
	channelsJSON, err := json.Marshal(normalizeChannels(n.Channels))
	if err != nil {
		channelsJSON = []byte(`["normal"]`)
	}
	var dataJSON []byte
	if n.Data != nil {
		if b, err := json.Marshal(n.Data); err == nil {
			dataJSON = b
		}
	}

	notifs := make([]models.Notification, 0, len(n.UserIDs))
	for _, uid := range n.UserIDs {
		notifs = append(notifs, models.Notification{
			UserID:   uid,
			Title:    n.Title,
			Message:  n.Message,
			Type:     n.Type,
			Channels: channelsJSON,
			Data:     dataJSON,
		})
	}
	if err := s.db.WithContext(ctx).Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub != nil {
		for _, notif := range notifs {
			s.wsHub.BroadcastToUser(notif.UserID, map[string]interface{}{
				"type": "notification",
				"data": utils.ToNotificationDTO(notif),
			})
		}
	}
	return nil
}

// StartWorker polls the Redis queue and flushes it to the database until stop closes.
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		logrus.Info("Redis notifications disabled; worker not started")
		return
	}
	go func() {
		logrus.Info("notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				logrus.Info("notification worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

// flushBatch drains up to five sub-batches from the queue.
func (s *Service) flushBatch(ctx context.Context, batchSize int) int {
	if s.redis == nil {
		return 0
	}
	flushed := 0
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return flushed
		}
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("notification queue trim failed")
		}
		for _, raw := range vals {
			var q Payload
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				continue
			}
			if err := s.createDirect(ctx, q); err != nil {
				logrus.WithError(err).Error("notification insert failed")
				continue
			}
			flushed++
		}
		if len(vals) < batchSize {
			return flushed
		}
	}
	return flushed
}

// ListFilter narrows List results.
type ListFilter struct {
	UnreadOnly bool
	Page       int
	Limit      int
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uint, f ListFilter) ([]models.Notification, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if f.UnreadOnly {
		q = q.Where("`read` = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page < 1 {
		f.Page = 1
	}
	var out []models.Notification
	err := q.Order("created_at DESC, id DESC").Offset((f.Page - 1) * f.Limit).Limit(f.Limit).Find(&out).Error
	return out, total, err
}

// UnreadCount counts unread notifications for a user.
func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).Count(&n).Error
	return n, err
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"read": true, "read_at": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).
		Updates(map[string]interface{}{"read": true, "read_at": &now})
	return res.RowsAffected, res.Error
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
