package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"thesisdefense_go/middleware"
	"thesisdefense_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MinArchiveAgeDays guards against archiving recent audit history.
const MinArchiveAgeDays = 7

// ArchiveStore is the object store holding audit archives.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3ArchiveStore writes archives to a bucket through aws-sdk-go-v2.
type S3ArchiveStore struct {
	client *s3.Client
	bucket string
}

// NewS3ArchiveStore loads the default AWS credential chain for region.
func NewS3ArchiveStore(ctx context.Context, region, bucket string) (*S3ArchiveStore, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3ArchiveStore{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *S3ArchiveStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3ArchiveStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// LogArchiveService flushes cached audit logs and archives old ones.
type LogArchiveService struct {
	db    *gorm.DB
	rdb   *redis.Client
	store ArchiveStore
}

// ArchivedLog is the exported row stored inside archives.
type ArchivedLog struct {
	ID         uint            `json:"id"`
	UserID     uint            `json:"user_id"`
	Username   string          `json:"username,omitempty"`
	UserRole   string          `json:"user_role,omitempty"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID uint            `json:"resource_id"`
	Details    json.RawMessage `json:"details,omitempty"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewLogArchiveService builds the service. rdb and store may be nil.
func NewLogArchiveService(db *gorm.DB, rdb *redis.Client, store ArchiveStore) *LogArchiveService {
	return &LogArchiveService{db: db, rdb: rdb, store: store}
}

// FlushCachedLogsToDatabase moves every queued audit log from Redis into audit_logs.
func (las *LogArchiveService) FlushCachedLogsToDatabase(ctx context.Context) error {
	if las.rdb == nil {
		return nil
	}

	keys, err := las.rdb.ZRangeByScore(ctx, middleware.AuditQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("read audit queue: %w", err)
	}

	processed, failed := 0, 0
	for _, key := range keys {
		raw, err := las.rdb.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// expired before flush
				las.rdb.ZRem(ctx, middleware.AuditQueueKey, key)
			} else {
				failed++
			}
			continue
		}

		var entry models.AuditLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Error("Corrupt cached audit log")
			las.rdb.ZRem(ctx, middleware.AuditQueueKey, key)
			failed++
			continue
		}
		entry.ID = 0
		if err := las.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error; err != nil {
			logrus.WithError(err).Error("Failed to persist cached audit log")
			failed++
			continue
		}

		pipe := las.rdb.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, middleware.AuditQueueKey, key)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to drop flushed audit log from cache")
		}
		processed++
	}

	if processed > 0 || failed > 0 {
		logrus.WithFields(logrus.Fields{"flushed": processed, "errors": failed}).Info("Audit cache flushed")
	}
	return nil
}

// ArchiveOldLogs zips audit logs older than daysOld, uploads them and deletes the rows.
func (las *LogArchiveService) ArchiveOldLogs(ctx context.Context, daysOld int) error {
	if daysOld < MinArchiveAgeDays {
		return fmt.Errorf("minimum archive age is %d days", MinArchiveAgeDays)
	}
	if las.store == nil {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -daysOld)

	var rows []ArchivedLog
	var lastID uint
	const batchSize = 1000
	for {
		var batch []models.AuditLog
		err := las.db.WithContext(ctx).
			Preload("User").
			Where("created_at < ? AND id > ?", cutoff, lastID).
			Order("id ASC").
			Limit(batchSize).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("fetch audit logs: %w", err)
		}
		for _, l := range batch {
			rows = append(rows, toArchivedLog(l))
			lastID = l.ID
		}
		if len(batch) < batchSize {
			break
		}
	}
	if len(rows) == 0 {
		return nil
	}

	fileName := fmt.Sprintf("audit_logs_%s.zip", cutoff.Format("2006-01-02"))
	archive := models.AuditArchive{
		FileName:    fileName,
		S3Key:       fmt.Sprintf("logs/archived/%d/%02d/%s", cutoff.Year(), cutoff.Month(), fileName),
		EndDate:     cutoff,
		RecordCount: len(rows),
		Status:      "pending",
	}

	buf, err := buildArchiveZip(rows, fileName)
	if err != nil {
		return err
	}
	archive.FileSize = int64(buf.Len())

	if err := las.store.Put(ctx, archive.S3Key, buf.Bytes(), "application/zip"); err != nil {
		archive.Status = "failed"
		archive.Error = err.Error()
		las.db.WithContext(ctx).Create(&archive)
		return fmt.Errorf("upload audit archive: %w", err)
	}

	return las.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ? AND id <= ?", cutoff, lastID).Delete(&models.AuditLog{}).Error; err != nil {
			return fmt.Errorf("delete archived audit logs: %w", err)
		}
		archive.Status = "completed"
		if err := tx.Create(&archive).Error; err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"records": len(rows), "key": archive.S3Key}).Info("Audit logs archived")
		return nil
	})
}

func toArchivedLog(l models.AuditLog) ArchivedLog {
	out := ArchivedLog{
		ID:         l.ID,
		UserID:     l.UserID,
		Action:     l.Action,
		Resource:   l.Resource,
		ResourceID: l.ResourceID,
		IPAddress:  l.IPAddress,
		UserAgent:  l.UserAgent,
		CreatedAt:  l.CreatedAt,
	}
	if !l.Details.IsNull() && json.Valid(l.Details) {
		out.Details = json.RawMessage(l.Details)
	}
	if l.User.ID > 0 {
		if l.User.Username != nil {
			out.Username = *l.User.Username
		}
		out.UserRole = l.User.Role
	}
	return out
}

// buildArchiveZip writes logs as JSON and CSV plus a metadata file.
func buildArchiveZip(logs []ArchivedLog, fileName string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jf, err := zw.Create("audit_logs.json")
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(jf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"export_date":    time.Now().UTC(),
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, fmt.Errorf("encode audit logs: %w", err)
	}

	mf, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(mf).Encode(map[string]any{
		"file_name":    fileName,
		"created_at":   time.Now().UTC(),
		"record_count": len(logs),
		"date_range": map[string]any{
			"start": logs[0].CreatedAt,
			"end":   logs[len(logs)-1].CreatedAt,
		},
		"description": "Thesis defense scheduler audit log archive",
	}); err != nil {
		return nil, err
	}

	cf, err := zw.Create("audit_logs.csv")
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(cf)
	_ = w.Write([]string{"ID", "User ID", "Username", "Role", "Action", "Resource", "Resource ID", "IP Address", "User Agent", "Created At", "Details"})
	for _, l := range logs {
		_ = w.Write([]string{
			strconv.FormatUint(uint64(l.ID), 10),
			strconv.FormatUint(uint64(l.UserID), 10),
			l.Username,
			l.UserRole,
			l.Action,
			l.Resource,
			strconv.FormatUint(uint64(l.ResourceID), 10),
			l.IPAddress,
			l.UserAgent,
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			string(l.Details),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf, nil
}

// GetArchivedLogs lists archive records, newest first.
func (las *LogArchiveService) GetArchivedLogs(ctx context.Context) ([]models.AuditArchive, error) {
	var archives []models.AuditArchive
	if err := las.db.WithContext(ctx).Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("list audit archives: %w", err)
	}
	return archives, nil
}

// DownloadArchivedLogs opens the stored zip of one archive.
func (las *LogArchiveService) DownloadArchivedLogs(ctx context.Context, archiveID uint) (io.ReadCloser, string, error) {
	var archive models.AuditArchive
	if err := las.db.WithContext(ctx).First(&archive, archiveID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	if las.store == nil {
		return nil, "", errors.New("archive storage not configured")
	}
	rc, err := las.store.Get(ctx, archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("download audit archive: %w", err)
	}
	return rc, archive.FileName, nil
}
