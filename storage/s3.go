package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
)

var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrExtensionRejected = errors.New("file type not allowed")
)

// StorageService stores thesis manuscripts in S3.
type StorageService struct {
	s3Client     s3iface.S3API
	bucket       string
	region       string
	maxSize      int64
	allowedTypes []string
}

// NewStorageService creates a storage service from cfg.
func NewStorageService(cfg *config.Config) (*StorageService, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewWithClient(s3.New(sess), cfg), nil
}

// NewWithClient builds a service over an existing S3 client.
func NewWithClient(client s3iface.S3API, cfg *config.Config) *StorageService {
	var allowed []string
	for _, ext := range strings.Split(cfg.AllowedExtensions, ",") {
		if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
			allowed = append(allowed, ext)
		}
	}
	return &StorageService{
		s3Client:     client,
		bucket:       cfg.S3BucketName,
		region:       cfg.AWSRegion,
		maxSize:      cfg.MaxFileSize,
		allowedTypes: allowed,
	}
}

// UploadManuscript stores a group's document and returns its public URL.
func (s *StorageService) UploadManuscript(file *multipart.FileHeader, groupID uint) (string, error) {
	if s.maxSize > 0 && file.Size > s.maxSize {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxSize)
	}
	ext := getFileExtension(file.Filename)
	if !utils.IsValidFileExtension(file.Filename, s.allowedTypes) {
		return "", fmt.Errorf("%w: .%s", ErrExtensionRejected, ext)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()
	body, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	key := manuscriptKey(groupID, ext, time.Now())
	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(body),
		ContentType:        aws.String(getContentType(ext)),
		ContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", filepath.Base(file.Filename))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return s.publicURL(key), nil
}

// DeleteFile deletes an object previously returned by UploadManuscript.
func (s *StorageService) DeleteFile(fileURL string) error {
	key := extractKeyFromURL(fileURL)
	if key == "" {
		return fmt.Errorf("invalid file URL")
	}
	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *StorageService) publicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func manuscriptKey(groupID uint, ext string, now time.Time) string {
	return fmt.Sprintf("manuscripts/%d/%d/%02d/%s.%s", groupID, now.Year(), now.Month(), uuid.New().String(), ext)
}

func getFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 1 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

func getContentType(extension string) string {
	switch strings.ToLower(extension) {
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// extractKeyFromURL turns https://bucket.s3.region.amazonaws.com/key into key.
func extractKeyFromURL(url string) string {
	parts := strings.Split(url, ".amazonaws.com/")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
