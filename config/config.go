package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string

	// Server
	Port   string
	AppEnv string

	// File Upload
	MaxFileSize       int64
	AllowedExtensions string

	// Logging
	LogLevel string
	LogFile  string

	// Mail
	MailDriver      string // smtp, sendgrid, console
	MailFrom        string
	MailFromName    string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SendGridAPIKey  string
	MailMaxAttempts int

	// LINE
	LineChannelSecret string
	LineChannelToken  string
	LineGroupID       string

	// Scheduling
	MonthlyAssignmentCap int
	ReminderCron         string
	MailDrainCron        string
	AuditRetentionDays   int

	// Seed admin
	AdminEmail    string
	AdminPassword string

	// Feature Toggles
	UseRedisNotifications bool
	SkipMigrate           bool
	SeedOnStart           bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	basePath := getEnv("SSM_BASE_PATH", "/thesisdefense")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	cfg, err := build(getVal)
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg

	validateConfig(AppConfig, useSSM)
}

// Default returns a development configuration without touching the environment.
func Default() *Config {
	cfg, _ := build(func(_, def string) string { return def })
	return cfg
}

func build(getVal func(key, def string) string) (*Config, error) {
	jwtExpires, err := parseDuration(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN format: %w", err)
	}

	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "20971520"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_FILE_SIZE format: %w", err)
	}

	return &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "thesis_defense"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "your_super_secret_jwt_key"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:          getVal("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", "thesisdefense-storage"),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		MaxFileSize:       maxFileSize,
		AllowedExtensions: getVal("ALLOWED_EXTENSIONS", "pdf,doc,docx"),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		MailDriver:      strings.ToLower(getVal("MAIL_DRIVER", "console")),
		MailFrom:        getVal("MAIL_FROM", "no-reply@thesisdefense.local"),
		MailFromName:    getVal("MAIL_FROM_NAME", "Thesis Defense Scheduler"),
		SMTPHost:        getVal("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        getInt(getVal("SMTP_PORT", "587"), 587),
		SMTPUsername:    getVal("SMTP_USERNAME", ""),
		SMTPPassword:    getVal("SMTP_PASSWORD", ""),
		SendGridAPIKey:  getVal("SENDGRID_API_KEY", ""),
		MailMaxAttempts: getInt(getVal("MAIL_MAX_ATTEMPTS", "3"), 3),

		LineChannelSecret: getVal("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:  getVal("LINE_CHANNEL_TOKEN", ""),
		LineGroupID:       getVal("LINE_GROUP_ID", ""),

		MonthlyAssignmentCap: getInt(getVal("MONTHLY_ASSIGNMENT_CAP", "10"), 10),
		ReminderCron:         getVal("REMINDER_CRON", "0 7 * * *"),
		MailDrainCron:        getVal("MAIL_DRAIN_CRON", "@every 1m"),
		AuditRetentionDays:   getInt(getVal("AUDIT_RETENTION_DAYS", "30"), 30),

		AdminEmail:    getVal("ADMIN_EMAIL", "admin@thesisdefense.local"),
		AdminPassword: getVal("ADMIN_PASSWORD", "admin123"),

		UseRedisNotifications: strings.ToLower(getVal("USE_REDIS_NOTIFICATIONS", "false")) == "true",
		SkipMigrate:           strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
		SeedOnStart:           strings.ToLower(getVal("SEED_ON_START", "true")) == "true",
	}, nil
}

// parseDuration accepts Go durations plus the d and w shorthands.
func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if len(s) > 1 {
		if n, err2 := strconv.Atoi(s[:len(s)-1]); err2 == nil {
			switch s[len(s)-1] {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			key := *p.Name
			if idx := strings.LastIndex(key, "/"); idx >= 0 {
				key = key[idx+1:]
			}
			if key == "" {
				continue
			}
			out[strings.ToUpper(key)] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"DB_PASSWORD": c.DBPassword,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
	switch c.MailDriver {
	case "smtp":
		if c.SMTPUsername == "" || c.SMTPPassword == "" {
			log.Fatal("MAIL_DRIVER=smtp requires SMTP_USERNAME and SMTP_PASSWORD")
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			log.Fatal("MAIL_DRIVER=sendgrid requires SENDGRID_API_KEY")
		}
	}
}
