package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/database"
	"thesisdefense_go/database/seeders"
	"thesisdefense_go/middleware"
	"thesisdefense_go/routes"
	"thesisdefense_go/services"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/services/scheduling"
	"thesisdefense_go/services/websocket"
	"thesisdefense_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	// Initialize logging
	setupLogging(cfg)

	// Connect to database
	database.Connect()
	defer database.Close()

	if cfg.SeedOnStart {
		if err := seeders.SeedAll(database.DB, cfg); err != nil {
			logrus.WithError(err).Fatal("Seeding failed")
		}
	}

	stop := make(chan struct{})

	// Create WebSocket hub first so notifications can push to it
	wsHub := websocket.NewHub()
	go wsHub.Run(stop)

	notifications.SetDefaultWSHub(wsHub)
	notifService := notifications.NewService()
	notifService.StartWorker(stop)

	mail := mailer.New(database.DB, mailer.NewSender(cfg), cfg.MailMaxAttempts)
	mail.Start(stop)

	line := services.NewLineMessagingService(cfg.LineChannelSecret, cfg.LineChannelToken, cfg.LineGroupID)
	notifier := services.NewDefenseNotifier(notifService, mail, line)
	scheduleService := scheduling.NewService(database.DB, cfg.MonthlyAssignmentCap, notifier)

	panelists := services.NewPanelistService(database.DB, mail, notifService)
	availability := services.NewAvailabilityService(database.DB, mail, notifService)

	var manuscripts *storage.StorageService
	if cfg.AWSAccessKeyID != "" {
		s, err := storage.NewStorageService(cfg)
		if err != nil {
			logrus.WithError(err).Warn("Manuscript storage disabled")
		} else {
			manuscripts = s
		}
	}

	var archiveStore services.ArchiveStore
	if cfg.AWSAccessKeyID != "" {
		s, err := services.NewS3ArchiveStore(context.Background(), cfg.AWSRegion, cfg.S3BucketName)
		if err != nil {
			logrus.WithError(err).Warn("Audit archive storage disabled")
		} else {
			archiveStore = s
		}
	}
	archive := services.NewLogArchiveService(database.DB, database.RedisClient, archiveStore)

	reminders := services.NewNotificationScheduler(database.DB, mail, notifService)
	scheduleManager := services.NewScheduleManager(cfg, reminders, mail, archive)
	if err := scheduleManager.Start(); err != nil {
		logrus.WithError(err).Fatal("Failed to start scheduled jobs")
	}

	health := services.NewHealthService("", version, cfg, database.DB, database.RedisClient, mail)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.LoggerMiddleware())

	deps := routes.Deps{
		Hub:           wsHub,
		Schedules:     scheduleService,
		Panelists:     panelists,
		Availability:  availability,
		Notifications: notifService,
		Archive:       archive,
		Health:        health,
	}
	if manuscripts != nil {
		deps.Manuscripts = manuscripts
	}
	routes.SetupRoutes(app, deps)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.AppEnv,
			"version":     version,
		}).Info("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	scheduleManager.Stop()
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := archive.FlushCachedLogsToDatabase(ctx); err != nil {
		logrus.WithError(err).Warn("Final audit flush failed")
	}
	mail.Drain(ctx)
}

// setupLogging configures the logging system
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.AppEnv == "development" || cfg.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		logrus.WithError(err).Warn("Could not create logs directory")
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
