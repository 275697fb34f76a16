package routes

import (
	"thesisdefense_go/controllers"
	"thesisdefense_go/middleware"
	"thesisdefense_go/services"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/services/scheduling"
	"thesisdefense_go/services/websocket"

	"github.com/gofiber/fiber/v2"
)

// Deps carries the services the controllers are built from.
type Deps struct {
	Hub           *websocket.Hub
	Schedules     *scheduling.Service
	Panelists     *services.PanelistService
	Availability  *services.AvailabilityService
	Notifications *notifications.Service
	Archive       *services.LogArchiveService
	Health        *services.HealthService
	// Manuscripts is nil when document storage is not configured.
	Manuscripts controllers.ManuscriptStore
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, d Deps) {
	// Initialize controllers
	authController := controllers.NewAuthController(d.Panelists)
	panelistController := controllers.NewPanelistController(d.Panelists)
	availabilityController := controllers.NewAvailabilityController(d.Availability)
	groupController := controllers.NewGroupController(d.Manuscripts)
	roomController := &controllers.RoomController{}
	scheduleController := controllers.NewScheduleController(d.Schedules)
	notificationController := controllers.NewNotificationController(d.Notifications)
	logController := controllers.NewLogController(d.Archive)
	dashboardController := controllers.NewDashboardController(d.Panelists)
	healthController := controllers.NewHealthController(d.Health)
	wsController := controllers.NewWebSocketController(d.Hub)

	app.Get("/health", healthController.GetHealthStatus)

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Post("/register", authController.Register)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware(), middleware.LogActivityMiddleware())

	protected.Post("/auth/logout", authController.Logout)
	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)

	// Notifications (any authenticated user)
	notifs := protected.Group("/notifications")
	notifs.Get("/", notificationController.GetNotifications)
	notifs.Get("/unread-count", notificationController.GetUnreadCount)
	notifs.Put("/mark-all-read", notificationController.MarkAllAsRead)
	notifs.Put("/:id/read", notificationController.MarkAsRead)
	notifs.Delete("/:id", notificationController.DeleteNotification)

	// Panelist self-service
	me := protected.Group("/me", middleware.RequirePanelist())
	me.Put("/profile", panelistController.UpdateMyProfile)
	me.Get("/schedules", scheduleController.GetMySchedules)
	me.Get("/availability", availabilityController.GetMyAvailability)
	me.Post("/availability", availabilityController.AddAvailability)
	me.Delete("/availability/:id", availabilityController.DeleteAvailability)

	// Admin routes
	admin := middleware.RequireAdmin()

	protected.Get("/dashboard", admin, dashboardController.GetStats)

	panelists := protected.Group("/panelists", admin)
	panelists.Get("/", panelistController.GetPanelists)
	panelists.Get("/pending", panelistController.GetPendingPanelists)
	panelists.Get("/workload", panelistController.GetWorkload)
	panelists.Get("/available", availabilityController.GetAvailablePanelists)
	panelists.Get("/:id", panelistController.GetPanelist)
	panelists.Get("/:id/availability", availabilityController.GetPanelistAvailability)
	panelists.Put("/:id/approve", panelistController.ApprovePanelist)
	panelists.Put("/:id/status", panelistController.SetPanelistStatus)
	panelists.Delete("/:id", panelistController.RejectPanelist)

	groups := protected.Group("/groups", admin)
	groups.Get("/", groupController.GetGroups)
	groups.Post("/", groupController.CreateGroup)
	groups.Get("/:id", groupController.GetGroup)
	groups.Put("/:id", groupController.UpdateGroup)
	groups.Delete("/:id", groupController.DeleteGroup)
	groups.Put("/:id/thesis", groupController.UpsertThesis)
	groups.Post("/:id/manuscript", groupController.UploadManuscript)

	rooms := protected.Group("/rooms", admin)
	rooms.Get("/", roomController.GetRooms)
	rooms.Post("/", roomController.CreateRoom)
	rooms.Get("/:id", roomController.GetRoom)
	rooms.Put("/:id", roomController.UpdateRoom)
	rooms.Patch("/:id/status", roomController.UpdateRoomStatus)
	rooms.Delete("/:id", roomController.DeleteRoom)

	schedules := protected.Group("/schedules", admin)
	schedules.Get("/", scheduleController.GetSchedules)
	schedules.Get("/export", scheduleController.ExportSchedules)
	schedules.Post("/check", scheduleController.CheckSchedule)
	schedules.Post("/", scheduleController.BookSchedule)
	schedules.Get("/:id", scheduleController.GetSchedule)
	schedules.Patch("/:id/status", scheduleController.UpdateScheduleStatus)
	schedules.Delete("/:id", scheduleController.DeleteSchedule)

	logs := protected.Group("/logs", admin)
	logs.Get("/", logController.GetLogs)
	logs.Get("/stats", logController.GetLogStats)
	logs.Get("/export", logController.ExportLogs)
	logs.Post("/flush-cache", logController.FlushLogs)
	logs.Get("/archives", logController.GetArchives)
	logs.Get("/archives/:id/download", logController.DownloadArchive)
	logs.Get("/:id", logController.GetLog)

	protected.Get("/ws/stats", admin, wsController.GetWebSocketStats)

	// WebSocket endpoint authenticates with ?token=
	app.Use("/ws", wsController.Upgrade)
	app.Get("/ws", wsController.WebSocketHandler())
}
