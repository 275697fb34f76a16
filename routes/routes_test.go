package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"thesisdefense_go/config"
	"thesisdefense_go/database"
	"thesisdefense_go/database/dbtest"
	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/services/scheduling"
	"thesisdefense_go/services/websocket"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app       *fiber.App
	panelists *services.PanelistService
	admin     models.User
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.Default()
	config.AppConfig = cfg
	db := dbtest.New(t)
	database.DB = db
	database.RedisClient = nil

	mail := mailer.New(db, &mailer.ConsoleSender{}, 3)
	notifs := notifications.NewServiceWith(db, nil, nil)
	panelists := services.NewPanelistService(db, mail, notifs)

	app := fiber.New()
	SetupRoutes(app, Deps{
		Hub:           websocket.NewHub(),
		Schedules:     scheduling.NewService(db, scheduling.DefaultMonthlyCap, nil),
		Panelists:     panelists,
		Availability:  services.NewAvailabilityService(db, mail, notifs),
		Notifications: notifs,
		Archive:       services.NewLogArchiveService(db, nil, nil),
		Health:        services.NewHealthService("", "test", cfg, db, nil, mail),
	})

	hash, err := utils.HashPassword("admin123")
	require.NoError(t, err)
	username := "admin"
	admin := models.User{
		Username:  &username,
		Password:  hash,
		Email:     "admin@example.com",
		FirstName: "Site",
		LastName:  "Admin",
		Role:      models.RoleAdmin,
		Status:    models.UserStatusActive,
	}
	require.NoError(t, db.Create(&admin).Error)

	return &testApp{app: app, panelists: panelists, admin: admin}
}

func (ta *testApp) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := middleware.GenerateToken(u)
	require.NoError(t, err)
	return token
}

func activePanelist(t *testing.T, n int) models.User {
	t.Helper()
	u := models.User{
		Email:     fmt.Sprintf("panel%d@example.com", n),
		Password:  "x",
		FirstName: "Panel",
		LastName:  fmt.Sprintf("Member%d", n),
		Role:      models.RolePanelist,
		Status:    models.UserStatusActive,
	}
	require.NoError(t, database.DB.Create(&u).Error)
	return u
}

func TestRegisterApproveLogin(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"first_name": "Ana",
		"last_name":  "Cruz",
		"email":      "ana@example.com",
		"password":   "secret123",
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = ta.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{"first_name": "Ana"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body["error"])

	status, body = ta.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "ana@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account is awaiting admin approval", body["error"])

	var pending models.User
	require.NoError(t, database.DB.Where("email = ?", "ana@example.com").First(&pending).Error)

	adminToken := tokenFor(t, &ta.admin)
	status, body = ta.do(t, http.MethodPut, fmt.Sprintf("/api/panelists/%d/approve", pending.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = ta.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "anacruz", "password": "secret123"})
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	status, body = ta.do(t, http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusOK, status, body)

	status, body = ta.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "anacruz", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", body["error"])

	status, body = ta.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "nobody", "password": "secret123"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", body["error"])

	require.NoError(t, database.DB.Model(&pending).Update("status", models.UserStatusInactive).Error)
	status, body = ta.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{"username": "anacruz", "password": "secret123"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account is deactivated", body["error"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ta := newTestApp(t)
	p := activePanelist(t, 1)

	status, _ := ta.do(t, http.MethodGet, "/api/schedules", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ta.do(t, http.MethodGet, "/api/schedules", tokenFor(t, &p), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ta.do(t, http.MethodGet, "/api/me/availability", tokenFor(t, &ta.admin), nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestBookingEndpoints(t *testing.T) {
	ta := newTestApp(t)
	token := tokenFor(t, &ta.admin)

	room := models.Room{Name: "CL-1", Status: "available"}
	require.NoError(t, database.DB.Create(&room).Error)
	first := models.ThesisGroup{LeaderName: "Lea Santos", Course: "BSIT", Title: "Smart Irrigation", Status: models.GroupStatusPending}
	second := models.ThesisGroup{LeaderName: "Mark Reyes", Course: "BSCS", Title: "Campus Navigation", Status: models.GroupStatusPending}
	require.NoError(t, database.DB.Create(&first).Error)
	require.NoError(t, database.DB.Create(&second).Error)
	var ps []models.User
	for i := 1; i <= 6; i++ {
		ps = append(ps, activePanelist(t, i))
	}

	proposal := func(groupID uint, date, start, end string, panel ...models.User) fiber.Map {
		roles := []string{models.PanelRoleChair, models.PanelRoleCritic, models.PanelRoleMember}
		slots := []fiber.Map{}
		for i, p := range panel {
			slots = append(slots, fiber.Map{"role": roles[i], "panelist_id": p.ID})
		}
		return fiber.Map{
			"group_id":     groupID,
			"defense_date": date,
			"start_time":   start,
			"end_time":     end,
			"room_id":      room.ID,
			"defense_type": "Final",
			"panel":        slots,
		}
	}

	t.Run("weekend is a conflict", func(t *testing.T) {
		status, body := ta.do(t, http.MethodPost, "/api/schedules", token, proposal(first.ID, "2025-06-07", "09:00", "10:00", ps[0], ps[1], ps[2]))
		require.Equal(t, http.StatusConflict, status, body)
		conflicts, _ := body["conflicts"].([]interface{})
		require.NotEmpty(t, conflicts)
		assert.Equal(t, scheduling.ConflictWeekend, conflicts[0].(map[string]interface{})["code"])
	})

	t.Run("start after end is a validation error", func(t *testing.T) {
		status, body := ta.do(t, http.MethodPost, "/api/schedules", token, proposal(first.ID, "2025-06-09", "11:00", "10:00", ps[0], ps[1], ps[2]))
		assert.Equal(t, http.StatusBadRequest, status, body)
	})

	t.Run("book then reject overlapping room", func(t *testing.T) {
		status, body := ta.do(t, http.MethodPost, "/api/schedules", token, proposal(first.ID, "2025-06-09", "09:00", "10:00", ps[0], ps[1], ps[2]))
		require.Equal(t, http.StatusCreated, status, body)

		status, body = ta.do(t, http.MethodPost, "/api/schedules/check", token, proposal(second.ID, "2025-06-09", "09:30", "10:30", ps[3], ps[4], ps[5]))
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, false, body["ok"])

		status, _ = ta.do(t, http.MethodPost, "/api/schedules", token, proposal(second.ID, "2025-06-09", "09:30", "10:30", ps[3], ps[4], ps[5]))
		assert.Equal(t, http.StatusConflict, status)

		status, body = ta.do(t, http.MethodPost, "/api/schedules", token, proposal(second.ID, "2025-06-09", "10:00", "11:00", ps[3], ps[4], ps[5]))
		require.Equal(t, http.StatusCreated, status, body)
		sched := body["schedule"].(map[string]interface{})
		assert.Len(t, sched["panel"], 3)
	})

	t.Run("rebooking updates in place", func(t *testing.T) {
		status, body := ta.do(t, http.MethodPost, "/api/schedules", token, proposal(first.ID, "2025-06-10", "13:00", "14:00", ps[0], ps[1], ps[2]))
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, true, body["updated"])

		var count int64
		database.DB.Model(&models.Schedule{}).Where("group_id = ?", first.ID).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("panelist sees assignment", func(t *testing.T) {
		status, body := ta.do(t, http.MethodGet, "/api/me/schedules?all=true", tokenFor(t, &ps[3]), nil)
		require.Equal(t, http.StatusOK, status, body)
		list, _ := body["assignments"].([]interface{})
		require.Len(t, list, 1)
		assert.Equal(t, models.PanelRoleChair, list[0].(map[string]interface{})["my_role"])
	})

	t.Run("dashboard counts", func(t *testing.T) {
		status, body := ta.do(t, http.MethodGet, "/api/dashboard", token, nil)
		require.Equal(t, http.StatusOK, status, body)
		groups := body["groups_by_status"].(map[string]interface{})
		assert.EqualValues(t, 2, groups[models.GroupStatusForDefense])
	})
}

func TestAvailabilityEndpoints(t *testing.T) {
	ta := newTestApp(t)
	p := activePanelist(t, 1)
	token := tokenFor(t, &p)

	status, body := ta.do(t, http.MethodPost, "/api/me/availability", token, fiber.Map{"day_of_week": "Monday", "start_time": "09:00", "end_time": "11:00"})
	require.Equal(t, http.StatusCreated, status, body)

	status, _ = ta.do(t, http.MethodPost, "/api/me/availability", token, fiber.Map{"day_of_week": "Monday", "start_time": "10:00", "end_time": "12:00"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = ta.do(t, http.MethodPost, "/api/me/availability", token, fiber.Map{"day_of_week": "Monday", "start_time": "11:00", "end_time": "12:00"})
	assert.Equal(t, http.StatusCreated, status)

	status, _ = ta.do(t, http.MethodPost, "/api/me/availability", token, fiber.Map{"day_of_week": "Saturday", "start_time": "09:00", "end_time": "10:00"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ta.do(t, http.MethodGet, "/api/me/availability", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["availability"], 2)

	var admins int64
	database.DB.Model(&models.Notification{}).Where("user_id = ?", ta.admin.ID).Count(&admins)
	assert.Equal(t, int64(2), admins)
}

func TestRoomEndpoints(t *testing.T) {
	ta := newTestApp(t)
	token := tokenFor(t, &ta.admin)

	status, body := ta.do(t, http.MethodPost, "/api/rooms", token, fiber.Map{"name": "AVR 2", "building": "Main", "capacity": 30})
	require.Equal(t, http.StatusCreated, status, body)
	room := body["room"].(map[string]interface{})
	id := uint(room["id"].(float64))

	status, _ = ta.do(t, http.MethodPost, "/api/rooms", token, fiber.Map{"name": "AVR 2"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = ta.do(t, http.MethodPatch, fmt.Sprintf("/api/rooms/%d/status", id), token, fiber.Map{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPatch, fmt.Sprintf("/api/rooms/%d/status", id), token, fiber.Map{"status": "maintenance"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = ta.do(t, http.MethodDelete, fmt.Sprintf("/api/rooms/%d", id), token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = ta.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d", id), token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthEndpoint(t *testing.T) {
	ta := newTestApp(t)
	status, body := ta.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "test", body["version"])
}

func TestAdviserCannotSitOnOwnGroupPanel(t *testing.T) {
	ta := newTestApp(t)
	token := tokenFor(t, &ta.admin)

	group := models.ThesisGroup{LeaderName: "Lea Santos", Course: "BSIT", Title: "Smart Irrigation", Status: models.GroupStatusPending}
	require.NoError(t, database.DB.Create(&group).Error)
	chair := activePanelist(t, 1)
	other := activePanelist(t, 2)

	status, body := ta.do(t, http.MethodPost, "/api/schedules", token, fiber.Map{
		"group_id":     group.ID,
		"defense_date": "2025-06-09",
		"start_time":   "09:00",
		"end_time":     "10:00",
		"panel":        []fiber.Map{{"role": models.PanelRoleChair, "panelist_id": chair.ID}},
	})
	require.Equal(t, http.StatusCreated, status, body)

	path := fmt.Sprintf("/api/groups/%d/thesis", group.ID)
	status, body = ta.do(t, http.MethodPut, path, token, fiber.Map{"adviser_id": chair.ID})
	require.Equal(t, http.StatusConflict, status, body)
	conflicts, _ := body["conflicts"].([]interface{})
	require.Len(t, conflicts, 1)
	assert.Equal(t, scheduling.ConflictAdviser, conflicts[0].(map[string]interface{})["code"])

	var theses int64
	database.DB.Model(&models.Thesis{}).Where("adviser_id = ?", chair.ID).Count(&theses)
	assert.Zero(t, theses)

	status, body = ta.do(t, http.MethodPut, path, token, fiber.Map{"adviser_id": other.ID})
	assert.Equal(t, http.StatusOK, status, body)
}
