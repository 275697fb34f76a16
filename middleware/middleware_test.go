package middleware

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"thesisdefense_go/config"
	"thesisdefense_go/database"
	"thesisdefense_go/database/dbtest"
	"thesisdefense_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()
	config.AppConfig = config.Default()
	database.DB = dbtest.New(t)
	database.RedisClient = nil
}

func createUser(t *testing.T, role, status string) *models.User {
	t.Helper()
	name := role + status
	u := &models.User{
		Username:  &name,
		Password:  "x",
		Email:     name + "@example.com",
		FirstName: "Test",
		LastName:  role,
		Role:      role,
		Status:    status,
	}
	require.NoError(t, database.DB.Create(u).Error)
	return u
}

func TestResourceFromPath(t *testing.T) {
	tests := []struct {
		path     string
		resource string
		id       uint
	}{
		{"/api/schedules/12/status", "schedules", 12},
		{"/api/rooms", "rooms", 0},
		{"/api/panelists/3/approve", "panelists", 3},
		{"/health", "health", 0},
	}
	for _, tc := range tests {
		resource, id := resourceFromPath(tc.path)
		assert.Equal(t, tc.resource, resource, tc.path)
		assert.Equal(t, tc.id, id, tc.path)
	}
}

func TestJWTMiddlewareAndRoles(t *testing.T) {
	setup(t)
	admin := createUser(t, models.RoleAdmin, models.UserStatusActive)
	panelist := createUser(t, models.RolePanelist, models.UserStatusActive)
	inactive := createUser(t, models.RolePanelist, models.UserStatusInactive)

	app := fiber.New()
	app.Get("/admin", JWTMiddleware(), RequireAdmin(), func(c *fiber.Ctx) error {
		u, err := GetCurrentUser(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": u.ID})
	})

	tokenFor := func(u *models.User) string {
		tok, err := GenerateToken(u)
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"bad format", "Token abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"inactive user", "Bearer " + tokenFor(inactive), fiber.StatusUnauthorized},
		{"wrong role", "Bearer " + tokenFor(panelist), fiber.StatusForbidden},
		{"admin", "Bearer " + tokenFor(admin), fiber.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	setup(t)
	u := createUser(t, models.RolePanelist, models.UserStatusActive)
	tok, err := GenerateToken(u)
	require.NoError(t, err)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, models.RolePanelist, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestLogActivityKeepsRequestValues(t *testing.T) {
	setup(t)
	admin := createUser(t, models.RoleAdmin, models.UserStatusActive)

	app := fiber.New()
	app.Post("/api/rooms", func(c *fiber.Ctx) error {
		c.Locals("user", admin)
		LogActivity(c, "CREATE", "rooms", 7, nil)
		return c.SendStatus(fiber.StatusCreated)
	})

	const n = 5
	for i := 0; i < n; i++ {
		req := httptest.NewRequest("POST", "/api/rooms", nil)
		req.Header.Set("User-Agent", fmt.Sprintf("agent-%d", i))
		req.Header.Set("X-Request-ID", fmt.Sprintf("req-%d", i))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	var logs []models.AuditLog
	require.Eventually(t, func() bool {
		logs = nil
		database.DB.Where("resource = ?", "rooms").Find(&logs)
		return len(logs) == n
	}, 2*time.Second, 20*time.Millisecond)

	agents := map[string]bool{}
	for _, l := range logs {
		agents[l.UserAgent] = true
		assert.Equal(t, admin.ID, l.UserID)
		assert.Contains(t, string(l.Details), `"request_id":"req-`)
	}
	for i := 0; i < n; i++ {
		assert.True(t, agents[fmt.Sprintf("agent-%d", i)], "missing agent-%d", i)
	}
}
