package controllers

import (
	"context"
	"errors"

	"thesisdefense_go/database"
	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

var errTokenRevoked = errors.New("token revoked")

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// authenticate resolves an active user from a query-string token.
func (wsc *WebSocketController) authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := middleware.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if middleware.IsRevoked(ctx, claims) {
		return nil, errTokenRevoked
	}
	var user models.User
	if err := database.DB.WithContext(ctx).Where("id = ? AND status = ?", claims.UserID, models.UserStatusActive).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (wsc *WebSocketController) Upgrade(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT",
		})
	}
	return c.Next()
}

// WebSocketHandler validates the token and attaches the connection to the hub.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("websocket handler panic: %v", r)
			}
		}()

		token := c.Query("token")
		if token == "" {
			_ = c.WriteMessage(fiberws.CloseMessage, []byte("Missing token"))
			_ = c.Close()
			return
		}

		user, err := wsc.authenticate(context.Background(), token)
		if err != nil {
			logrus.WithError(err).Warn("websocket connection rejected")
			_ = c.WriteMessage(fiberws.CloseMessage, []byte("Invalid token"))
			_ = c.Close()
			return
		}

		logrus.WithField("user_id", user.ID).Info("websocket connected")
		wsc.hub.ServeFiberWS(c, user.ID)
	})
}

// GetWebSocketStats returns connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
