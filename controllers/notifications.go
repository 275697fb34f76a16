package controllers

import (
	"errors"

	"thesisdefense_go/middleware"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
)

type NotificationController struct {
	notifs *notifications.Service
}

func NewNotificationController(notifs *notifications.Service) *NotificationController {
	return &NotificationController{notifs: notifs}
}

// GetNotifications returns the caller's notifications, newest first
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	page, limit := pagination(c, 20)
	f := notifications.ListFilter{Page: page, Limit: limit, UnreadOnly: c.Query("unread") == "true"}

	list, total, err := nc.notifs.List(c.UserContext(), user.ID, f)
	if err != nil {
		return serviceError(c, err, "Failed to fetch notifications")
	}
	out := make([]utils.NotificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, utils.ToNotificationDTO(n))
	}
	return c.JSON(fiber.Map{
		"notifications": out,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetUnreadCount returns the caller's unread count
func (nc *NotificationController) GetUnreadCount(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	n, err := nc.notifs.UnreadCount(c.UserContext(), user.ID)
	if err != nil {
		return serviceError(c, err, "Failed to count notifications")
	}
	return c.JSON(fiber.Map{"unread_count": n})
}

// MarkAsRead marks one notification read
func (nc *NotificationController) MarkAsRead(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	if err := nc.notifs.MarkRead(c.UserContext(), user.ID, id); err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found"})
		}
		return serviceError(c, err, "Failed to mark notification")
	}
	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead marks every notification of the caller read
func (nc *NotificationController) MarkAllAsRead(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	n, err := nc.notifs.MarkAllRead(c.UserContext(), user.ID)
	if err != nil {
		return serviceError(c, err, "Failed to mark notifications")
	}
	return c.JSON(fiber.Map{"message": "All notifications marked as read", "updated": n})
}

// DeleteNotification removes one of the caller's notifications
func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	if err := nc.notifs.Delete(c.UserContext(), user.ID, id); err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Notification not found"})
		}
		return serviceError(c, err, "Failed to delete notification")
	}
	return c.JSON(fiber.Map{"message": "Notification deleted"})
}
