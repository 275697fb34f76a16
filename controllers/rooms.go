package controllers

import (
	"errors"

	"thesisdefense_go/database"
	"thesisdefense_go/middleware"
	"thesisdefense_go/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RoomController struct{}

type RoomRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Building string `json:"building" validate:"max=150"`
	Capacity int    `json:"capacity" validate:"min=0"`
	Status   string `json:"status" validate:"omitempty,oneof=available maintenance"`
}

type RoomStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=available maintenance"`
}

// GetRooms returns all rooms with pagination
func (rc *RoomController) GetRooms(c *fiber.Ctx) error {
	page, limit := pagination(c, 50)
	query := database.DB.Model(&models.Room{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if minCapacity := c.QueryInt("min_capacity"); minCapacity > 0 {
		query = query.Where("capacity >= ?", minCapacity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return serviceError(c, err, "Failed to fetch rooms")
	}
	var rooms []models.Room
	if err := query.Order("name").Offset((page - 1) * limit).Limit(limit).Find(&rooms).Error; err != nil {
		return serviceError(c, err, "Failed to fetch rooms")
	}

	return c.JSON(fiber.Map{
		"rooms": rooms,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetRoom returns a specific room by ID
func (rc *RoomController) GetRoom(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var room models.Room
	if err := database.DB.First(&room, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Room not found"})
	}
	return c.JSON(fiber.Map{"room": room})
}

func roomNameTaken(name string, exceptID uint) bool {
	var count int64
	database.DB.Model(&models.Room{}).Where("name = ? AND id <> ?", name, exceptID).Count(&count)
	return count > 0
}

// CreateRoom creates a new room
func (rc *RoomController) CreateRoom(c *fiber.Ctx) error {
	var req RoomRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	if roomNameTaken(req.Name, 0) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Room name already exists"})
	}

	room := models.Room{Name: req.Name, Building: req.Building, Capacity: req.Capacity, Status: req.Status}
	if room.Status == "" {
		room.Status = "available"
	}
	if err := database.DB.Create(&room).Error; err != nil {
		return serviceError(c, err, "Failed to create room")
	}

	middleware.LogActivity(c, "CREATE", "rooms", room.ID, fiber.Map{"name": room.Name})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Room created successfully", "room": room})
}

// UpdateRoom edits a room
func (rc *RoomController) UpdateRoom(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var req RoomRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	var room models.Room
	if err := database.DB.First(&room, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Room not found"})
	}
	if roomNameTaken(req.Name, id) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Room name already exists"})
	}

	room.Name = req.Name
	room.Building = req.Building
	room.Capacity = req.Capacity
	if req.Status != "" {
		room.Status = req.Status
	}
	if err := database.DB.Save(&room).Error; err != nil {
		return serviceError(c, err, "Failed to update room")
	}

	middleware.LogActivity(c, "UPDATE", "rooms", room.ID, fiber.Map{"name": room.Name, "status": room.Status})
	return c.JSON(fiber.Map{"message": "Room updated successfully", "room": room})
}

// UpdateRoomStatus marks a room available or under maintenance
func (rc *RoomController) UpdateRoomStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var req RoomStatusRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	res := database.DB.Model(&models.Room{}).Where("id = ?", id).Update("status", req.Status)
	if res.Error != nil {
		return serviceError(c, res.Error, "Failed to update room status")
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Room not found"})
	}
	middleware.LogActivity(c, "UPDATE_STATUS", "rooms", id, fiber.Map{"status": req.Status})
	return c.JSON(fiber.Map{"message": "Room status updated", "status": req.Status})
}

// DeleteRoom removes a room that no active schedule uses
func (rc *RoomController) DeleteRoom(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}

	var room models.Room
	if err := database.DB.First(&room, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Room not found"})
		}
		return serviceError(c, err, "Failed to delete room")
	}

	var active int64
	database.DB.Model(&models.Schedule{}).
		Where("room_id = ? AND status IN ?", id, []string{models.ScheduleStatusPending, models.ScheduleStatusConfirmed}).
		Count(&active)
	if active > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Room has active defense schedules"})
	}

	if err := database.DB.Delete(&room).Error; err != nil {
		return serviceError(c, err, "Failed to delete room")
	}
	middleware.LogActivity(c, "DELETE", "rooms", id, fiber.Map{"name": room.Name})
	return c.JSON(fiber.Map{"message": "Room deleted successfully"})
}
