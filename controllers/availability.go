package controllers

import (
	"thesisdefense_go/middleware"
	"thesisdefense_go/services"

	"github.com/gofiber/fiber/v2"
)

type AvailabilityController struct {
	availability *services.AvailabilityService
}

func NewAvailabilityController(availability *services.AvailabilityService) *AvailabilityController {
	return &AvailabilityController{availability: availability}
}

type AvailabilityRequest struct {
	DayOfWeek string `json:"day_of_week" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// GetMyAvailability lists the panelist's weekly slots
func (ac *AvailabilityController) GetMyAvailability(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	slots, err := ac.availability.List(c.UserContext(), user.ID)
	if err != nil {
		return serviceError(c, err, "Failed to fetch availability")
	}
	return c.JSON(fiber.Map{"availability": slots, "days": services.Weekdays})
}

// AddAvailability declares a new weekly slot
func (ac *AvailabilityController) AddAvailability(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	var req AvailabilityRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	slot, err := ac.availability.Add(c.UserContext(), *user, req.DayOfWeek, req.StartTime, req.EndTime)
	if err != nil {
		return serviceError(c, err, "Failed to add availability")
	}
	middleware.LogActivity(c, "CREATE", "availability", slot.ID, fiber.Map{
		"day_of_week": slot.DayOfWeek,
		"start_time":  slot.StartTime,
		"end_time":    slot.EndTime,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Availability added", "availability": slot})
}

// DeleteAvailability removes one of the panelist's slots
func (ac *AvailabilityController) DeleteAvailability(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	if err := ac.availability.Delete(c.UserContext(), user.ID, id); err != nil {
		return serviceError(c, err, "Failed to delete availability")
	}
	middleware.LogActivity(c, "DELETE", "availability", id, nil)
	return c.JSON(fiber.Map{"message": "Availability deleted"})
}

// GetPanelistAvailability lets admins view any panelist's slots
func (ac *AvailabilityController) GetPanelistAvailability(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	slots, err := ac.availability.List(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "Failed to fetch availability")
	}
	return c.JSON(fiber.Map{"panelist_id": id, "availability": slots})
}

// GetAvailablePanelists finds panelists free for ?date&start&end
func (ac *AvailabilityController) GetAvailablePanelists(c *fiber.Ctx) error {
	users, err := ac.availability.AvailableOn(c.UserContext(), c.Query("date"), c.Query("start"), c.Query("end"))
	if err != nil {
		return serviceError(c, err, "Failed to find available panelists")
	}
	return c.JSON(fiber.Map{"panelists": profiles(users), "total": len(users)})
}
