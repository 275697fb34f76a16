package controllers

import (
	"time"

	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
)

type PanelistController struct {
	panelists *services.PanelistService
}

func NewPanelistController(panelists *services.PanelistService) *PanelistController {
	return &PanelistController{panelists: panelists}
}

type UpdateProfileRequest struct {
	FirstName  *string `json:"first_name" validate:"omitempty,max=100"`
	LastName   *string `json:"last_name" validate:"omitempty,max=100"`
	Department *string `json:"department" validate:"omitempty,max=150"`
	Expertise  *string `json:"expertise"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

func profiles(users []models.User) []utils.PanelistProfile {
	out := make([]utils.PanelistProfile, 0, len(users))
	for _, u := range users {
		out = append(out, utils.ToPanelistProfile(u))
	}
	return out
}

// GetPanelists lists panelists, filtered by status and a search term
func (pc *PanelistController) GetPanelists(c *fiber.Ctx) error {
	status := c.Query("status")
	if status != "" && !utils.IsValidStatus(status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}
	users, err := pc.panelists.List(c.UserContext(), status, c.Query("search"))
	if err != nil {
		return serviceError(c, err, "Failed to fetch panelists")
	}
	return c.JSON(fiber.Map{"panelists": profiles(users), "total": len(users)})
}

// GetPendingPanelists lists registrations awaiting approval
func (pc *PanelistController) GetPendingPanelists(c *fiber.Ctx) error {
	users, err := pc.panelists.List(c.UserContext(), models.UserStatusPending, "")
	if err != nil {
		return serviceError(c, err, "Failed to fetch pending registrations")
	}
	return c.JSON(fiber.Map{"panelists": profiles(users), "total": len(users)})
}

// GetPanelist returns one panelist
func (pc *PanelistController) GetPanelist(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	u, err := pc.panelists.Get(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "Failed to fetch panelist")
	}
	return c.JSON(fiber.Map{"panelist": utils.ToPanelistProfile(*u)})
}

// ApprovePanelist activates a pending registration and assigns a username
func (pc *PanelistController) ApprovePanelist(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	u, err := pc.panelists.Approve(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "Failed to approve panelist")
	}
	middleware.LogActivity(c, "APPROVE", "panelists", u.ID, fiber.Map{"username": *u.Username})
	return c.JSON(fiber.Map{
		"message": "Panelist approved",
		"account": utils.ToAccount(*u),
	})
}

// RejectPanelist deletes a pending registration
func (pc *PanelistController) RejectPanelist(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	if err := pc.panelists.Reject(c.UserContext(), id); err != nil {
		return serviceError(c, err, "Failed to reject panelist")
	}
	middleware.LogActivity(c, "REJECT", "panelists", id, nil)
	return c.JSON(fiber.Map{"message": "Registration rejected"})
}

// SetPanelistStatus activates or deactivates an approved panelist
func (pc *PanelistController) SetPanelistStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var req SetStatusRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	u, err := pc.panelists.SetActive(c.UserContext(), id, req.Status == models.UserStatusActive)
	if err != nil {
		return serviceError(c, err, "Failed to update panelist status")
	}
	middleware.LogActivity(c, "UPDATE_STATUS", "panelists", id, fiber.Map{"status": u.Status})
	return c.JSON(fiber.Map{"panelist": utils.ToPanelistProfile(*u)})
}

// UpdateMyProfile edits the authenticated panelist's profile
func (pc *PanelistController) UpdateMyProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	var req UpdateProfileRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	u, err := pc.panelists.UpdateProfile(c.UserContext(), user.ID, services.ProfileInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Department: req.Department,
		Expertise:  req.Expertise,
	})
	if err != nil {
		return serviceError(c, err, "Failed to update profile")
	}
	middleware.LogActivity(c, "UPDATE_PROFILE", "panelists", u.ID, nil)
	return c.JSON(fiber.Map{"panelist": utils.ToPanelistProfile(*u)})
}

// GetWorkload returns per-panelist assignment counts for the month of ?date (default today)
func (pc *PanelistController) GetWorkload(c *fiber.Ctx) error {
	day := c.Query("date", time.Now().Format(utils.DateLayout))
	rows, err := pc.panelists.Workload(c.UserContext(), day)
	if err != nil {
		return serviceError(c, err, "Failed to compute workload")
	}
	return c.JSON(fiber.Map{"date": day, "workload": rows})
}
