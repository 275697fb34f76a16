package controllers

import (
	"fmt"
	"strings"
	"time"

	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services/scheduling"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	schedules *scheduling.Service
}

func NewScheduleController(schedules *scheduling.Service) *ScheduleController {
	return &ScheduleController{schedules: schedules}
}

type ScheduleStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Confirmed Done Cancelled"`
}

func scheduleDTOs(list []models.Schedule) []utils.ScheduleDTO {
	out := make([]utils.ScheduleDTO, 0, len(list))
	for _, s := range list {
		out = append(out, utils.ToScheduleDTO(s))
	}
	return out
}

func scheduleFilter(c *fiber.Ctx) scheduling.Filter {
	page, limit := pagination(c, 50)
	return scheduling.Filter{
		From:    c.Query("from"),
		To:      c.Query("to"),
		Status:  c.Query("status"),
		RoomID:  uint(c.QueryInt("room_id")),
		GroupID: uint(c.QueryInt("group_id")),
		Page:    page,
		Limit:   limit,
	}
}

// GetSchedules lists defense schedules
func (sc *ScheduleController) GetSchedules(c *fiber.Ctx) error {
	f := scheduleFilter(c)
	list, total, err := sc.schedules.List(c.UserContext(), f)
	if err != nil {
		return serviceError(c, err, "Failed to fetch schedules")
	}
	return c.JSON(fiber.Map{
		"schedules": scheduleDTOs(list),
		"pagination": fiber.Map{
			"page":  f.Page,
			"limit": f.Limit,
			"total": total,
		},
	})
}

// GetSchedule returns one schedule with its panel
func (sc *ScheduleController) GetSchedule(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	s, err := sc.schedules.Get(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err, "Failed to fetch schedule")
	}
	return c.JSON(fiber.Map{"schedule": utils.ToScheduleDTO(*s)})
}

// CheckSchedule runs the conflict checker without booking
func (sc *ScheduleController) CheckSchedule(c *fiber.Ctx) error {
	var p scheduling.Proposal
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	conflicts, err := sc.schedules.Check(c.UserContext(), p)
	if err != nil {
		return serviceError(c, err, "Failed to check schedule")
	}
	if conflicts == nil {
		conflicts = []scheduling.Conflict{}
	}
	return c.JSON(fiber.Map{"ok": len(conflicts) == 0, "conflicts": conflicts})
}

// BookSchedule creates or replaces the group's defense schedule
func (sc *ScheduleController) BookSchedule(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	var p scheduling.Proposal
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	b, err := sc.schedules.Book(c.UserContext(), p, user.ID)
	if err != nil {
		return serviceError(c, err, "Failed to book schedule")
	}

	action := "CREATE"
	status := fiber.StatusCreated
	msg := "Defense scheduled"
	if b.Updated {
		action, status, msg = "UPDATE", fiber.StatusOK, "Defense schedule updated"
	}
	middleware.LogActivity(c, action, "schedules", b.Schedule.ID, fiber.Map{
		"group_id":     b.Schedule.GroupID,
		"defense_date": b.Schedule.DefenseDate,
		"panel_size":   len(b.Schedule.Assignments),
	})
	return c.Status(status).JSON(fiber.Map{
		"message":  msg,
		"updated":  b.Updated,
		"schedule": utils.ToScheduleDTO(b.Schedule),
	})
}

// UpdateScheduleStatus moves a schedule through its lifecycle
func (sc *ScheduleController) UpdateScheduleStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var req ScheduleStatusRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	s, err := sc.schedules.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return serviceError(c, err, "Failed to update schedule status")
	}
	middleware.LogActivity(c, "UPDATE_STATUS", "schedules", id, fiber.Map{"status": s.Status})
	return c.JSON(fiber.Map{"message": "Schedule status updated", "schedule": utils.ToScheduleDTO(*s)})
}

// DeleteSchedule removes a schedule and its assignments
func (sc *ScheduleController) DeleteSchedule(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	if err := sc.schedules.Delete(c.UserContext(), id); err != nil {
		return serviceError(c, err, "Failed to delete schedule")
	}
	middleware.LogActivity(c, "DELETE", "schedules", id, nil)
	return c.JSON(fiber.Map{"message": "Schedule deleted successfully"})
}

// ExportSchedules downloads the filtered schedules as an xlsx workbook
func (sc *ScheduleController) ExportSchedules(c *fiber.Ctx) error {
	f := scheduleFilter(c)
	f.Limit = 0
	list, _, err := sc.schedules.List(c.UserContext(), f)
	if err != nil {
		return serviceError(c, err, "Failed to export schedules")
	}

	header := []string{"Date", "Start", "End", "Room", "Group", "Leader", "Type", "Status", "Chair", "Critic", "Members"}
	rows := make([][]interface{}, 0, len(list))
	for _, s := range list {
		dto := utils.ToScheduleDTO(s)
		var chair, critic string
		var members []string
		for _, p := range dto.Panel {
			switch p.Role {
			case models.PanelRoleChair:
				chair = p.Name
			case models.PanelRoleCritic:
				critic = p.Name
			default:
				members = append(members, p.Name)
			}
		}
		rows = append(rows, []interface{}{
			dto.DefenseDate, dto.StartTime, dto.EndTime, dto.RoomName, dto.GroupTitle, dto.LeaderName,
			dto.DefenseType, dto.Status, chair, critic, strings.Join(members, ", "),
		})
	}

	middleware.LogActivity(c, "EXPORT", "schedules", 0, fiber.Map{"rows": len(rows)})
	name := fmt.Sprintf("defense_schedules_%s.xlsx", time.Now().Format("20060102"))
	return sendXLSX(c, name, "Schedules", header, rows)
}

// GetMySchedules lists the authenticated panelist's upcoming assignments
func (sc *ScheduleController) GetMySchedules(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return serviceError(c, err, "")
	}
	from := c.Query("from")
	if from == "" && c.Query("all") != "true" {
		from = time.Now().Format(utils.DateLayout)
	}
	list, err := sc.schedules.PanelistSchedules(c.UserContext(), user.ID, from)
	if err != nil {
		return serviceError(c, err, "Failed to fetch assignments")
	}

	type assignment struct {
		utils.ScheduleDTO
		MyRole string `json:"my_role"`
	}
	out := make([]assignment, 0, len(list))
	for _, s := range list {
		a := assignment{ScheduleDTO: utils.ToScheduleDTO(s)}
		for _, p := range s.Assignments {
			if p.PanelistID == user.ID {
				a.MyRole = p.Role
			}
		}
		out = append(out, a)
	}
	return c.JSON(fiber.Map{"assignments": out, "total": len(out)})
}
