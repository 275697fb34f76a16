package controllers

import (
	"time"

	"thesisdefense_go/database"
	"thesisdefense_go/models"
	"thesisdefense_go/services"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
)

type DashboardController struct {
	panelists *services.PanelistService
}

func NewDashboardController(panelists *services.PanelistService) *DashboardController {
	return &DashboardController{panelists: panelists}
}

type statusCount struct {
	Status string
	Count  int64
}

func countByStatus(model interface{}) (map[string]int64, error) {
	var rows []statusCount
	if err := database.DB.Model(model).Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// GetStats returns the admin dashboard summary
func (dc *DashboardController) GetStats(c *fiber.Ctx) error {
	schedules, err := countByStatus(&models.Schedule{})
	if err != nil {
		return serviceError(c, err, "Failed to load dashboard")
	}
	groups, err := countByStatus(&models.ThesisGroup{})
	if err != nil {
		return serviceError(c, err, "Failed to load dashboard")
	}

	var pending, panelists, rooms int64
	database.DB.Model(&models.User{}).Where("role = ? AND status = ?", models.RolePanelist, models.UserStatusPending).Count(&pending)
	database.DB.Model(&models.User{}).Where("role = ? AND status = ?", models.RolePanelist, models.UserStatusActive).Count(&panelists)
	database.DB.Model(&models.Room{}).Count(&rooms)

	today := time.Now().Format(utils.DateLayout)
	workload, err := dc.panelists.Workload(c.UserContext(), today)
	if err != nil {
		return serviceError(c, err, "Failed to load dashboard")
	}

	var upcoming []models.Schedule
	if err := database.DB.Preload("Group").Preload("Room").Preload("Assignments.Panelist").
		Where("defense_date >= ? AND status IN ?", today, []string{models.ScheduleStatusPending, models.ScheduleStatusConfirmed}).
		Order("defense_date, start_time").Limit(5).Find(&upcoming).Error; err != nil {
		return serviceError(c, err, "Failed to load dashboard")
	}
	next := make([]utils.ScheduleDTO, 0, len(upcoming))
	for _, s := range upcoming {
		next = append(next, utils.ToScheduleDTO(s))
	}

	return c.JSON(fiber.Map{
		"schedules_by_status": schedules,
		"groups_by_status":    groups,
		"pending_panelists":   pending,
		"active_panelists":    panelists,
		"rooms":               rooms,
		"monthly_workload":    workload,
		"upcoming_defenses":   next,
	})
}
