package controllers

import (
	"errors"
	"mime/multipart"
	"strings"

	"thesisdefense_go/database"
	"thesisdefense_go/middleware"
	"thesisdefense_go/models"
	"thesisdefense_go/services/scheduling"
	"thesisdefense_go/storage"
	"thesisdefense_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ManuscriptStore keeps uploaded thesis documents.
type ManuscriptStore interface {
	UploadManuscript(file *multipart.FileHeader, groupID uint) (string, error)
	DeleteFile(fileURL string) error
}

type GroupController struct {
	store ManuscriptStore
}

// NewGroupController builds the controller. store may be nil when S3 is not configured.
func NewGroupController(store ManuscriptStore) *GroupController {
	return &GroupController{store: store}
}

type GroupRequest struct {
	LeaderName string `json:"leader_name" validate:"required,max=200"`
	Members    string `json:"members"`
	Course     string `json:"course" validate:"required,max=150"`
	Title      string `json:"title" validate:"required,max=500"`
	Status     string `json:"status" validate:"omitempty,oneof=Pending 'For Defense' Defended Completed"`
}

type ThesisRequest struct {
	Title     string `json:"title" validate:"max=500"`
	Abstract  string `json:"abstract"`
	AdviserID *uint  `json:"adviser_id"`
}

// CreateGroup creates a thesis group
func (gc *GroupController) CreateGroup(c *fiber.Ctx) error {
	var req GroupRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	group := models.ThesisGroup{
		LeaderName: utils.SanitizeString(req.LeaderName),
		Members:    strings.TrimSpace(req.Members),
		Course:     utils.SanitizeString(req.Course),
		Title:      utils.SanitizeString(req.Title),
		Status:     models.GroupStatusPending,
	}
	if err := database.DB.Create(&group).Error; err != nil {
		return serviceError(c, err, "Failed to create group")
	}

	middleware.LogActivity(c, "CREATE", "groups", group.ID, fiber.Map{"title": group.Title})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Group created successfully",
		"group":   group,
	})
}

// GetGroups returns groups with pagination, filtered by status and a search term
func (gc *GroupController) GetGroups(c *fiber.Ctx) error {
	page, limit := pagination(c, 20)
	query := database.DB.Model(&models.ThesisGroup{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if course := c.Query("course"); course != "" {
		query = query.Where("course = ?", course)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(leader_name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return serviceError(c, err, "Failed to fetch groups")
	}
	var groups []models.ThesisGroup
	if err := query.Preload("Thesis.Adviser").Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&groups).Error; err != nil {
		return serviceError(c, err, "Failed to fetch groups")
	}

	return c.JSON(fiber.Map{
		"groups": groups,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetGroup returns a group with its thesis and active schedule
func (gc *GroupController) GetGroup(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var group models.ThesisGroup
	if err := database.DB.Preload("Thesis.Adviser").First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
		}
		return serviceError(c, err, "Failed to fetch group")
	}

	resp := fiber.Map{"group": group}
	var sched models.Schedule
	err = database.DB.Preload("Group").Preload("Room").Preload("Assignments.Panelist").
		Where("group_id = ? AND status <> ?", id, models.ScheduleStatusCancelled).
		Order("id DESC").First(&sched).Error
	if err == nil {
		resp["schedule"] = utils.ToScheduleDTO(sched)
	}
	return c.JSON(resp)
}

// UpdateGroup edits a group
func (gc *GroupController) UpdateGroup(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var req GroupRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	var group models.ThesisGroup
	if err := database.DB.First(&group, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
	}
	updates := map[string]interface{}{
		"leader_name": utils.SanitizeString(req.LeaderName),
		"members":     strings.TrimSpace(req.Members),
		"course":      utils.SanitizeString(req.Course),
		"title":       utils.SanitizeString(req.Title),
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if err := database.DB.Model(&group).Updates(updates).Error; err != nil {
		return serviceError(c, err, "Failed to update group")
	}
	database.DB.First(&group, id)

	middleware.LogActivity(c, "UPDATE", "groups", group.ID, updates)
	return c.JSON(fiber.Map{"message": "Group updated successfully", "group": group})
}

// DeleteGroup removes a group with its schedules, assignments and thesis
func (gc *GroupController) DeleteGroup(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}

	var documentURL string
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		var group models.ThesisGroup
		if err := tx.Preload("Thesis").First(&group, id).Error; err != nil {
			return err
		}
		if group.Thesis != nil {
			documentURL = group.Thesis.DocumentURL
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.Assignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.Schedule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.Thesis{}).Error; err != nil {
			return err
		}
		return tx.Delete(&group).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
		}
		return serviceError(c, err, "Failed to delete group")
	}

	if documentURL != "" && gc.store != nil {
		if err := gc.store.DeleteFile(documentURL); err != nil {
			logrus.WithError(err).WithField("group_id", id).Warn("Failed to delete manuscript")
		}
	}

	middleware.LogActivity(c, "DELETE", "groups", id, nil)
	return c.JSON(fiber.Map{"message": "Group deleted successfully"})
}

// UpsertThesis sets the thesis details and adviser of a group
func (gc *GroupController) UpsertThesis(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	var req ThesisRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}

	var group models.ThesisGroup
	if err := database.DB.First(&group, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
	}
	if req.AdviserID != nil {
		var adviser models.User
		if err := database.DB.Where("id = ? AND role = ?", *req.AdviserID, models.RolePanelist).First(&adviser).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Adviser must be a registered panelist"})
		}
		if err := scheduling.CheckAdviser(database.DB.WithContext(c.UserContext()), id, adviser); err != nil {
			return serviceError(c, err, "Failed to save thesis")
		}
	}

	var thesis models.Thesis
	err = database.DB.Where("group_id = ?", id).First(&thesis).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		thesis = models.Thesis{GroupID: id, Title: req.Title, Abstract: req.Abstract, AdviserID: req.AdviserID}
		if thesis.Title == "" {
			thesis.Title = group.Title
		}
		err = database.DB.Create(&thesis).Error
	case err == nil:
		err = database.DB.Model(&thesis).Updates(map[string]interface{}{
			"title":      req.Title,
			"abstract":   req.Abstract,
			"adviser_id": req.AdviserID,
		}).Error
	}
	if err != nil {
		return serviceError(c, err, "Failed to save thesis")
	}

	database.DB.Preload("Adviser").First(&thesis, thesis.ID)
	middleware.LogActivity(c, "UPSERT", "theses", thesis.ID, fiber.Map{"group_id": id, "adviser_id": req.AdviserID})
	return c.JSON(fiber.Map{"message": "Thesis saved", "thesis": thesis})
}

// UploadManuscript stores the group's thesis document
func (gc *GroupController) UploadManuscript(c *fiber.Ctx) error {
	if gc.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "File storage is not configured"})
	}
	id, err := parseID(c, "id")
	if err != nil {
		return serviceError(c, err, "")
	}
	file, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "document file is required"})
	}

	var group models.ThesisGroup
	if err := database.DB.First(&group, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
	}

	url, err := gc.store.UploadManuscript(file, id)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) || errors.Is(err, storage.ErrExtensionRejected) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return serviceError(c, err, "Failed to upload document")
	}

	var thesis models.Thesis
	previous := ""
	if err := database.DB.Where("group_id = ?", id).First(&thesis).Error; err == nil {
		previous = thesis.DocumentURL
		err = database.DB.Model(&thesis).Update("document_url", url).Error
		if err != nil {
			return serviceError(c, err, "Failed to save document")
		}
	} else {
		thesis = models.Thesis{GroupID: id, Title: group.Title, DocumentURL: url}
		if err := database.DB.Create(&thesis).Error; err != nil {
			return serviceError(c, err, "Failed to save document")
		}
	}
	if previous != "" && previous != url {
		if err := gc.store.DeleteFile(previous); err != nil {
			logrus.WithError(err).Warn("Failed to delete replaced manuscript")
		}
	}

	middleware.LogActivity(c, "UPLOAD", "theses", thesis.ID, fiber.Map{"file": file.Filename})
	return c.JSON(fiber.Map{"message": "Document uploaded", "document_url": url})
}
