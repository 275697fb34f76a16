package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"thesisdefense_go/models"
	"thesisdefense_go/services/mailer"
	"thesisdefense_go/services/notifications"
	"thesisdefense_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RegisterInput is a panelist self-registration.
type RegisterInput struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Department string
	Expertise  string
}

// ProfileInput carries editable profile fields; nil fields are left alone.
type ProfileInput struct {
	FirstName  *string
	LastName   *string
	Department *string
	Expertise  *string
}

// PanelistWorkload is the number of active assignments a panelist holds in a month.
type PanelistWorkload struct {
	PanelistID uint   `json:"panelist_id"`
	Name       string `json:"name"`
	Count      int64  `json:"count"`
}

// PanelistService covers registration, approval and profile management.
type PanelistService struct {
	db     *gorm.DB
	mail   *mailer.Mailer
	notifs *notifications.Service
}

func NewPanelistService(db *gorm.DB, mail *mailer.Mailer, notifs *notifications.Service) *PanelistService {
	return &PanelistService{db: db, mail: mail, notifs: notifs}
}

// Register creates a pending panelist without a username.
func (s *PanelistService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Email:      email,
		Password:   hash,
		FirstName:  utils.SanitizeString(in.FirstName),
		LastName:   utils.SanitizeString(in.LastName),
		Department: utils.SanitizeString(in.Department),
		Expertise:  utils.SanitizeString(in.Expertise),
		Role:       models.RolePanelist,
		Status:     models.UserStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}

	if s.notifs != nil {
		if err := s.notifs.NotifyAdmins(ctx, notifications.New("New panelist registration",
			fmt.Sprintf("%s (%s) is awaiting approval.", u.FullName(), u.Email), "info",
			map[string]interface{}{"panelist_id": u.ID})); err != nil {
			logrus.WithError(err).Warn("admin notification failed")
		}
	}
	return u, nil
}

// Get loads a panelist by id.
func (s *PanelistService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ? AND role = ?", id, models.RolePanelist).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &u, err
}

// List returns panelists filtered by status and a name/email search.
func (s *PanelistService) List(ctx context.Context, status, search string) ([]models.User, error) {
	q := s.db.WithContext(ctx).Where("role = ?", models.RolePanelist)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	var out []models.User
	err := q.Order("last_name, first_name").Find(&out).Error
	return out, err
}

// Approve activates a pending panelist and assigns a unique username.
func (s *PanelistService) Approve(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND role = ?", id, models.RolePanelist).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if u.Status != models.UserStatusPending {
			return ErrNotPending
		}
		username, err := utils.EnsureUniqueUsername(tx, utils.UsernameBase(u.FirstName, u.LastName))
		if err != nil {
			return fmt.Errorf("generate username: %w", err)
		}
		u.Username = &username
		u.Status = models.UserStatusActive
		return tx.Model(&u).Updates(map[string]interface{}{
			"username": username,
			"status":   models.UserStatusActive,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if s.mail != nil {
		_ = s.mail.Enqueue(ctx, u.Email, mailer.TemplateAccountApproved, mailer.AccountData{Name: u.FullName(), Username: *u.Username})
	}
	logrus.WithFields(logrus.Fields{"panelist_id": u.ID, "username": *u.Username}).Info("panelist approved")
	return &u, nil
}

// Reject deletes a pending registration.
func (s *PanelistService) Reject(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Where("id = ? AND role = ?", id, models.RolePanelist).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if u.Status != models.UserStatusPending {
			return ErrNotPending
		}
		return tx.Delete(&u).Error
	})
}

// SetActive toggles an approved panelist between active and inactive.
func (s *PanelistService) SetActive(ctx context.Context, id uint, active bool) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Status == models.UserStatusPending {
		return nil, fmt.Errorf("%w: approve the registration first", ErrInvalidInput)
	}
	status := models.UserStatusInactive
	if active {
		status = models.UserStatusActive
	}
	if err := s.db.WithContext(ctx).Model(u).Update("status", status).Error; err != nil {
		return nil, err
	}
	u.Status = status
	return u, nil
}

// UpdateProfile edits name, department and expertise.
func (s *PanelistService) UpdateProfile(ctx context.Context, id uint, in ProfileInput) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.FirstName != nil {
		if v := utils.SanitizeString(*in.FirstName); v != "" {
			updates["first_name"] = v
		}
	}
	if in.LastName != nil {
		if v := utils.SanitizeString(*in.LastName); v != "" {
			updates["last_name"] = v
		}
	}
	if in.Department != nil {
		updates["department"] = utils.SanitizeString(*in.Department)
	}
	if in.Expertise != nil {
		updates["expertise"] = utils.SanitizeString(*in.Expertise)
	}
	if len(updates) == 0 {
		return u, nil
	}
	if err := s.db.WithContext(ctx).Model(u).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Workload counts non-cancelled assignments per active panelist for the month of day (YYYY-MM-DD).
func (s *PanelistService) Workload(ctx context.Context, day string) ([]PanelistWorkload, error) {
	d, err := utils.ParseDate(day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	first, last := utils.MonthRange(d)

	type row struct {
		ID        uint
		FirstName string
		LastName  string
		Count     int64
	}
	var rows []row
	err = s.db.WithContext(ctx).Table("users").
		Select("users.id, users.first_name, users.last_name, COUNT(schedules.id) AS count").
		Joins("LEFT JOIN assignments ON assignments.panelist_id = users.id").
		Joins("LEFT JOIN schedules ON schedules.id = assignments.schedule_id AND schedules.status <> ? AND schedules.defense_date BETWEEN ? AND ?",
			models.ScheduleStatusCancelled, first, last).
		Where("users.role = ? AND users.status = ?", models.RolePanelist, models.UserStatusActive).
		Group("users.id, users.first_name, users.last_name").
		Order("count DESC, users.last_name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]PanelistWorkload, 0, len(rows))
	for _, r := range rows {
		out = append(out, PanelistWorkload{
			PanelistID: r.ID,
			Name:       models.User{FirstName: r.FirstName, LastName: r.LastName}.FullName(),
			Count:      r.Count,
		})
	}
	return out, nil
}
