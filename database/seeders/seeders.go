package seeders

import (
	"fmt"
	"strings"

	"thesisdefense_go/config"
	"thesisdefense_go/models"
	"thesisdefense_go/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SeedAll runs all seeders
func SeedAll(db *gorm.DB, cfg *config.Config) error {
	logrus.Info("Starting database seeding...")

	if err := SeedAdmin(db, cfg); err != nil {
		return err
	}
	if err := SeedRooms(db); err != nil {
		return err
	}

	logrus.Info("Database seeding completed successfully")
	return nil
}

// SeedAdmin creates the initial admin account when no admin exists.
func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logrus.Debug("Admin already seeded, skipping")
		return nil
	}

	hash, err := utils.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	username := "admin"
	admin := models.User{
		Username:  &username,
		Password:  hash,
		Email:     strings.ToLower(cfg.AdminEmail),
		FirstName: "System",
		LastName:  "Administrator",
		Role:      models.RoleAdmin,
		Status:    models.UserStatusActive,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logrus.WithField("email", admin.Email).Info("Admin account seeded")
	return nil
}

// SeedRooms seeds the default defense rooms
func SeedRooms(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Room{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logrus.Debug("Rooms already seeded, skipping")
		return nil
	}

	rooms := []models.Room{
		{Name: "Conference Room A", Building: "Main Building", Capacity: 20, Status: "available"},
		{Name: "Conference Room B", Building: "Main Building", Capacity: 15, Status: "available"},
		{Name: "AVR 1", Building: "Engineering Building", Capacity: 40, Status: "available"},
		{Name: "Seminar Room 301", Building: "Graduate School", Capacity: 25, Status: "available"},
	}
	if err := db.Create(&rooms).Error; err != nil {
		return fmt.Errorf("seed rooms: %w", err)
	}
	logrus.WithField("count", len(rooms)).Info("Rooms seeded")
	return nil
}
