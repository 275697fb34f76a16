package seeders

import (
	"testing"

	"thesisdefense_go/config"
	"thesisdefense_go/database/dbtest"
	"thesisdefense_go/models"
	"thesisdefense_go/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAllIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	cfg := config.Default()

	require.NoError(t, SeedAll(db, cfg))
	require.NoError(t, SeedAll(db, cfg))

	var admins []models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin", *admins[0].Username)
	assert.Equal(t, models.UserStatusActive, admins[0].Status)
	assert.NoError(t, utils.CheckPassword(cfg.AdminPassword, admins[0].Password))

	var rooms int64
	db.Model(&models.Room{}).Count(&rooms)
	assert.Equal(t, int64(4), rooms)
}
