package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type usernameRow struct {
	ID       uint `gorm:"primaryKey"`
	Username *string
}

func (usernameRow) TableName() string { return "users" }

func newUsernameDB(t *testing.T, existing ...string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&usernameRow{}))
	for _, name := range existing {
		n := name
		require.NoError(t, db.Create(&usernameRow{Username: &n}).Error)
	}
	return db
}

func TestUsernameBase(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Ana", "Cruz", "anacruz"},
		{"María José", "Dela Cruz-Reyes", "marajosdelacruzreyes"},
		{"J.R.", "O'Neil 3rd", "jroneil3rd"},
		{"", "", "panelist"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, UsernameBase(tc.first, tc.last), "%s %s", tc.first, tc.last)
	}
}

func TestEnsureUniqueUsername(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     string
	}{
		{"free", nil, "anacruz"},
		{"taken once", []string{"anacruz"}, "anacruz1"},
		{"fills gap", []string{"anacruz", "anacruz2"}, "anacruz1"},
		{"next after run", []string{"anacruz", "anacruz1", "anacruz2"}, "anacruz3"},
		{"ignores other prefixes", []string{"anacruz", "anacruzz", "anacruz_9"}, "anacruz1"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			db := newUsernameDB(t, tc.existing...)
			got, err := EnsureUniqueUsername(db, "anacruz")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
