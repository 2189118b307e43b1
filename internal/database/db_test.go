package database

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", t.Name())
	db, err := Open(Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	return db
}

func TestAutoMigrateAndSeed(t *testing.T) {
	db := openTestDB(t)

	admin := BootstrapAdmin{Email: "root@example.com", Username: "root", Password: "Sup3r!Secret"}
	require.NoError(t, AutoMigrateAndSeed(db, admin))

	var provinces int64
	require.NoError(t, db.Model(&models.Province{}).Count(&provinces).Error)
	require.Greater(t, provinces, int64(0))

	var cities []models.City
	require.NoError(t, db.Find(&cities).Error)
	require.NotEmpty(t, cities)
	for _, city := range cities {
		require.NotEmpty(t, city.ProvinceID)
	}

	var admins []models.User
	require.NoError(t, db.Where("role = ?", models.RoleSuperAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
	require.Equal(t, "root@example.com", admins[0].Email)
	require.NotEqual(t, "Sup3r!Secret", admins[0].Password)

	// A second run must not duplicate reference data or admins.
	require.NoError(t, AutoMigrateAndSeed(db, admin))

	var provincesAgain int64
	require.NoError(t, db.Model(&models.Province{}).Count(&provincesAgain).Error)
	require.Equal(t, provinces, provincesAgain)

	require.NoError(t, db.Where("role = ?", models.RoleSuperAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
}

func TestSeedRequiresBootstrapCredentials(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	err := SeedData(db, BootstrapAdmin{})
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}
