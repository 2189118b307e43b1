package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/database"
	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/scope"
	"github.com/adeelraza/floodcoord/pkg/crypto"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_foreign_keys=1", t.Name())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

type testGeo struct {
	Punjab  models.Province
	Sindh   models.Province
	Lahore  models.City
	Multan  models.City
	Karachi models.City
}

func seedGeo(t *testing.T, db *gorm.DB) testGeo {
	t.Helper()

	geo := testGeo{
		Punjab: models.Province{Name: "Punjab"},
		Sindh:  models.Province{Name: "Sindh"},
	}
	require.NoError(t, db.Create(&geo.Punjab).Error)
	require.NoError(t, db.Create(&geo.Sindh).Error)

	geo.Lahore = models.City{Name: "Lahore", ProvinceID: geo.Punjab.ID}
	geo.Multan = models.City{Name: "Multan", ProvinceID: geo.Punjab.ID}
	geo.Karachi = models.City{Name: "Karachi", ProvinceID: geo.Sindh.ID}
	require.NoError(t, db.Create(&geo.Lahore).Error)
	require.NoError(t, db.Create(&geo.Multan).Error)
	require.NoError(t, db.Create(&geo.Karachi).Error)

	return geo
}

func seedUser(t *testing.T, db *gorm.DB, role models.Role, provinceID, cityID *string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("Valid#Pass1", crypto.DefaultBcryptCost)
	require.NoError(t, err)

	suffix, err := crypto.GenerateToken(6)
	require.NoError(t, err)
	// Emails at rest are lowercase (production paths normalize on creation);
	// the raw base64url token would seed a mixed-case address.
	suffix = strings.ToLower(suffix)

	user := models.User{
		Username:   fmt.Sprintf("user-%s", suffix),
		Email:      fmt.Sprintf("user-%s@example.com", suffix),
		Password:   hash,
		FullName:   "Test User",
		Role:       role,
		ProvinceID: provinceID,
		CityID:     cityID,
		IsActive:   true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func provinceScope(provinceID string) scope.Scope {
	return scope.Scope{Kind: scope.ProvinceScoped, ProvinceID: provinceID}
}

func cityScope(cityID string) scope.Scope {
	return scope.Scope{Kind: scope.CityScoped, CityID: cityID}
}

func unrestrictedScope() scope.Scope {
	return scope.Scope{Kind: scope.Unrestricted}
}

type fakeClock struct {
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
