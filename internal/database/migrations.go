package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/pkg/crypto"
)

// AutoMigrate creates or updates the schema for every persistent model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Province{},
		&models.City{},
		&models.User{},
		&models.HelpRequest{},
		&models.UnassignmentAudit{},
		&models.Donation{},
		&models.Invitation{},
		&models.CacheEntry{},
	)
}

// seedProvinces is the static reference geography loaded on first boot.
// Coordinates are approximate city centres.
var seedProvinces = []struct {
	Name   string
	Cities []struct {
		Name string
		Lat  float64
		Lon  float64
	}
}{
	{
		Name: "Punjab",
		Cities: []struct {
			Name string
			Lat  float64
			Lon  float64
		}{
			{"Lahore", 31.5204, 74.3587},
			{"Multan", 30.1575, 71.5249},
			{"Rajanpur", 29.1044, 70.3301},
			{"Dera Ghazi Khan", 30.0489, 70.6455},
		},
	},
	{
		Name: "Sindh",
		Cities: []struct {
			Name string
			Lat  float64
			Lon  float64
		}{
			{"Karachi", 24.8607, 67.0011},
			{"Hyderabad", 25.3960, 68.3578},
			{"Larkana", 27.5570, 68.2028},
			{"Dadu", 26.7319, 67.7770},
		},
	},
	{
		Name: "Khyber Pakhtunkhwa",
		Cities: []struct {
			Name string
			Lat  float64
			Lon  float64
		}{
			{"Peshawar", 34.0151, 71.5249},
			{"Nowshera", 34.0105, 71.9876},
			{"Charsadda", 34.1453, 71.7308},
			{"Swat", 35.2227, 72.4258},
		},
	},
	{
		Name: "Balochistan",
		Cities: []struct {
			Name string
			Lat  float64
			Lon  float64
		}{
			{"Quetta", 30.1798, 66.9750},
			{"Jaffarabad", 28.3021, 68.1978},
			{"Sibi", 29.5430, 67.8773},
		},
	},
}

// SeedData loads reference geography and provisions the bootstrap super admin
// if no active super admin exists. Both steps are idempotent.
func SeedData(db *gorm.DB, admin BootstrapAdmin) error {
	if err := seedGeography(db); err != nil {
		return err
	}
	return seedSuperAdmin(db, admin)
}

func seedGeography(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Province{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count provinces: %w", err)
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, p := range seedProvinces {
			province := models.Province{Name: p.Name}
			if err := tx.Create(&province).Error; err != nil {
				return fmt.Errorf("seed province %s: %w", p.Name, err)
			}
			for _, c := range p.Cities {
				lat, lon := c.Lat, c.Lon
				city := models.City{
					Name:       c.Name,
					ProvinceID: province.ID,
					Latitude:   &lat,
					Longitude:  &lon,
				}
				if err := tx.Create(&city).Error; err != nil {
					return fmt.Errorf("seed city %s: %w", c.Name, err)
				}
			}
		}
		return nil
	})
}

func seedSuperAdmin(db *gorm.DB, admin BootstrapAdmin) error {
	var count int64
	err := db.Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleSuperAdmin, true).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("count super admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" || admin.Password == "" {
		return errors.New("no super admin exists and bootstrap credentials are not configured")
	}

	username := admin.Username
	if username == "" {
		username = "admin"
	}

	hash, err := crypto.HashPassword(admin.Password, crypto.DefaultBcryptCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	user := models.User{
		Username: username,
		Email:    email,
		Password: hash,
		FullName: "System Administrator",
		Role:     models.RoleSuperAdmin,
		IsActive: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("create bootstrap super admin: %w", err)
	}
	return nil
}
