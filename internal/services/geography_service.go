package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
)

// GeographyService exposes the static province and city reference data.
type GeographyService struct {
	db *gorm.DB
}

func NewGeographyService(db *gorm.DB) (*GeographyService, error) {
	if db == nil {
		return nil, errors.New("geography service: database handle is required")
	}
	return &GeographyService{db: db}, nil
}

// ListProvinces returns every province with its cities preloaded.
func (s *GeographyService) ListProvinces(ctx context.Context) ([]models.Province, error) {
	ctx = ensureContext(ctx)

	var provinces []models.Province
	err := s.db.WithContext(ctx).
		Preload("Cities").
		Order("name ASC").
		Find(&provinces).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list provinces")
	}
	return provinces, nil
}

// ListCities returns the cities of a single province.
func (s *GeographyService) ListCities(ctx context.Context, provinceID string) ([]models.City, error) {
	ctx = ensureContext(ctx)

	if _, err := s.GetProvince(ctx, provinceID); err != nil {
		return nil, err
	}

	var cities []models.City
	err := s.db.WithContext(ctx).
		Where("province_id = ?", provinceID).
		Order("name ASC").
		Find(&cities).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list cities")
	}
	return cities, nil
}

// GetProvince loads a single province by id.
func (s *GeographyService) GetProvince(ctx context.Context, id string) (*models.Province, error) {
	ctx = ensureContext(ctx)

	var province models.Province
	err := s.db.WithContext(ctx).First(&province, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Province not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load province")
	}
	return &province, nil
}

// GetCity loads a single city by id.
func (s *GeographyService) GetCity(ctx context.Context, id string) (*models.City, error) {
	ctx = ensureContext(ctx)

	var city models.City
	err := s.db.WithContext(ctx).First(&city, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("City not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load city")
	}
	return &city, nil
}
