package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/scope"
	"github.com/adeelraza/floodcoord/pkg/crypto"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
)

// UserService manages account records. Account creation happens through the
// invitation flow or the bootstrap seed; this service covers lookup, listing
// and activation state.
type UserService struct {
	db         *gorm.DB
	bcryptCost int
}

type UserServiceOption func(*UserService)

// WithBcryptCost overrides the password hashing work factor.
func WithBcryptCost(cost int) UserServiceOption {
	return func(s *UserService) { s.bcryptCost = cost }
}

func NewUserService(db *gorm.DB, opts ...UserServiceOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: database handle is required")
	}
	s := &UserService{db: db, bcryptCost: crypto.DefaultBcryptCost}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateUserInput describes a new account. Geography requirements depend on
// the role: province admins need a province, volunteers need a city.
type CreateUserInput struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Phone      string
	Role       models.Role
	ProvinceID *string
	CityID     *string
}

// Create provisions an account after validating the password policy and the
// role's geography requirements.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	if !input.Role.Valid() {
		return nil, apperrors.NewBadRequest("Unknown role")
	}
	if err := validateRoleGeography(input.Role, input.ProvinceID, input.CityID); err != nil {
		return nil, err
	}
	if err := crypto.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to hash password")
	}

	email := normaliseEmail(input.Email)
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = email
	}

	user := models.User{
		Username:   username,
		Email:      email,
		Password:   hash,
		FullName:   strings.TrimSpace(input.FullName),
		Phone:      strings.TrimSpace(input.Phone),
		Role:       input.Role,
		ProvinceID: input.ProvinceID,
		CityID:     input.CityID,
		IsActive:   true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("An account with this email or username already exists")
		}
		return nil, apperrors.Wrap(err, "Failed to create user")
	}
	return &user, nil
}

// GetByID loads a user with geography preloaded.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Province").
		Preload("City").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load user")
	}
	return &user, nil
}

// GetByEmail loads a user by normalised email address.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normaliseEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load user")
	}
	return &user, nil
}

// GetByIdentifier looks a user up by email or username.
func (s *UserService) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	ctx = ensureContext(ctx)

	identifier = strings.TrimSpace(identifier)
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", normaliseEmail(identifier), identifier).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load user")
	}
	return &user, nil
}

// ListFilter narrows user listings.
type ListUsersFilter struct {
	Role     models.Role
	IsActive *bool
}

// List returns the users visible within the caller's scope. Volunteers are
// matched by city, admins by province; super admins see everyone.
func (s *UserService) List(ctx context.Context, sc scope.Scope, filter ListUsersFilter, page Pagination) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.User{})
	query = sc.Apply(query)

	if filter.Role != "" {
		if !filter.Role.Valid() {
			return nil, 0, apperrors.NewBadRequest("Unknown role filter")
		}
		query = query.Where("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to count users")
	}

	var users []models.User
	err := query.
		Preload("Province").
		Preload("City").
		Order("created_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&users).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to list users")
	}
	return users, total, nil
}

// SetActive flips the account's active flag. Deactivated accounts fail
// authentication but keep their history; audit rows may still reference them.
func (s *UserService) SetActive(ctx context.Context, sc scope.Scope, id string, active bool) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.scopeCovers(sc, user) {
		return nil, apperrors.ErrForbidden
	}

	if user.IsActive == active {
		return user, nil
	}

	err = s.db.WithContext(ctx).Model(user).Update("is_active", active).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to update user")
	}
	user.IsActive = active
	return user, nil
}

// RecordLogin stamps the user's last login time.
func (s *UserService) RecordLogin(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_at", s.db.NowFunc()).Error
}

func (s *UserService) scopeCovers(sc scope.Scope, user *models.User) bool {
	switch sc.Kind {
	case scope.Unrestricted:
		return true
	case scope.ProvinceScoped:
		return user.ProvinceID != nil && *user.ProvinceID == sc.ProvinceID
	case scope.CityScoped:
		return user.CityID != nil && *user.CityID == sc.CityID
	default:
		return false
	}
}

func validateRoleGeography(role models.Role, provinceID, cityID *string) error {
	switch role {
	case models.RoleSuperAdmin:
		if provinceID != nil || cityID != nil {
			return apperrors.NewBadRequest("Super admins carry no geography")
		}
	case models.RoleProvinceAdmin:
		if provinceID == nil || *provinceID == "" {
			return apperrors.NewBadRequest("Province admins require a province")
		}
	case models.RoleVolunteer:
		if cityID == nil || *cityID == "" {
			return apperrors.NewBadRequest("Volunteers require a city")
		}
	}
	return nil
}
