package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/scope"
	"github.com/adeelraza/floodcoord/pkg/crypto"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/logger"
	"github.com/adeelraza/floodcoord/pkg/mail"
	"github.com/adeelraza/floodcoord/pkg/metrics"
)

const (
	defaultInvitationTTL = 7 * 24 * time.Hour
	invitationTokenBytes = 32
)

// InvitationService manages the invite-only onboarding chain: super admins
// invite province admins, province admins invite volunteers. Tokens are
// stored hashed and are single-use.
type InvitationService struct {
	db     *gorm.DB
	users  *UserService
	mailer mail.Mailer
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
	// acceptURL is the public base the emailed link points at; the raw token
	// is appended as a query parameter.
	acceptURL string
}

type InvitationOption func(*InvitationService)

// WithInvitationTTL overrides the validity window for new invitations.
func WithInvitationTTL(ttl time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithInvitationClock injects a deterministic clock.
func WithInvitationClock(now func() time.Time) InvitationOption {
	return func(s *InvitationService) { s.now = now }
}

// WithAcceptURL sets the public base URL for emailed invitation links.
func WithAcceptURL(base string) InvitationOption {
	return func(s *InvitationService) { s.acceptURL = strings.TrimRight(base, "/") }
}

func NewInvitationService(db *gorm.DB, users *UserService, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: database handle is required")
	}
	if users == nil {
		return nil, errors.New("invitation service: user service is required")
	}
	s := &InvitationService{
		db:     db,
		users:  users,
		mailer: mailer,
		ttl:    defaultInvitationTTL,
		now:    time.Now,
		log:    logger.WithModule("invitation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Inviter identifies who is issuing the invitation.
type Inviter struct {
	UserID     string
	Role       models.Role
	ProvinceID *string
}

// CreateInvitationInput describes the account being invited.
type CreateInvitationInput struct {
	Email      string
	Role       models.Role
	ProvinceID *string
	CityID     *string
}

// InvitationResult pairs the persisted invitation with the raw token. The
// token leaves the process only via this result and the invitation email.
type InvitationResult struct {
	Invitation *models.Invitation
	Token      string
}

// Create issues an invitation after enforcing the role chain: super admins
// invite province admins into any province, province admins invite
// volunteers into cities of their own province. At most one pending
// invitation may exist per email.
func (s *InvitationService) Create(ctx context.Context, inviter Inviter, input CreateInvitationInput) (*InvitationResult, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("Email is required")
	}

	if err := s.authorise(ctx, inviter, input); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("An account with this email already exists")
	}

	token, err := crypto.GenerateToken(invitationTokenBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to generate invitation token")
	}

	invitation := models.Invitation{
		Email:       email,
		TokenHash:   hashInvitationToken(token),
		Role:        input.Role,
		ProvinceID:  input.ProvinceID,
		CityID:      input.CityID,
		Status:      models.InvitationPending,
		ExpiresAt:   s.now().Add(s.ttl),
		CreatedByID: inviter.UserID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		err := tx.Model(&models.Invitation{}).
			Where("email = ? AND status = ? AND expires_at > ?", email, models.InvitationPending, s.now()).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return apperrors.NewConflict("A pending invitation already exists for this email")
		}
		return tx.Create(&invitation).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("A pending invitation already exists for this email")
		}
		return nil, apperrors.Wrap(err, "Failed to create invitation")
	}

	s.deliver(ctx, email, token)

	metrics.InvitationsIssued.WithLabelValues(string(input.Role)).Inc()
	s.log.Info("invitation issued",
		zap.String("invitation_id", invitation.ID),
		zap.String("role", string(input.Role)))

	return &InvitationResult{Invitation: &invitation, Token: token}, nil
}

// AcceptInvitationInput carries the new account's credentials.
type AcceptInvitationInput struct {
	Token    string
	Username string
	Password string
	FullName string
	Phone    string
}

// Accept redeems the invitation and provisions the account atomically. The
// status flip and the account insert share a transaction, and the flip is
// guarded on the pending status so two concurrent acceptances of the same
// token cannot both succeed.
func (s *InvitationService) Accept(ctx context.Context, input AcceptInvitationInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.findByToken(ctx, input.Token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if invitation.Status != models.InvitationPending {
		return nil, apperrors.NewBadRequest("Invitation is no longer valid")
	}
	if now.After(invitation.ExpiresAt) {
		_ = s.db.WithContext(ctx).Model(invitation).
			Update("status", models.InvitationExpired).Error
		return nil, apperrors.NewBadRequest("Invitation has expired")
	}

	if err := crypto.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(input.Password, s.users.bcryptCost)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to hash password")
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = invitation.Email
	}

	user := models.User{
		Username:   username,
		Email:      invitation.Email,
		Password:   hash,
		FullName:   strings.TrimSpace(input.FullName),
		Phone:      strings.TrimSpace(input.Phone),
		Role:       invitation.Role,
		ProvinceID: invitation.ProvinceID,
		CityID:     invitation.CityID,
		IsActive:   true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
			Updates(map[string]interface{}{
				"status":      models.InvitationAccepted,
				"accepted_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NewBadRequest("Invitation is no longer valid")
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("An account with this email or username already exists")
		}
		return nil, apperrors.Wrap(err, "Failed to accept invitation")
	}

	s.log.Info("invitation accepted",
		zap.String("invitation_id", invitation.ID),
		zap.String("user_id", user.ID))

	return &user, nil
}

// Resend rotates the invitation token and re-sends the email. Only the hash
// is stored so a resend always mints a fresh token; the expiry window is not
// extended.
func (s *InvitationService) Resend(ctx context.Context, sc scope.Scope, id string) (*InvitationResult, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.getScoped(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if invitation.Status != models.InvitationPending {
		return nil, apperrors.NewBadRequest("Only pending invitations can be resent")
	}
	if s.now().After(invitation.ExpiresAt) {
		return nil, apperrors.NewBadRequest("Invitation has expired")
	}

	token, err := crypto.GenerateToken(invitationTokenBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to generate invitation token")
	}

	err = s.db.WithContext(ctx).Model(invitation).
		Update("token_hash", hashInvitationToken(token)).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to rotate invitation token")
	}

	s.deliver(ctx, invitation.Email, token)
	s.log.Info("invitation resent", zap.String("invitation_id", invitation.ID))

	return &InvitationResult{Invitation: invitation, Token: token}, nil
}

// Revoke cancels a pending invitation.
func (s *InvitationService) Revoke(ctx context.Context, sc scope.Scope, id string) error {
	ctx = ensureContext(ctx)

	invitation, err := s.getScoped(ctx, sc, id)
	if err != nil {
		return err
	}
	if invitation.Status != models.InvitationPending {
		return apperrors.NewBadRequest("Only pending invitations can be revoked")
	}

	err = s.db.WithContext(ctx).Model(invitation).
		Update("status", models.InvitationRevoked).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to revoke invitation")
	}

	s.log.Info("invitation revoked", zap.String("invitation_id", invitation.ID))
	return nil
}

// List returns invitations visible to the caller, newest first. Province
// admins see only invitations bound to their own province.
func (s *InvitationService) List(ctx context.Context, sc scope.Scope, page Pagination) ([]models.Invitation, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Invitation{})
	query = sc.Apply(query)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to count invitations")
	}

	var invitations []models.Invitation
	err := query.
		Preload("CreatedBy").
		Order("created_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&invitations).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to list invitations")
	}
	return invitations, total, nil
}

// ExpireStale marks overdue pending invitations as expired. The maintenance
// job runs this periodically; Accept also expires lazily so correctness does
// not depend on the job's cadence.
func (s *InvitationService) ExpireStale(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, s.now()).
		Update("status", models.InvitationExpired)
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, "Failed to expire invitations")
	}
	return result.RowsAffected, nil
}

func (s *InvitationService) authorise(ctx context.Context, inviter Inviter, input CreateInvitationInput) error {
	switch inviter.Role {
	case models.RoleSuperAdmin:
		if input.Role != models.RoleProvinceAdmin {
			return apperrors.ErrForbidden.WithMessage("Super admins may only invite province admins")
		}
		if input.ProvinceID == nil || *input.ProvinceID == "" {
			return apperrors.NewBadRequest("Province admin invitations require a province")
		}
		if input.CityID != nil {
			return apperrors.NewBadRequest("Province admin invitations carry no city")
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Province{}).
			Where("id = ?", *input.ProvinceID).Count(&count).Error; err != nil {
			return apperrors.Wrap(err, "Failed to validate province")
		}
		if count == 0 {
			return apperrors.NewBadRequest("Unknown province")
		}
		return nil

	case models.RoleProvinceAdmin:
		if input.Role != models.RoleVolunteer {
			return apperrors.ErrForbidden.WithMessage("Province admins may only invite volunteers")
		}
		if input.CityID == nil || *input.CityID == "" {
			return apperrors.NewBadRequest("Volunteer invitations require a city")
		}
		if inviter.ProvinceID == nil || *inviter.ProvinceID == "" {
			return scope.ErrScopeMisconfigured
		}
		var city models.City
		err := s.db.WithContext(ctx).First(&city, "id = ?", *input.CityID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewBadRequest("Unknown city")
		}
		if err != nil {
			return apperrors.Wrap(err, "Failed to validate city")
		}
		if city.ProvinceID != *inviter.ProvinceID {
			return apperrors.ErrForbidden.WithMessage("City is outside your province")
		}
		if input.ProvinceID != nil && *input.ProvinceID != city.ProvinceID {
			return apperrors.NewBadRequest("City does not belong to the given province")
		}
		return nil

	default:
		return apperrors.ErrForbidden
	}
}

func (s *InvitationService) getScoped(ctx context.Context, sc scope.Scope, id string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.db.WithContext(ctx).First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Invitation not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load invitation")
	}

	switch sc.Kind {
	case scope.Unrestricted:
	case scope.ProvinceScoped:
		if invitation.ProvinceID == nil || *invitation.ProvinceID != sc.ProvinceID {
			return nil, apperrors.ErrForbidden
		}
	default:
		return nil, apperrors.ErrForbidden
	}
	return &invitation, nil
}

func (s *InvitationService) findByToken(ctx context.Context, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewBadRequest("Invitation token is required")
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).
		First(&invitation, "token_hash = ?", hashInvitationToken(token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Invitation not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load invitation")
	}
	return &invitation, nil
}

func (s *InvitationService) deliver(ctx context.Context, email, token string) {
	if s.mailer == nil {
		return
	}

	body := fmt.Sprintf("You have been invited to join the flood relief coordination platform.\r\n\r\nYour invitation token: %s", token)
	if s.acceptURL != "" {
		body = fmt.Sprintf("You have been invited to join the flood relief coordination platform.\r\n\r\nAccept your invitation: %s?token=%s", s.acceptURL, token)
	}

	msg := mail.Message{
		To:      []string{email},
		Subject: "You are invited to the flood relief platform",
		Body:    body,
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("invitation delivery failed", zap.String("email", email), zap.Error(err))
	}
}

func hashInvitationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
