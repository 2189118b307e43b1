package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/auth"
	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/pkg/crypto"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/logger"
	"github.com/adeelraza/floodcoord/pkg/mail"
	"github.com/adeelraza/floodcoord/pkg/metrics"
)

// AuthService orchestrates the two-step login: password verification issues a
// short-lived one-time code, code verification issues the access token.
type AuthService struct {
	db         *gorm.DB
	users      *UserService
	challenges *auth.ChallengeService
	jwt        *auth.JWTService
	mailer     mail.Mailer
	log        *zap.Logger
}

func NewAuthService(db *gorm.DB, users *UserService, challenges *auth.ChallengeService, jwtSvc *auth.JWTService, mailer mail.Mailer) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: database handle is required")
	}
	if users == nil || challenges == nil || jwtSvc == nil {
		return nil, errors.New("auth service: user, challenge and jwt services are required")
	}
	return &AuthService{
		db:         db,
		users:      users,
		challenges: challenges,
		jwt:        jwtSvc,
		mailer:     mailer,
		log:        logger.WithModule("auth"),
	}, nil
}

// LoginResult reports the outcome of the password step.
type LoginResult struct {
	NextStep string `json:"next_step"`
	Email    string `json:"email"`
}

// BeginLogin verifies the password and issues a one-time code delivered by
// email. The identifier may be an email address or a username. Mail delivery
// failures are logged but do not fail the step; the code remains verifiable
// and operators can fall back to the configured override.
func (s *AuthService) BeginLogin(ctx context.Context, identifier, password string) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		// A missing account and a wrong password are indistinguishable to the
		// caller.
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	code, err := s.challenges.Issue(ctx, user.Email)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to issue login code")
	}

	if s.mailer != nil {
		msg := mail.Message{
			To:      []string{user.Email},
			Subject: "Your login code",
			Body:    fmt.Sprintf("Your one-time login code is %s. It expires in a few minutes.", code),
		}
		if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Warn("login code delivery failed",
				zap.String("email", user.Email),
				zap.Error(err))
		}
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	s.log.Info("login code issued", zap.String("user_id", user.ID))

	return &LoginResult{NextStep: "otp", Email: user.Email}, nil
}

// TokenResult is the outcome of a completed login.
type TokenResult struct {
	NextStep    string       `json:"next_step"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

// CompleteLogin consumes the one-time code and issues the access token.
func (s *AuthService) CompleteLogin(ctx context.Context, email, code string) (*TokenResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil || !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("otp", "failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.challenges.Verify(ctx, user.Email, code); err != nil {
		metrics.AuthAttempts.WithLabelValues("otp", "failure").Inc()
		switch {
		case errors.Is(err, auth.ErrChallengeNotFound), errors.Is(err, auth.ErrChallengeExpired), errors.Is(err, auth.ErrInvalidCode):
			return nil, apperrors.ErrInvalidCredentials
		default:
			return nil, apperrors.Wrap(err, "Failed to verify login code")
		}
	}

	if s.challenges.IsMasterCode(code) {
		s.log.Warn("master code used for login",
			zap.String("user_id", user.ID),
			zap.String("email", user.Email))
	}

	token, err := s.jwt.GenerateAccessToken(auth.AccessTokenInput{
		UserID:     user.ID,
		Email:      user.Email,
		Role:       user.Role,
		ProvinceID: user.ProvinceID,
		CityID:     user.CityID,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to issue access token")
	}

	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to validate issued token")
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		s.log.Warn("failed to record login time", zap.String("user_id", user.ID), zap.Error(err))
	}

	metrics.AuthAttempts.WithLabelValues("otp", "success").Inc()
	s.log.Info("login completed", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return &TokenResult{
		NextStep:    "authenticated",
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user,
	}, nil
}
