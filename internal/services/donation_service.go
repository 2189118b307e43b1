package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/payment"
	"github.com/adeelraza/floodcoord/pkg/crypto"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/logger"
	"github.com/adeelraza/floodcoord/pkg/metrics"
)

// DonationService owns the donation lifecycle. Cash donations settle
// asynchronously through the payment provider's webhook; in-kind donations
// are approved on receipt.
type DonationService struct {
	db       *gorm.DB
	provider payment.Provider
	now      func() time.Time
	log      *zap.Logger
}

type DonationOption func(*DonationService)

// WithDonationClock injects a deterministic clock.
func WithDonationClock(now func() time.Time) DonationOption {
	return func(s *DonationService) { s.now = now }
}

func NewDonationService(db *gorm.DB, provider payment.Provider, opts ...DonationOption) (*DonationService, error) {
	if db == nil {
		return nil, errors.New("donation service: database handle is required")
	}
	s := &DonationService{
		db:       db,
		provider: provider,
		now:      time.Now,
		log:      logger.WithModule("donation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CashDonationInput describes a cash pledge to settle via hosted checkout.
type CashDonationInput struct {
	DonorName          string
	DonorAccountNumber string
	Email              string
	Amount             int64
	IsRecurring        bool
}

// CashDonationResult pairs the persisted donation with the checkout URL the
// donor is redirected to.
type CashDonationResult struct {
	Donation    *models.Donation `json:"donation"`
	CheckoutURL string           `json:"checkout_url"`
}

// CreateCash persists a pending donation and opens a checkout session for it.
// The donation row is written before the provider call so a crash between the
// two leaves a pending record rather than an untracked payment. If the
// provider rejects the session the row is marked rejected.
func (s *DonationService) CreateCash(ctx context.Context, input CashDonationInput) (*CashDonationResult, error) {
	ctx = ensureContext(ctx)

	if s.provider == nil {
		return nil, apperrors.ErrExternalService.WithMessage("Payments are not configured")
	}
	if input.Amount <= 0 {
		return nil, apperrors.NewBadRequest("Amount must be positive")
	}
	if err := validateDonorIdentity(input.DonorName, input.DonorAccountNumber, input.Email); err != nil {
		return nil, err
	}

	amount := input.Amount
	donation := models.Donation{
		DonorName:          strings.TrimSpace(input.DonorName),
		DonorAccountNumber: strings.TrimSpace(input.DonorAccountNumber),
		Email:              normaliseEmail(input.Email),
		Type:               models.DonationCash,
		Amount:             &amount,
		IsRecurring:        input.IsRecurring,
		Status:             models.DonationPending,
	}
	if err := s.db.WithContext(ctx).Create(&donation).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to record donation")
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutInput{
		DonationID: donation.ID,
		Amount:     input.Amount,
		DonorEmail: donation.Email,
		Recurring:  input.IsRecurring,
	})
	if err != nil {
		s.log.Error("checkout session creation failed",
			zap.String("donation_id", donation.ID),
			zap.Error(err))
		// The row stays as a rejected record of the failed attempt.
		_ = s.db.WithContext(ctx).Model(&donation).
			Updates(map[string]interface{}{"status": models.DonationRejected}).Error
		return nil, apperrors.ErrExternalService.WithInternal(err)
	}

	err = s.db.WithContext(ctx).Model(&donation).
		Update("payment_session_id", session.ID).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to record checkout session")
	}
	donation.PaymentSessionID = &session.ID

	s.log.Info("cash donation created",
		zap.String("donation_id", donation.ID),
		zap.Int64("amount", input.Amount))

	return &CashDonationResult{Donation: &donation, CheckoutURL: session.URL}, nil
}

// GoodsDonationInput describes an in-kind pledge.
type GoodsDonationInput struct {
	DonorName          string
	DonorAccountNumber string
	Email              string
	Quantity           *int
	Description        string
}

// CreateGoods records an in-kind donation. No payment settlement applies, so
// the record is approved immediately and assigned a receipt number.
func (s *DonationService) CreateGoods(ctx context.Context, input GoodsDonationInput) (*models.Donation, error) {
	ctx = ensureContext(ctx)

	if err := validateDonorIdentity(input.DonorName, input.DonorAccountNumber, input.Email); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(input.Description)
	if description == "" && input.Quantity == nil {
		return nil, apperrors.NewBadRequest("In-kind donations need a quantity or description")
	}
	if input.Quantity != nil && *input.Quantity <= 0 {
		return nil, apperrors.NewBadRequest("Quantity must be positive")
	}

	receipt, err := newReceiptNumber(s.now())
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to generate receipt number")
	}

	donation := models.Donation{
		DonorName:          strings.TrimSpace(input.DonorName),
		DonorAccountNumber: strings.TrimSpace(input.DonorAccountNumber),
		Email:              normaliseEmail(input.Email),
		Type:               models.DonationOtherSupplies,
		Quantity:           input.Quantity,
		ReceiptNumber:      receipt,
		Status:             models.DonationApproved,
	}
	if description != "" {
		donation.Description = &description
	}

	if err := s.db.WithContext(ctx).Create(&donation).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to record donation")
	}

	s.log.Info("in-kind donation recorded",
		zap.String("donation_id", donation.ID),
		zap.String("receipt", receipt))

	return &donation, nil
}

// ApplyPaymentEvent settles a donation from a verified provider event.
// Deliveries are idempotent: an event for a donation that already left
// pending is acknowledged without changing the record, so provider retries
// and duplicates are harmless.
func (s *DonationService) ApplyPaymentEvent(ctx context.Context, event *payment.Event) error {
	ctx = ensureContext(ctx)

	if event == nil || event.Type == payment.EventIgnored {
		metrics.DonationWebhookEvents.WithLabelValues("ignored", "success").Inc()
		return nil
	}

	donation, err := s.findForEvent(ctx, event)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound.Code {
			// Providers retry non-2xx deliveries indefinitely; an event with no
			// matching donation is acknowledged, not failed.
			metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "orphan").Inc()
			s.log.Warn("webhook event matches no donation",
				zap.String("event", string(event.Type)),
				zap.String("donation_id", event.DonationID),
				zap.String("session_id", event.SessionID))
			return nil
		}
		metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "failure").Inc()
		return err
	}

	if donation.Status != models.DonationPending {
		metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "duplicate").Inc()
		s.log.Info("webhook replay ignored",
			zap.String("donation_id", donation.ID),
			zap.String("status", string(donation.Status)))
		return nil
	}

	updates := map[string]interface{}{"version": donation.Version + 1}
	switch event.Type {
	case payment.EventSessionCompleted:
		receipt, err := newReceiptNumber(s.now())
		if err != nil {
			metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "failure").Inc()
			return apperrors.Wrap(err, "Failed to generate receipt number")
		}
		updates["status"] = models.DonationApproved
		updates["receipt_number"] = receipt
	case payment.EventSessionExpired:
		updates["status"] = models.DonationRejected
	default:
		metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "success").Inc()
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND version = ? AND status = ?", donation.ID, donation.Version, models.DonationPending).
		Updates(updates)
	if result.Error != nil {
		metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "failure").Inc()
		return apperrors.Wrap(result.Error, "Failed to settle donation")
	}
	if result.RowsAffected == 0 {
		// A concurrent delivery won the race; the donation is settled.
		metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "duplicate").Inc()
		return nil
	}

	metrics.DonationWebhookEvents.WithLabelValues(string(event.Type), "success").Inc()
	s.log.Info("donation settled",
		zap.String("donation_id", donation.ID),
		zap.String("event", string(event.Type)))
	return nil
}

// MarkDistributed records that an approved donation has been handed out.
func (s *DonationService) MarkDistributed(ctx context.Context, id string) (*models.Donation, error) {
	ctx = ensureContext(ctx)

	donation, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if donation.Status != models.DonationApproved {
		return nil, apperrors.ErrInvalidTransition.WithMessage("Only approved donations can be distributed")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND version = ? AND status = ?", donation.ID, donation.Version, models.DonationApproved).
		Updates(map[string]interface{}{
			"status":  models.DonationDistributed,
			"version": donation.Version + 1,
		})
	if result.Error != nil {
		return nil, apperrors.Wrap(result.Error, "Failed to mark donation distributed")
	}
	if result.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}

	s.log.Info("donation distributed", zap.String("donation_id", donation.ID))
	return s.GetByID(ctx, id)
}

// GetByID loads a single donation.
func (s *DonationService) GetByID(ctx context.Context, id string) (*models.Donation, error) {
	ctx = ensureContext(ctx)

	var donation models.Donation
	err := s.db.WithContext(ctx).First(&donation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Donation not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load donation")
	}
	return &donation, nil
}

// ListByAccount returns a donor's history keyed by account number, newest
// first. This powers the public self-service lookup.
func (s *DonationService) ListByAccount(ctx context.Context, accountNumber string, page Pagination) ([]models.Donation, int64, error) {
	ctx = ensureContext(ctx)

	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, 0, apperrors.NewBadRequest("Account number is required")
	}

	query := s.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("donor_account_number = ?", accountNumber)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to count donations")
	}

	var donations []models.Donation
	err := query.
		Order("created_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&donations).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to list donations")
	}
	return donations, total, nil
}

// DonationFilter narrows admin listings.
type DonationFilter struct {
	Status models.DonationStatus
	Type   models.DonationType
}

// List returns donations for coordinators, newest first.
func (s *DonationService) List(ctx context.Context, filter DonationFilter, page Pagination) ([]models.Donation, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Donation{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to count donations")
	}

	var donations []models.Donation
	err := query.
		Order("created_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&donations).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to list donations")
	}
	return donations, total, nil
}

// Statistics summarises donation totals for dashboards.
type Statistics struct {
	TotalCount       int64 `json:"total_count"`
	CashCount        int64 `json:"cash_count"`
	GoodsCount       int64 `json:"goods_count"`
	ApprovedAmount   int64 `json:"approved_amount"`
	DistributedCount int64 `json:"distributed_count"`
	PendingCount     int64 `json:"pending_count"`
}

// GetStatistics aggregates donation counts and the settled cash total.
// ApprovedAmount includes distributed donations since distribution follows
// approval.
func (s *DonationService) GetStatistics(ctx context.Context) (*Statistics, error) {
	ctx = ensureContext(ctx)

	var stats Statistics
	db := s.db.WithContext(ctx).Model(&models.Donation{})

	if err := db.Session(&gorm.Session{}).Count(&stats.TotalCount).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to aggregate donations")
	}
	if err := db.Session(&gorm.Session{}).Where("type = ?", models.DonationCash).Count(&stats.CashCount).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to aggregate donations")
	}
	if err := db.Session(&gorm.Session{}).Where("type = ?", models.DonationOtherSupplies).Count(&stats.GoodsCount).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to aggregate donations")
	}
	if err := db.Session(&gorm.Session{}).Where("status = ?", models.DonationDistributed).Count(&stats.DistributedCount).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to aggregate donations")
	}
	if err := db.Session(&gorm.Session{}).Where("status = ?", models.DonationPending).Count(&stats.PendingCount).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to aggregate donations")
	}

	var approved struct{ Total int64 }
	err := s.db.WithContext(ctx).
		Model(&models.Donation{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("type = ? AND status IN ?", models.DonationCash,
			[]models.DonationStatus{models.DonationApproved, models.DonationDistributed}).
		Scan(&approved).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to aggregate donations")
	}
	stats.ApprovedAmount = approved.Total

	return &stats, nil
}

func (s *DonationService) findForEvent(ctx context.Context, event *payment.Event) (*models.Donation, error) {
	if event.DonationID != "" {
		donation, err := s.GetByID(ctx, event.DonationID)
		if err == nil {
			return donation, nil
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code != apperrors.ErrNotFound.Code {
			return nil, err
		}
	}

	if event.SessionID != "" {
		var donation models.Donation
		err := s.db.WithContext(ctx).
			First(&donation, "payment_session_id = ?", event.SessionID).Error
		if err == nil {
			return &donation, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(err, "Failed to load donation")
		}
	}

	return nil, apperrors.ErrNotFound.WithMessage("No donation matches the payment event")
}

func validateDonorIdentity(name, account, email string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewBadRequest("Donor name is required")
	}
	if strings.TrimSpace(account) == "" {
		return apperrors.NewBadRequest("Donor account number is required")
	}
	if strings.TrimSpace(email) == "" {
		return apperrors.NewBadRequest("Donor email is required")
	}
	return nil
}

func newReceiptNumber(now time.Time) (string, error) {
	suffix, err := crypto.GenerateNumericCode(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FC-%d-%s", now.Year(), suffix), nil
}
