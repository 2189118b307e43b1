package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/scope"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/logger"
	"github.com/adeelraza/floodcoord/pkg/metrics"
)

// ErrVersionConflict signals a lost optimistic-concurrency race; the caller
// should reload and retry.
var ErrVersionConflict = apperrors.NewConflict("The request was modified concurrently, please retry")

// HelpRequestService owns the help request lifecycle. All mutations go
// through version-checked updates so concurrent writers cannot silently
// clobber each other.
type HelpRequestService struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.Logger
}

type HelpRequestOption func(*HelpRequestService)

// WithHelpRequestClock injects a deterministic clock.
func WithHelpRequestClock(now func() time.Time) HelpRequestOption {
	return func(s *HelpRequestService) { s.now = now }
}

func NewHelpRequestService(db *gorm.DB, opts ...HelpRequestOption) (*HelpRequestService, error) {
	if db == nil {
		return nil, errors.New("help request service: database handle is required")
	}
	s := &HelpRequestService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("help_request"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitHelpRequestInput is the anonymous intake payload. Location is a raw
// coordinate pair plus an optional administrative geography binding.
type SubmitHelpRequestInput struct {
	RequestorName  string
	RequestorPhone string
	RequestorEmail *string

	Type        models.RequestType
	Description string
	Priority    models.RequestPriority

	Latitude  float64
	Longitude float64

	ProvinceID *string
	CityID     *string
}

// Submit records a new help request. No authentication is required; the
// affected person is not expected to hold an account.
func (s *HelpRequestService) Submit(ctx context.Context, input SubmitHelpRequestInput) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	if !input.Type.Valid() {
		return nil, apperrors.NewBadRequest("Unknown request type")
	}
	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewBadRequest("Unknown priority")
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, apperrors.NewBadRequest("Description is required")
	}
	// A zero coordinate means the client never captured a location.
	if input.Latitude == 0 || input.Longitude == 0 {
		return nil, apperrors.NewBadRequest("A location is required")
	}

	if err := s.validateGeography(ctx, input.ProvinceID, input.CityID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.RequestorName)
	if name == "" {
		name = "Anonymous"
	}

	request := models.HelpRequest{
		RequestorName:    name,
		RequestorPhone:   strings.TrimSpace(input.RequestorPhone),
		RequestorEmail:   input.RequestorEmail,
		Type:             input.Type,
		Description:      strings.TrimSpace(input.Description),
		Priority:         priority,
		Latitude:         input.Latitude,
		Longitude:        input.Longitude,
		ProvinceID:       input.ProvinceID,
		CityID:           input.CityID,
		Status:           models.StatusPending,
		AssignmentStatus: models.AssignmentUnassigned,
	}

	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to create help request")
	}

	metrics.HelpRequestTransitions.WithLabelValues("submit").Inc()
	s.log.Info("help request submitted",
		zap.String("request_id", request.ID),
		zap.String("type", string(request.Type)))

	return &request, nil
}

// HelpRequestFilter narrows listings.
type HelpRequestFilter struct {
	Status           models.RequestStatus
	Type             models.RequestType
	Priority         models.RequestPriority
	AssignmentStatus models.AssignmentStatus
	VolunteerID      string
	Search           string
	SubmittedAfter   *time.Time
	SubmittedBefore  *time.Time
}

// List returns the help requests inside the caller's scope, newest first.
func (s *HelpRequestService) List(ctx context.Context, sc scope.Scope, filter HelpRequestFilter, page Pagination) ([]models.HelpRequest, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.HelpRequest{})
	query = sc.Apply(query)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.AssignmentStatus != "" {
		query = query.Where("assignment_status = ?", filter.AssignmentStatus)
	}
	if filter.VolunteerID != "" {
		query = query.Where("assigned_volunteer_id = ?", filter.VolunteerID)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + term + "%"
		query = query.Where("requestor_name LIKE ? OR requestor_phone LIKE ? OR description LIKE ?",
			pattern, pattern, pattern)
	}
	if filter.SubmittedAfter != nil {
		query = query.Where("created_at >= ?", *filter.SubmittedAfter)
	}
	if filter.SubmittedBefore != nil {
		query = query.Where("created_at <= ?", *filter.SubmittedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to count help requests")
	}

	var requests []models.HelpRequest
	err := query.
		Preload("AssignedVolunteer").
		Order("created_at DESC").
		Offset(page.offset()).
		Limit(page.limit()).
		Find(&requests).Error
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "Failed to list help requests")
	}
	return requests, total, nil
}

// Get loads a single help request, enforcing the caller's scope. Out-of-scope
// requests surface as forbidden, not as missing.
func (s *HelpRequestService) Get(ctx context.Context, sc scope.Scope, id string) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	var request models.HelpRequest
	err := s.db.WithContext(ctx).
		Preload("AssignedVolunteer").
		First(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Help request not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load help request")
	}

	if !scopeCoversRequest(sc, &request) {
		return nil, apperrors.ErrForbidden
	}
	return &request, nil
}

// UpdateStatus sets any recognised lifecycle status. There is no transition
// table; coordinators may move a request to any state, including reopening a
// fulfilled one.
func (s *HelpRequestService) UpdateStatus(ctx context.Context, sc scope.Scope, id string, status models.RequestStatus) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	if !status.Valid() {
		return nil, apperrors.NewBadRequest("Unknown status")
	}

	request, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	// Setting an assigned request back to pending would break the invariant
	// that assigned requests are in flight.
	updates := map[string]interface{}{"status": status}
	if status == models.StatusPending && request.AssignmentStatus == models.AssignmentAssigned {
		return nil, apperrors.ErrInvalidTransition.WithMessage("An assigned request cannot return to pending; unassign the volunteer first")
	}

	if err := s.applyVersioned(ctx, request, updates); err != nil {
		return nil, err
	}

	metrics.HelpRequestTransitions.WithLabelValues("status").Inc()
	s.log.Info("help request status updated",
		zap.String("request_id", request.ID),
		zap.String("status", string(status)))

	return s.Get(ctx, sc, id)
}

// Assign binds a volunteer to the request. The volunteer must be an active
// volunteer account in the request's city, and the request must be
// unassigned. A pending request moves to in progress as part of assignment.
func (s *HelpRequestService) Assign(ctx context.Context, sc scope.Scope, id, volunteerID string) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	request, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}

	if request.AssignmentStatus == models.AssignmentAssigned {
		return nil, apperrors.NewConflict("Request already has an assigned volunteer")
	}
	if request.Status == models.StatusCancelled || request.Status == models.StatusFulfilled {
		return nil, apperrors.ErrInvalidTransition.WithMessage("Cannot assign a volunteer to a closed request")
	}

	var volunteer models.User
	err = s.db.WithContext(ctx).First(&volunteer, "id = ?", volunteerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Volunteer not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load volunteer")
	}

	if volunteer.Role != models.RoleVolunteer || !volunteer.IsActive {
		return nil, apperrors.NewBadRequest("Assignee must be an active volunteer")
	}
	if request.CityID == nil || volunteer.CityID == nil || *volunteer.CityID != *request.CityID {
		return nil, apperrors.NewBadRequest("Volunteer must serve the request's city")
	}

	now := s.now()
	updates := map[string]interface{}{
		"assignment_status":     models.AssignmentAssigned,
		"assigned_volunteer_id": volunteer.ID,
		"assigned_at":           now,
	}
	if request.Status == models.StatusPending {
		updates["status"] = models.StatusInProgress
	}

	if err := s.applyVersioned(ctx, request, updates); err != nil {
		return nil, err
	}

	metrics.HelpRequestTransitions.WithLabelValues("assign").Inc()
	s.log.Info("volunteer assigned",
		zap.String("request_id", request.ID),
		zap.String("volunteer_id", volunteer.ID))

	return s.Get(ctx, sc, id)
}

// UnassignInput records who removed the volunteer and why. Reason is
// mandatory; the audit row is written in the same transaction as the
// unassignment so the two can never diverge.
type UnassignInput struct {
	ActorUserID *string
	ActorRole   models.Role
	ActorEmail  string
	Reason      string
	EvidenceURL *string
}

// Unassign removes the volunteer and appends an audit row atomically.
func (s *HelpRequestService) Unassign(ctx context.Context, sc scope.Scope, id string, input UnassignInput) (*models.HelpRequest, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Reason) == "" {
		return nil, apperrors.NewBadRequest("A reason is required to unassign a volunteer")
	}

	request, err := s.Get(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if request.AssignmentStatus != models.AssignmentAssigned {
		return nil, apperrors.ErrInvalidTransition.WithMessage("Request has no assigned volunteer")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Unassigning returns the request to the triage pool.
		result := tx.Model(&models.HelpRequest{}).
			Where("id = ? AND version = ?", request.ID, request.Version).
			Updates(map[string]interface{}{
				"status":                models.StatusPending,
				"assignment_status":     models.AssignmentUnassigned,
				"assigned_volunteer_id": nil,
				"assigned_at":           nil,
				"version":               request.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		audit := models.UnassignmentAudit{
			HelpRequestID: request.ID,
			ActorUserID:   input.ActorUserID,
			ActorRole:     input.ActorRole,
			ActorEmail:    strings.TrimSpace(input.ActorEmail),
			Reason:        strings.TrimSpace(input.Reason),
			EvidenceURL:   input.EvidenceURL,
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(err, "Failed to unassign volunteer")
	}

	metrics.HelpRequestTransitions.WithLabelValues("unassign").Inc()
	s.log.Info("volunteer unassigned",
		zap.String("request_id", request.ID),
		zap.String("actor", input.ActorEmail))

	return s.Get(ctx, sc, id)
}

// ListAudits returns the unassignment history of a request, oldest first.
func (s *HelpRequestService) ListAudits(ctx context.Context, sc scope.Scope, id string) ([]models.UnassignmentAudit, error) {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, sc, id); err != nil {
		return nil, err
	}

	var audits []models.UnassignmentAudit
	err := s.db.WithContext(ctx).
		Where("help_request_id = ?", id).
		Order("created_at ASC").
		Find(&audits).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to list unassignment audits")
	}
	return audits, nil
}

// Delete removes a help request together with its audit history.
func (s *HelpRequestService) Delete(ctx context.Context, sc scope.Scope, id string) error {
	ctx = ensureContext(ctx)

	request, err := s.Get(ctx, sc, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("help_request_id = ?", request.ID).
			Delete(&models.UnassignmentAudit{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.HelpRequest{}, "id = ?", request.ID).Error
	})
	if err != nil {
		return apperrors.Wrap(err, "Failed to delete help request")
	}

	s.log.Info("help request deleted", zap.String("request_id", request.ID))
	return nil
}

func (s *HelpRequestService) applyVersioned(ctx context.Context, request *models.HelpRequest, updates map[string]interface{}) error {
	updates["version"] = request.Version + 1

	result := s.db.WithContext(ctx).
		Model(&models.HelpRequest{}).
		Where("id = ? AND version = ?", request.ID, request.Version).
		Updates(updates)
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "Failed to update help request")
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *HelpRequestService) validateGeography(ctx context.Context, provinceID, cityID *string) error {
	if provinceID == nil && cityID == nil {
		return nil
	}

	if provinceID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Province{}).
			Where("id = ?", *provinceID).Count(&count).Error; err != nil {
			return apperrors.Wrap(err, "Failed to validate province")
		}
		if count == 0 {
			return apperrors.NewBadRequest("Unknown province")
		}
	}

	if cityID != nil {
		var city models.City
		err := s.db.WithContext(ctx).First(&city, "id = ?", *cityID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewBadRequest("Unknown city")
		}
		if err != nil {
			return apperrors.Wrap(err, "Failed to validate city")
		}
		if provinceID != nil && city.ProvinceID != *provinceID {
			return apperrors.NewBadRequest("City does not belong to the given province")
		}
	}
	return nil
}

func scopeCoversRequest(sc scope.Scope, request *models.HelpRequest) bool {
	switch sc.Kind {
	case scope.Unrestricted:
		return true
	case scope.ProvinceScoped:
		return request.ProvinceID != nil && *request.ProvinceID == sc.ProvinceID
	case scope.CityScoped:
		return request.CityID != nil && *request.CityID == sc.CityID
	default:
		return false
	}
}
