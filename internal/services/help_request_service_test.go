package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
)

func newRequestService(t *testing.T, db *gorm.DB) *HelpRequestService {
	t.Helper()
	svc, err := NewHelpRequestService(db)
	require.NoError(t, err)
	return svc
}

func submitRequest(t *testing.T, svc *HelpRequestService, geo testGeo, cityID *string, provinceID *string) *models.HelpRequest {
	t.Helper()
	request, err := svc.Submit(context.Background(), SubmitHelpRequestInput{
		RequestorName:  "Ahmed Khan",
		RequestorPhone: "+923001234567",
		Type:           models.RequestTypeFood,
		Description:    "Family of five stranded without supplies",
		Latitude:       31.52,
		Longitude:      74.35,
		ProvinceID:     provinceID,
		CityID:         cityID,
	})
	require.NoError(t, err)
	return request
}

func TestSubmitHelpRequest(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	require.Equal(t, models.StatusPending, request.Status)
	require.Equal(t, models.AssignmentUnassigned, request.AssignmentStatus)
	require.Equal(t, models.PriorityMedium, request.Priority)
	require.Nil(t, request.AssignedVolunteerID)
}

func TestSubmitRejectsMismatchedGeography(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	_, err := svc.Submit(context.Background(), SubmitHelpRequestInput{
		RequestorName:  "Ahmed Khan",
		RequestorPhone: "+923001234567",
		Type:           models.RequestTypeMedical,
		Description:    "Need insulin",
		Latitude:       24.86,
		Longitude:      67.0,
		ProvinceID:     &geo.Sindh.ID,
		CityID:         &geo.Lahore.ID,
	})
	require.Error(t, err)
}

func TestSubmitRejectsMissingCoordinates(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	input := SubmitHelpRequestInput{
		RequestorPhone: "+923001234567",
		Type:           models.RequestTypeEvacuation,
		Description:    "Water rising, roof access only",
		ProvinceID:     &geo.Punjab.ID,
		CityID:         &geo.Lahore.ID,
	}

	_, err := svc.Submit(context.Background(), input)
	require.Error(t, err)

	input.Latitude = 31.5
	_, err = svc.Submit(context.Background(), input)
	require.Error(t, err)

	input.Longitude = 74.3
	request, err := svc.Submit(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "Anonymous", request.RequestorName)
}

func TestListScopeContainment(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)
	submitRequest(t, svc, geo, &geo.Multan.ID, &geo.Punjab.ID)
	submitRequest(t, svc, geo, &geo.Karachi.ID, &geo.Sindh.ID)

	all, total, err := svc.List(context.Background(), unrestrictedScope(), HelpRequestFilter{}, Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, all, 3)

	punjab, total, err := svc.List(context.Background(), provinceScope(geo.Punjab.ID), HelpRequestFilter{}, Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	for _, r := range punjab {
		require.Equal(t, geo.Punjab.ID, *r.ProvinceID)
	}

	lahore, total, err := svc.List(context.Background(), cityScope(geo.Lahore.ID), HelpRequestFilter{}, Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, geo.Lahore.ID, *lahore[0].CityID)
}

func TestGetOutOfScopeIsForbidden(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	request := submitRequest(t, svc, geo, &geo.Karachi.ID, &geo.Sindh.ID)

	_, err := svc.Get(context.Background(), provinceScope(geo.Punjab.ID), request.ID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)
}

func TestAssignMovesPendingToInProgress(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	volunteer := seedUser(t, db, models.RoleVolunteer, &geo.Punjab.ID, &geo.Lahore.ID)
	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	updated, err := svc.Assign(context.Background(), unrestrictedScope(), request.ID, volunteer.ID)
	require.NoError(t, err)

	require.Equal(t, models.AssignmentAssigned, updated.AssignmentStatus)
	require.Equal(t, models.StatusInProgress, updated.Status)
	require.NotNil(t, updated.AssignedVolunteerID)
	require.Equal(t, volunteer.ID, *updated.AssignedVolunteerID)
	require.NotNil(t, updated.AssignedAt)
}

func TestAssignRejectsVolunteerFromOtherCity(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	volunteer := seedUser(t, db, models.RoleVolunteer, &geo.Sindh.ID, &geo.Karachi.ID)
	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	_, err := svc.Assign(context.Background(), unrestrictedScope(), request.ID, volunteer.ID)
	require.Error(t, err)
}

func TestAssignRejectsDoubleAssignment(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	first := seedUser(t, db, models.RoleVolunteer, &geo.Punjab.ID, &geo.Lahore.ID)
	second := seedUser(t, db, models.RoleVolunteer, &geo.Punjab.ID, &geo.Lahore.ID)
	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	_, err := svc.Assign(context.Background(), unrestrictedScope(), request.ID, first.ID)
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), unrestrictedScope(), request.ID, second.ID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrConflict.Code, appErr.Code)
}

func TestUnassignRequiresReasonAndWritesAudit(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	volunteer := seedUser(t, db, models.RoleVolunteer, &geo.Punjab.ID, &geo.Lahore.ID)
	admin := seedUser(t, db, models.RoleProvinceAdmin, &geo.Punjab.ID, nil)
	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	_, err := svc.Assign(context.Background(), unrestrictedScope(), request.ID, volunteer.ID)
	require.NoError(t, err)

	_, err = svc.Unassign(context.Background(), unrestrictedScope(), request.ID, UnassignInput{
		ActorUserID: &admin.ID,
		ActorRole:   admin.Role,
		ActorEmail:  admin.Email,
	})
	require.Error(t, err)

	updated, err := svc.Unassign(context.Background(), unrestrictedScope(), request.ID, UnassignInput{
		ActorUserID: &admin.ID,
		ActorRole:   admin.Role,
		ActorEmail:  admin.Email,
		Reason:      "Volunteer unreachable for 48 hours",
	})
	require.NoError(t, err)

	require.Equal(t, models.StatusPending, updated.Status)
	require.Equal(t, models.AssignmentUnassigned, updated.AssignmentStatus)
	require.Nil(t, updated.AssignedVolunteerID)
	require.Nil(t, updated.AssignedAt)

	audits, err := svc.ListAudits(context.Background(), unrestrictedScope(), request.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, "Volunteer unreachable for 48 hours", audits[0].Reason)
	require.Equal(t, admin.Email, audits[0].ActorEmail)
}

func TestStatusCannotReturnToPendingWhileAssigned(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	volunteer := seedUser(t, db, models.RoleVolunteer, &geo.Punjab.ID, &geo.Lahore.ID)
	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	_, err := svc.Assign(context.Background(), unrestrictedScope(), request.ID, volunteer.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), unrestrictedScope(), request.ID, models.StatusPending)
	require.Error(t, err)

	// All other states remain reachable, including reopening.
	for _, status := range []models.RequestStatus{
		models.StatusOnHold,
		models.StatusFulfilled,
		models.StatusInProgress,
	} {
		updated, err := svc.UpdateStatus(context.Background(), unrestrictedScope(), request.ID, status)
		require.NoError(t, err)
		require.Equal(t, status, updated.Status)
	}
}

func TestConcurrentWriteLosesOnVersion(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	// Simulate a concurrent writer bumping the version under us.
	require.NoError(t, db.Model(&models.HelpRequest{}).
		Where("id = ?", request.ID).
		Update("version", request.Version+1).Error)

	err := svc.applyVersioned(context.Background(), request, map[string]interface{}{
		"status": models.StatusOnHold,
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrConflict.Code, appErr.Code)
}

func TestDeleteRemovesAuditTrail(t *testing.T) {
	db := newTestDB(t)
	geo := seedGeo(t, db)
	svc := newRequestService(t, db)

	volunteer := seedUser(t, db, models.RoleVolunteer, &geo.Punjab.ID, &geo.Lahore.ID)
	request := submitRequest(t, svc, geo, &geo.Lahore.ID, &geo.Punjab.ID)

	_, err := svc.Assign(context.Background(), unrestrictedScope(), request.ID, volunteer.ID)
	require.NoError(t, err)
	_, err = svc.Unassign(context.Background(), unrestrictedScope(), request.ID, UnassignInput{
		ActorRole:  models.RoleSuperAdmin,
		ActorEmail: "root@example.com",
		Reason:     "Reassignment during triage",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), unrestrictedScope(), request.ID))

	var audits int64
	require.NoError(t, db.Model(&models.UnassignmentAudit{}).
		Where("help_request_id = ?", request.ID).Count(&audits).Error)
	require.Zero(t, audits)
}
