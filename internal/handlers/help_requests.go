package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/services"
	"github.com/adeelraza/floodcoord/pkg/response"
)

type HelpRequestHandler struct {
	requests *services.HelpRequestService
}

func NewHelpRequestHandler(requests *services.HelpRequestService) *HelpRequestHandler {
	return &HelpRequestHandler{requests: requests}
}

type submitHelpRequest struct {
	RequestorName  string  `json:"requestor_name" validate:"omitempty,max=128"`
	RequestorPhone string  `json:"requestor_phone" validate:"required,phone"`
	RequestorEmail *string `json:"requestor_email" validate:"omitempty,email"`

	Type        string `json:"type" validate:"required"`
	Description string `json:"description" validate:"required,max=2000"`
	Priority    string `json:"priority" validate:"omitempty"`

	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`

	ProvinceID *string `json:"province_id" validate:"omitempty,uuid4"`
	CityID     *string `json:"city_id" validate:"omitempty,uuid4"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type assignRequest struct {
	VolunteerID string `json:"volunteer_id" validate:"required,uuid4"`
}

type unassignRequest struct {
	Reason      string  `json:"reason" validate:"required,max=1000"`
	EvidenceURL *string `json:"evidence_url" validate:"omitempty,url"`
}

// POST /api/helpRequest (public, no authentication)
func (h *HelpRequestHandler) Submit(c *gin.Context) {
	var req submitHelpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.requests.Submit(requestContext(c), services.SubmitHelpRequestInput{
		RequestorName:  req.RequestorName,
		RequestorPhone: req.RequestorPhone,
		RequestorEmail: req.RequestorEmail,
		Type:           models.RequestType(req.Type),
		Description:    req.Description,
		Priority:       models.RequestPriority(req.Priority),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ProvinceID:     req.ProvinceID,
		CityID:         req.CityID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, request)
}

// GET /api/helpRequest
func (h *HelpRequestHandler) List(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	filter := services.HelpRequestFilter{
		Status:           models.RequestStatus(c.Query("status")),
		Type:             models.RequestType(c.Query("type")),
		Priority:         models.RequestPriority(c.Query("priority")),
		AssignmentStatus: models.AssignmentStatus(c.Query("assignment_status")),
		VolunteerID:      c.Query("volunteer_id"),
		Search:           c.Query("search"),
	}
	if after, ok := parseDateQuery(c, "start_date"); ok {
		filter.SubmittedAfter = after
	} else {
		return
	}
	if before, ok := parseDateQuery(c, "end_date"); ok {
		filter.SubmittedBefore = before
	} else {
		return
	}
	page := paginationFrom(c)

	requests, total, err := h.requests.List(requestContext(c), sc, filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, requests, metaFor(page, total))
}

// GET /api/helpRequest/:id
func (h *HelpRequestHandler) Get(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	request, err := h.requests.Get(requestContext(c), sc, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

// PUT /api/helpRequest/:id/status
func (h *HelpRequestHandler) UpdateStatus(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.requests.UpdateStatus(requestContext(c), sc, c.Param("id"), models.RequestStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

// POST /api/helpRequest/:id/assign
func (h *HelpRequestHandler) Assign(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	var req assignRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.requests.Assign(requestContext(c), sc, c.Param("id"), req.VolunteerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

// POST /api/helpRequest/:id/unassign
func (h *HelpRequestHandler) Unassign(c *gin.Context) {
	claims, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	var req unassignRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.requests.Unassign(requestContext(c), sc, c.Param("id"), services.UnassignInput{
		ActorUserID: &claims.UserID,
		ActorRole:   claims.Role,
		ActorEmail:  claims.Email,
		Reason:      req.Reason,
		EvidenceURL: req.EvidenceURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, request)
}

// GET /api/helpRequest/:id/audits
func (h *HelpRequestHandler) ListAudits(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	audits, err := h.requests.ListAudits(requestContext(c), sc, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, audits)
}

// DELETE /api/helpRequest/:id
func (h *HelpRequestHandler) Delete(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	if err := h.requests.Delete(requestContext(c), sc, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
