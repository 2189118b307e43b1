package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/services"
	"github.com/adeelraza/floodcoord/pkg/response"
)

type InvitationHandler struct {
	invitations *services.InvitationService
}

func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

type createInvitationRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	Role       string  `json:"role" validate:"required"`
	ProvinceID *string `json:"province_id" validate:"omitempty,uuid4"`
	CityID     *string `json:"city_id" validate:"omitempty,uuid4"`
}

type acceptInvitationRequest struct {
	Token    string `json:"token" validate:"required"`
	Username string `json:"username" validate:"omitempty,min=3,max=64"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"omitempty,max=128"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

type invitationCreatedResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	Token      string             `json:"token"`
}

// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	claims, ok := claimsOrAbort(c)
	if !ok {
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invitations.Create(requestContext(c), services.Inviter{
		UserID:     claims.UserID,
		Role:       claims.Role,
		ProvinceID: claims.ProvinceID,
	}, services.CreateInvitationInput{
		Email:      req.Email,
		Role:       models.Role(req.Role),
		ProvinceID: req.ProvinceID,
		CityID:     req.CityID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitationCreatedResponse{
		Invitation: result.Invitation,
		Token:      result.Token,
	})
}

// POST /api/invitations/accept (public)
func (h *InvitationHandler) Accept(c *gin.Context) {
	var req acceptInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.invitations.Accept(requestContext(c), services.AcceptInvitationInput{
		Token:    req.Token,
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	page := paginationFrom(c)
	invitations, total, err := h.invitations.List(requestContext(c), sc, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, invitations, metaFor(page, total))
}

// POST /api/invitations/:id/resend
func (h *InvitationHandler) Resend(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	result, err := h.invitations.Resend(requestContext(c), sc, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitationCreatedResponse{
		Invitation: result.Invitation,
		Token:      result.Token,
	})
}

// DELETE /api/invitations/:id
func (h *InvitationHandler) Revoke(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	if err := h.invitations.Revoke(requestContext(c), sc, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
