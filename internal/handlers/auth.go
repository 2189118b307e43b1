package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/services"
	appErrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/response"
)

type AuthHandler struct {
	auth  *services.AuthService
	users *services.UserService
}

func NewAuthHandler(auth *services.AuthService, users *services.UserService) *AuthHandler {
	return &AuthHandler{auth: auth, users: users}
}

type loginRequest struct {
	// Identifier accepts an email address or a username. The wire field is
	// named email because that is the common case.
	Identifier string `json:"email" validate:"required,max=255"`
	Password   string `json:"password" validate:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,min=4,max=12"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.BeginLogin(requestContext(c), req.Identifier, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.CompleteLogin(requestContext(c), req.Email, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := claimsOrAbort(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(requestContext(c), claims.UserID)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, user)
}
