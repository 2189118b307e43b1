package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/models"
	"github.com/adeelraza/floodcoord/internal/scope"
	"github.com/adeelraza/floodcoord/internal/services"
	appErrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/response"
)

type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	filter := services.ListUsersFilter{
		Role: models.Role(c.Query("role")),
	}
	if value := strings.TrimSpace(c.Query("is_active")); value != "" {
		active := value == "true"
		filter.IsActive = &active
	}

	page := paginationFrom(c)
	users, total, err := h.users.List(requestContext(c), sc, filter, page)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, metaFor(page, total))
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if sc.Kind != scope.Unrestricted {
		if !sc.AllowsProvince(user.ProvinceID) && !sc.AllowsCity(user.CityID) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	}

	response.Success(c, http.StatusOK, user)
}

// PATCH /api/users/:id/active
func (h *UserHandler) SetActive(c *gin.Context) {
	_, sc, ok := scopeOrAbort(c)
	if !ok {
		return
	}

	var req setActiveRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.SetActive(requestContext(c), sc, c.Param("id"), *req.IsActive)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
