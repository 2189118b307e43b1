package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/services"
	"github.com/adeelraza/floodcoord/pkg/response"
)

type GeographyHandler struct {
	geography *services.GeographyService
}

func NewGeographyHandler(geography *services.GeographyService) *GeographyHandler {
	return &GeographyHandler{geography: geography}
}

// GET /api/provinces (public)
func (h *GeographyHandler) ListProvinces(c *gin.Context) {
	provinces, err := h.geography.ListProvinces(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, provinces)
}

// GET /api/provinces/:id/cities (public)
func (h *GeographyHandler) ListCities(c *gin.Context) {
	cities, err := h.geography.ListCities(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, cities)
}
