package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adeelraza/floodcoord/internal/middleware"
	"github.com/adeelraza/floodcoord/internal/scope"
	"github.com/adeelraza/floodcoord/internal/services"
	appErrors "github.com/adeelraza/floodcoord/pkg/errors"
	"github.com/adeelraza/floodcoord/pkg/response"

	iauth "github.com/adeelraza/floodcoord/internal/auth"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// claimsOrAbort pulls the authenticated claims, writing a 401 when absent.
func claimsOrAbort(c *gin.Context) (*iauth.Claims, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// scopeOrAbort resolves the caller's geography scope, writing the error
// response when resolution fails.
func scopeOrAbort(c *gin.Context) (*iauth.Claims, scope.Scope, bool) {
	claims, ok := claimsOrAbort(c)
	if !ok {
		return nil, scope.Scope{}, false
	}

	sc, err := scope.Resolve(claims)
	if err != nil {
		response.Error(c, err)
		return nil, scope.Scope{}, false
	}
	return claims, sc, true
}

func paginationFrom(c *gin.Context) services.Pagination {
	return services.Pagination{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 0),
	}
}

// parseDateQuery reads an optional date query parameter, accepting either a
// bare date or a full RFC 3339 timestamp. A false return means an error
// response was already written.
func parseDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, true
		}
	}
	response.Error(c, appErrors.NewBadRequest(fmt.Sprintf("Invalid %s, expected YYYY-MM-DD or RFC 3339", name)))
	return nil, false
}

func metaFor(page services.Pagination, total int64) *response.Meta {
	normPage := page.Page
	if normPage < 1 {
		normPage = 1
	}
	perPage := page.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return &response.Meta{
		Page:       normPage,
		PerPage:    perPage,
		Total:      total,
		TotalPages: page.TotalPages(total),
	}
}
