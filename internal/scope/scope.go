package scope

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/adeelraza/floodcoord/internal/models"
	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
)

// ErrScopeMisconfigured is returned when an account is missing the geography
// its role requires. It indicates a provisioning defect, not a caller error.
var ErrScopeMisconfigured = apperrors.New("SCOPE_MISCONFIGURED",
	"Account has no geography assigned for its role", http.StatusInternalServerError)

// Kind enumerates the breadth of a principal's geographic reach.
type Kind int

const (
	// Unrestricted grants access to every province and city.
	Unrestricted Kind = iota
	// ProvinceScoped restricts access to a single province.
	ProvinceScoped
	// CityScoped restricts access to a single city.
	CityScoped
)

// Principal is the authenticated identity a scope is derived from. It is
// satisfied by JWT claims directly so no database round trip is needed.
type Principal interface {
	GetRole() models.Role
	GetProvinceID() *string
	GetCityID() *string
}

// Scope is the geography filter computed for a principal. Every list and
// detail query goes through Apply; every cross-geography write goes through
// AllowsProvince/AllowsCity. Centralising this closes the class of
// "forgot to scope this endpoint" bugs.
type Scope struct {
	Kind       Kind
	ProvinceID string
	CityID     string
}

// Resolve computes the scope for a principal.
func Resolve(p Principal) (Scope, error) {
	switch p.GetRole() {
	case models.RoleSuperAdmin:
		return Scope{Kind: Unrestricted}, nil

	case models.RoleProvinceAdmin:
		provinceID := p.GetProvinceID()
		if provinceID == nil || *provinceID == "" {
			return Scope{}, ErrScopeMisconfigured
		}
		return Scope{Kind: ProvinceScoped, ProvinceID: *provinceID}, nil

	case models.RoleVolunteer:
		cityID := p.GetCityID()
		if cityID == nil || *cityID == "" {
			return Scope{}, ErrScopeMisconfigured
		}
		return Scope{Kind: CityScoped, CityID: *cityID}, nil

	default:
		// Donors and unknown roles hold no administrative geography.
		return Scope{}, apperrors.ErrForbidden
	}
}

// Apply restricts a query to the scope's geography using the standard
// province_id / city_id column names.
func (s Scope) Apply(query *gorm.DB) *gorm.DB {
	return s.ApplyColumns(query, "province_id", "city_id")
}

// ApplyColumns restricts a query to the scope's geography with explicit
// column names for tables that alias them.
func (s Scope) ApplyColumns(query *gorm.DB, provinceColumn, cityColumn string) *gorm.DB {
	switch s.Kind {
	case ProvinceScoped:
		return query.Where(provinceColumn+" = ?", s.ProvinceID)
	case CityScoped:
		return query.Where(cityColumn+" = ?", s.CityID)
	default:
		return query
	}
}

// AllowsProvince reports whether the scope covers the given province.
func (s Scope) AllowsProvince(provinceID *string) bool {
	switch s.Kind {
	case Unrestricted:
		return true
	case ProvinceScoped:
		return provinceID != nil && *provinceID == s.ProvinceID
	default:
		return false
	}
}

// AllowsCity reports whether the scope covers the given city. Province-scoped
// callers must resolve the city's province via AllowsCityInProvince.
func (s Scope) AllowsCity(cityID *string) bool {
	switch s.Kind {
	case Unrestricted:
		return true
	case CityScoped:
		return cityID != nil && *cityID == s.CityID
	default:
		return false
	}
}

// AllowsCityInProvince reports whether the scope covers a city that belongs
// to the given province.
func (s Scope) AllowsCityInProvince(cityID *string, provinceID string) bool {
	switch s.Kind {
	case Unrestricted:
		return true
	case ProvinceScoped:
		return provinceID == s.ProvinceID
	case CityScoped:
		return cityID != nil && *cityID == s.CityID
	default:
		return false
	}
}
