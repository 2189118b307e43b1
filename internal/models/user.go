package models

import "time"

// Role identifies the authorization tier of an account. Roles travel over the
// wire as stable strings.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleProvinceAdmin Role = "province_admin"
	RoleVolunteer     Role = "volunteer"
	RoleDonor         Role = "donor"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleProvinceAdmin, RoleVolunteer, RoleDonor:
		return true
	}
	return false
}

// User is an authenticated account. Province and city bindings define the
// geography the account may act within; super admins carry neither.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FullName string `json:"full_name"`
	Phone    string `json:"phone"`

	Role       Role    `gorm:"not null;index" json:"role"`
	ProvinceID *string `gorm:"type:uuid;index" json:"province_id,omitempty"`
	CityID     *string `gorm:"type:uuid;index" json:"city_id,omitempty"`

	Province *Province `json:"province,omitempty"`
	City     *City     `json:"city,omitempty"`

	// Accounts referenced by audit rows are disabled, never deleted.
	IsActive bool `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
