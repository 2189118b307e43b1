package models

import "time"

// InvitationStatus is the lifecycle state of an invitation. accepted, expired
// and revoked are terminal.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation binds a future account to a role and geography via a single-use
// token. Only the token hash is persisted. At most one pending invitation may
// exist per email.
type Invitation struct {
	BaseModel

	Email     string `gorm:"not null;index" json:"email"`
	TokenHash string `gorm:"uniqueIndex;not null" json:"-"`

	Role       Role    `gorm:"not null" json:"role"`
	ProvinceID *string `gorm:"type:uuid" json:"province_id,omitempty"`
	CityID     *string `gorm:"type:uuid" json:"city_id,omitempty"`

	Status    InvitationStatus `gorm:"not null;default:pending;index" json:"status"`
	ExpiresAt time.Time        `gorm:"index" json:"expires_at"`

	CreatedByID string     `gorm:"type:uuid;not null" json:"created_by_id"`
	CreatedBy   *User      `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
}
