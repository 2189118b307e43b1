package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnassignmentAudit records one volunteer unassignment event. Rows are
// append-only and live and die with their parent help request.
type UnassignmentAudit struct {
	ID            string  `gorm:"primaryKey;type:uuid" json:"id"`
	HelpRequestID string  `gorm:"type:uuid;not null;index" json:"help_request_id"`
	ActorUserID   *string `gorm:"type:uuid" json:"actor_user_id,omitempty"`
	ActorRole     Role    `gorm:"not null" json:"actor_role"`
	ActorEmail    string  `gorm:"not null" json:"actor_email"`
	Reason        string  `gorm:"not null" json:"reason"`
	EvidenceURL   *string `json:"evidence_url,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *UnassignmentAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
