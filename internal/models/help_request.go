package models

import "time"

// RequestType categorises the kind of help being asked for.
type RequestType string

const (
	RequestTypeMedical    RequestType = "medical"
	RequestTypeFood       RequestType = "food"
	RequestTypeEvacuation RequestType = "evacuation"
	RequestTypeClothes    RequestType = "clothes"
	RequestTypeEmergency  RequestType = "emergency"
)

// Valid reports whether the request type is recognised.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeMedical, RequestTypeFood, RequestTypeEvacuation, RequestTypeClothes, RequestTypeEmergency:
		return true
	}
	return false
}

// RequestPriority is a triage hint set by coordinators.
type RequestPriority string

const (
	PriorityLow      RequestPriority = "low"
	PriorityMedium   RequestPriority = "medium"
	PriorityHigh     RequestPriority = "high"
	PriorityCritical RequestPriority = "critical"
)

// Valid reports whether the priority is recognised.
func (p RequestPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// RequestStatus is the coarse lifecycle state of a help request. Any status
// may be set by an authorized actor; there is no transition table.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusInProgress RequestStatus = "in_progress"
	StatusFulfilled  RequestStatus = "fulfilled"
	StatusCancelled  RequestStatus = "cancelled"
	StatusOnHold     RequestStatus = "on_hold"
)

// Valid reports whether the status is one of the five lifecycle states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusFulfilled, StatusCancelled, StatusOnHold:
		return true
	}
	return false
}

// AssignmentStatus tracks the orthogonal volunteer assignment sub-state.
type AssignmentStatus string

const (
	AssignmentUnassigned AssignmentStatus = "unassigned"
	AssignmentAssigned   AssignmentStatus = "assigned"
)

// HelpRequest is a plea for assistance submitted by an affected individual.
// Invariant: AssignmentStatus == assigned implies AssignedVolunteerID != nil
// and Status != pending.
type HelpRequest struct {
	BaseModel

	RequestorName  string  `gorm:"not null" json:"requestor_name"`
	RequestorPhone string  `gorm:"not null;index" json:"requestor_phone"`
	RequestorEmail *string `json:"requestor_email,omitempty"`

	Type        RequestType     `gorm:"not null;index" json:"type"`
	Description string          `gorm:"not null" json:"description"`
	Priority    RequestPriority `gorm:"not null;default:medium" json:"priority"`

	Latitude  float64 `gorm:"not null" json:"latitude"`
	Longitude float64 `gorm:"not null" json:"longitude"`

	ProvinceID *string `gorm:"type:uuid;index" json:"province_id,omitempty"`
	CityID     *string `gorm:"type:uuid;index" json:"city_id,omitempty"`

	Status           RequestStatus    `gorm:"not null;default:pending;index" json:"status"`
	AssignmentStatus AssignmentStatus `gorm:"not null;default:unassigned;index" json:"assignment_status"`

	AssignedVolunteerID *string    `gorm:"type:uuid;index" json:"assigned_volunteer_id,omitempty"`
	AssignedVolunteer   *User      `gorm:"foreignKey:AssignedVolunteerID" json:"assigned_volunteer,omitempty"`
	AssignedAt          *time.Time `json:"assigned_at,omitempty"`

	// Version serialises concurrent mutations per request; every write checks
	// and increments it.
	Version int64 `gorm:"not null;default:0" json:"-"`

	UnassignmentAudits []UnassignmentAudit `gorm:"foreignKey:HelpRequestID;constraint:OnDelete:CASCADE" json:"-"`
}
