package models

// DonationType distinguishes cash gifts from in-kind pledges.
type DonationType string

const (
	DonationCash          DonationType = "cash"
	DonationOtherSupplies DonationType = "other_supplies"
)

// Valid reports whether the donation type is recognised.
func (t DonationType) Valid() bool {
	return t == DonationCash || t == DonationOtherSupplies
}

// DonationStatus tracks the payment and distribution lifecycle.
// pending -> approved|rejected (payment provider), approved -> distributed
// (manual admin action). rejected and distributed are terminal.
type DonationStatus string

const (
	DonationPending     DonationStatus = "pending"
	DonationApproved    DonationStatus = "approved"
	DonationRejected    DonationStatus = "rejected"
	DonationDistributed DonationStatus = "distributed"
)

// Donation is a financial record; it is always persisted, never held in
// process memory.
type Donation struct {
	BaseModel

	DonorName          string `gorm:"not null" json:"donor_name"`
	DonorAccountNumber string `gorm:"not null;index" json:"donor_account_number"`
	Email              string `gorm:"not null;index" json:"email"`

	Type DonationType `gorm:"not null;index" json:"type"`

	// Cash donations carry Amount (minor units); in-kind donations carry
	// Quantity and/or Description.
	Amount      *int64  `json:"amount,omitempty"`
	Quantity    *int    `json:"quantity,omitempty"`
	Description *string `json:"description,omitempty"`

	IsRecurring bool `gorm:"default:false" json:"is_recurring"`

	PaymentSessionID *string `gorm:"index" json:"-"`
	ReceiptNumber    string  `gorm:"index" json:"receipt_number,omitempty"`

	Status DonationStatus `gorm:"not null;default:pending;index" json:"status"`

	// Version serialises concurrent webhook deliveries for the same donation.
	Version int64 `gorm:"not null;default:0" json:"-"`
}
