package models

import "time"

const (
	PlanSingle    = "single"
	PlanQuarterly = "quarterly"
	PlanCombo     = "combo"
	PlanKit       = "kit"
	PlanSchool    = "school"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
)

// Purchase is the ledger record of a checkout. It is created pending and
// moves exactly once to approved or rejected. EndDate is a cached result of
// the duration rule; access decisions always recompute it.
type Purchase struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	UserID        uint         `gorm:"not null;index:idx_purchases_user_status,priority:1" json:"user_id"`
	PlanType      string       `gorm:"type:varchar(16);not null;index" json:"plan_type"`
	CourseID      *uint        `gorm:"default:null;index" json:"course_id,omitempty"`
	ComboBundleID *uint        `gorm:"default:null;index" json:"combo_bundle_id,omitempty"`
	Price         int64        `gorm:"not null" json:"price"`
	PaymentStatus string       `gorm:"type:varchar(16);not null;default:'pending';index:idx_purchases_user_status,priority:2" json:"payment_status"`
	StartDate     *time.Time   `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate       *time.Time   `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	SettledAt     *time.Time   `gorm:"type:timestamp;default:null" json:"settled_at,omitempty"`
	Course        *Course      `gorm:"foreignKey:CourseID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"course,omitempty"`
	ComboBundle   *ComboBundle `gorm:"foreignKey:ComboBundleID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"combo_bundle,omitempty"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the purchase still awaits settlement.
func (p *Purchase) IsPending() bool {
	return p.PaymentStatus == PaymentStatusPending
}

// IsApproved reports whether payment for the purchase went through.
func (p *Purchase) IsApproved() bool {
	return p.PaymentStatus == PaymentStatusApproved
}

// IsValidPlanType reports whether plan is one of the known plan types.
func IsValidPlanType(plan string) bool {
	switch plan {
	case PlanSingle, PlanQuarterly, PlanCombo, PlanKit, PlanSchool:
		return true
	default:
		return false
	}
}
