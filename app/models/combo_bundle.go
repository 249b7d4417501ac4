package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Combo durations. Every value except ComboDurationLifetime is a fixed-length
// access window counted from the settlement date.
const (
	ComboDuration1Month   = "1_month"
	ComboDuration3Months  = "3_months"
	ComboDuration6Months  = "6_months"
	ComboDuration1Year    = "1_year"
	ComboDurationLifetime = "lifetime"
)

// ComboBundle sells a fixed, ordered set of courses as one unit with a shared
// access duration. DiscountPrice, when set, wins over DiscountPercentage.
type ComboBundle struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	Name               string              `gorm:"type:varchar(255);not null" json:"name" validate:"required,min=1,max=255"`
	DiscountPercentage int                 `gorm:"not null;default:0" json:"discount_percentage" validate:"gte=0,lte=100"`
	DiscountPrice      *int64              `gorm:"default:null" json:"discount_price,omitempty" validate:"omitempty,gte=0"`
	Duration           string              `gorm:"type:varchar(16);not null;default:'lifetime'" json:"duration" validate:"oneof=1_month 3_months 6_months 1_year lifetime"`
	IsActive           bool                `gorm:"default:true;index" json:"is_active"`
	Items              []ComboBundleCourse `gorm:"foreignKey:ComboBundleID" json:"items,omitempty"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComboBundleCourse links a course into a bundle at a fixed position.
type ComboBundleCourse struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	ComboBundleID uint `gorm:"not null;index:ux_combo_bundle_courses,unique,priority:1" json:"combo_bundle_id"`
	CourseID      uint `gorm:"not null;index:ux_combo_bundle_courses,unique,priority:2;index" json:"course_id"`
	Position      int  `gorm:"not null;default:0" json:"position"`
}

func (b *ComboBundle) Validate() error {
	v := validator.New()
	return v.Struct(b)
}

// IsLifetime reports whether the bundle grants access without expiry.
func (b *ComboBundle) IsLifetime() bool {
	return b.Duration == ComboDurationLifetime
}

// CourseIDs returns the member course ids in bundle order.
func (b *ComboBundle) CourseIDs() []uint {
	ids := make([]uint, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.CourseID)
	}
	return ids
}

// Contains reports whether courseID is a member of the bundle.
func (b *ComboBundle) Contains(courseID uint) bool {
	for _, item := range b.Items {
		if item.CourseID == courseID {
			return true
		}
	}
	return false
}
