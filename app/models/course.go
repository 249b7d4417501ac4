package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Course is a sellable unit of content. Prices are stored in the smallest
// currency unit.
type Course struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=1,max=255"`
	InstructorID    uint      `gorm:"not null;index" json:"instructor_id"`
	Price           int64     `gorm:"not null" json:"price" validate:"gt=0"`
	DurationMinutes int       `gorm:"default:0" json:"duration_minutes" validate:"gte=0"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Course) Validate() error {
	v := validator.New()
	return v.Struct(c)
}
