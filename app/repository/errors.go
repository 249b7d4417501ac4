package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseGate/internal/pkg/apperr"
)

// notFound maps gorm's sentinel to the application one so callers do not
// depend on the storage driver.
func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, apperr.ErrNotFound)
	}
	return err
}
