// Package targets holds the aggregate view counter kept per business. The
// business itself is owned elsewhere; this package only knows its id and
// counter.
package targets

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrTargetNotFound matches every *TargetNotFoundError via errors.Is.
var ErrTargetNotFound = errors.New("target not found")

// TargetNotFoundError represents an error when a target is not found
type TargetNotFoundError struct {
	ID string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target not found: %s", e.ID)
}

func (e *TargetNotFoundError) Is(target error) bool {
	return target == ErrTargetNotFound
}

func NewTargetNotFoundError(id string) *TargetNotFoundError {
	return &TargetNotFoundError{ID: id}
}

// Business is the local record of a business and its view counter.
type Business struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	Name      string    `json:"name"`
	ViewCount int64     `gorm:"not null;default:0" json:"viewCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetBusiness loads a business by id.
func GetBusiness(db *gorm.DB, id string) (*Business, error) {
	var business Business
	if err := db.Where("id = ?", id).First(&business).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewTargetNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying business: %w", err)
	}
	return &business, nil
}

// EnsureBusiness registers a business if it is not known yet. Existing rows
// keep their counter.
func EnsureBusiness(db *gorm.DB, id, name string) (*Business, error) {
	business := Business{ID: id, Name: name}
	if err := db.Where(Business{ID: id}).FirstOrCreate(&business).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure business: %w", err)
	}
	return &business, nil
}
