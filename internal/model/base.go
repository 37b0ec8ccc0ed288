package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

// DateOnly truncates t to midnight UTC. Slot dates are always compared
// at day granularity, independent of the wall clock they arrived with.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a date the way it is keyed throughout the subsystem.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
