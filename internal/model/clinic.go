package model

import (
	"github.com/google/uuid"
)

// ClinicSettings is the legacy clinic-wide schedule default, used when a
// doctor's weekly template has no rule for the requested weekday.
type ClinicSettings struct {
	Base
	ClinicID               uuid.UUID `db:"clinic_id" json:"clinic_id"`
	OrganizationID         uuid.UUID `db:"organization_id" json:"organization_id"`
	DefaultStartTime       string    `db:"default_start_time" json:"default_start_time"`
	DefaultEndTime         string    `db:"default_end_time" json:"default_end_time"`
	DefaultIntervalMinutes int       `db:"default_interval_minutes" json:"default_interval_minutes"`
}
