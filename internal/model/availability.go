package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AbsenceType string

const (
	AbsenceTypeVacation   AbsenceType = "vacation"
	AbsenceTypeLeave      AbsenceType = "leave"
	AbsenceTypeConference AbsenceType = "conference"
	AbsenceTypeOther      AbsenceType = "other"
)

// DoctorAbsence blocks a whole date range, both ends inclusive.
type DoctorAbsence struct {
	ID        uuid.UUID   `json:"id"`
	DoctorID  uuid.UUID   `json:"doctor_id"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Reason    string      `json:"reason"`
	Type      AbsenceType `json:"type"`
}

// Contains reports whether date falls inside the absence range.
func (a DoctorAbsence) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(a.StartDate)) && !d.After(DateOnly(a.EndDate))
}

// TimePeriod is a sub-day window in "HH:MM" wall time, start inclusive,
// end exclusive.
type TimePeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DayRule is the weekly template entry for one weekday. Breaks carve
// disabled sub-windows (lunch pauses) out of the working range.
type DayRule struct {
	Enabled         bool         `json:"enabled"`
	StartTime       string       `json:"start_time"`
	EndTime         string       `json:"end_time"`
	IntervalMinutes int          `json:"interval_minutes"`
	Breaks          []TimePeriod `json:"breaks,omitempty"`
}

type WeekSchedule map[time.Weekday]DayRule

func (s WeekSchedule) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *WeekSchedule) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for week schedule", src)
	}
	return json.Unmarshal(b, s)
}

type AbsenceList []DoctorAbsence

func (l AbsenceList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]DoctorAbsence{})
	}
	return json.Marshal(l)
}

func (l *AbsenceList) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for absence list", src)
	}
	return json.Unmarshal(b, l)
}

// DoctorAvailability is the per-doctor weekly template plus absence
// calendar and advance-booking window. Authored by the admin UI,
// read-only input to the booking path.
type DoctorAvailability struct {
	Base
	DoctorID              uuid.UUID    `db:"doctor_id" json:"doctor_id"`
	OrganizationID        uuid.UUID    `db:"organization_id" json:"organization_id"`
	WeekSchedule          WeekSchedule `db:"week_schedule" json:"week_schedule"`
	Absences              AbsenceList  `db:"absences" json:"absences"`
	AdvanceBookingDays    int          `db:"advance_booking_days" json:"advance_booking_days"`
	MaxAppointmentsPerDay *int         `db:"max_appointments_per_day" json:"max_appointments_per_day,omitempty"`
}

// AbsenceFor returns the absence covering date, if any.
func (a *DoctorAvailability) AbsenceFor(date time.Time) *DoctorAbsence {
	for i := range a.Absences {
		if a.Absences[i].Contains(date) {
			return &a.Absences[i]
		}
	}
	return nil
}

// AvailabilityResult reports the outcome of a slot-rule evaluation.
type AvailabilityResult struct {
	IsAvailable    bool        `json:"is_available"`
	Reason         string      `json:"reason,omitempty"`
	SuggestedDates []time.Time `json:"suggested_dates,omitempty"`
}

type AddAbsenceRequest struct {
	DoctorID       uuid.UUID   `json:"doctor_id" binding:"required"`
	OrganizationID uuid.UUID   `json:"organization_id" binding:"required"`
	StartDate      time.Time   `json:"start_date" binding:"required"`
	EndDate        time.Time   `json:"end_date" binding:"required"`
	Reason         string      `json:"reason"`
	Type           AbsenceType `json:"type"`
}

type SaveAvailabilityRequest struct {
	DoctorID              uuid.UUID    `json:"doctor_id" binding:"required"`
	OrganizationID        uuid.UUID    `json:"organization_id" binding:"required"`
	WeekSchedule          WeekSchedule `json:"week_schedule" binding:"required"`
	Absences              AbsenceList  `json:"absences"`
	AdvanceBookingDays    int          `json:"advance_booking_days" binding:"required,min=1"`
	MaxAppointmentsPerDay *int         `json:"max_appointments_per_day"`
}
