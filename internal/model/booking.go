package model

import (
	"time"

	"github.com/google/uuid"
)

const RoleSuperAdmin = "super_admin"

// Actor is the authenticated principal driving a request.
type Actor struct {
	UserID   uuid.UUID `json:"user_id"`
	ClinicID uuid.UUID `json:"clinic_id"`
	Role     string    `json:"role"`
}

// CanAccessClinic enforces tenant isolation: writes are confined to the
// actor's own clinic unless the actor is a super admin.
func (a Actor) CanAccessClinic(clinicID uuid.UUID) bool {
	return a.Role == RoleSuperAdmin || a.ClinicID == clinicID
}

// BookingRequest drives one booking transaction. Exactly one of
// PatientID or NewPatient must be set.
type BookingRequest struct {
	ClinicID       uuid.UUID             `json:"clinic_id" binding:"required"`
	DoctorID       uuid.UUID             `json:"doctor_id" binding:"required"`
	OrganizationID uuid.UUID             `json:"organization_id" binding:"required"`
	Date           time.Time             `json:"date" binding:"required"`
	Time           string                `json:"time" binding:"required"`
	PatientID      *uuid.UUID            `json:"patient_id"`
	NewPatient     *CreatePatientRequest `json:"new_patient"`
	Procedure      string                `json:"procedure"`
	Notes          string                `json:"notes"`
	Source         ReservationOrigin     `json:"source"`
}

// BookingResult is what a successful transaction hands back.
type BookingResult struct {
	Appointment *Appointment `json:"appointment"`
	Patient     *Patient     `json:"patient"`
}
