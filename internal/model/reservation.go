package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// ReservationOrigin tags who is holding the slot, so a losing caller can
// be told whether a person or an automation beat them to it.
type ReservationOrigin string

const (
	ReservationOriginUser       ReservationOrigin = "user"
	ReservationOriginAutomation ReservationOrigin = "automation"
)

// SlotReservation is a short-lived exclusive hold on one slot while a
// booking attempt is in flight.
type SlotReservation struct {
	ID         uuid.UUID         `json:"id"`
	ClinicID   uuid.UUID         `json:"clinic_id"`
	DoctorID   uuid.UUID         `json:"doctor_id"`
	Date       time.Time         `json:"date"`
	Time       string            `json:"time"`
	ReservedBy ReservationOrigin `json:"reserved_by"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Expired reports whether the hold has outlived its TTL at instant now.
func (r *SlotReservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// SlotKey identifies the contention unit: one (clinic, doctor, date, time) tuple.
func SlotKey(clinicID, doctorID uuid.UUID, date time.Time, timeOfDay string) string {
	return fmt.Sprintf("%s:%s:%s:%s", clinicID, doctorID, FormatDate(date), timeOfDay)
}

func (r *SlotReservation) SlotKey() string {
	return SlotKey(r.ClinicID, r.DoctorID, r.Date, r.Time)
}

type ReserveSlotRequest struct {
	ClinicID   uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time
	Time       string
	ReservedBy ReservationOrigin
	UserID     uuid.UUID
}

// ReserveResult carries either the new hold or the competing one.
type ReserveResult struct {
	Success     bool             `json:"success"`
	Reservation *SlotReservation `json:"reservation,omitempty"`
	Conflict    *SlotReservation `json:"conflict,omitempty"`
}
