package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusEmContato AppointmentStatus = "EM_CONTATO"
	AppointmentStatusAgendado  AppointmentStatus = "AGENDADO"
	AppointmentStatusAtendido  AppointmentStatus = "ATENDIDO"
	AppointmentStatusNaoVeio   AppointmentStatus = "NAO_VEIO"
	AppointmentStatusBloqueado AppointmentStatus = "BLOQUEADO"
)

// Occupying reports whether this status keeps the slot taken. A no-show
// frees the slot for rebooking.
func (s AppointmentStatus) Occupying() bool {
	return s != AppointmentStatusNaoVeio
}

type Appointment struct {
	Base
	ClinicID  uuid.UUID         `db:"clinic_id" json:"clinic_id"`
	DoctorID  uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID         `db:"patient_id" json:"patient_id"`
	Date      time.Time         `db:"date" json:"date"`
	Time      string            `db:"time" json:"time"`
	Status    AppointmentStatus `db:"status" json:"status"`
	Procedure string            `db:"procedure" json:"procedure,omitempty"`
	Notes     string            `db:"notes" json:"notes,omitempty"`
}

type AppointmentFilters struct {
	ClinicID  uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    AppointmentStatus
	StartDate time.Time
	EndDate   time.Time
}

// AvailableSlot is one bookable candidate in a day's grid.
type AvailableSlot struct {
	Time       string `json:"time"`
	IsBooked   bool   `json:"is_booked"`
	IsReserved bool   `json:"is_reserved"`
}
