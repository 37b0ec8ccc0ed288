package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agendaclin/booking-api/internal/model"
)

// ErrCASMismatch is returned by ReservationStore.CompareAndSwapSlot when
// the stored value changed between the caller's read and its write.
var ErrCASMismatch = errors.New("reservation store: concurrent modification")

// All repository interfaces in one file
type (
	// AvailabilityRepository stores per-doctor weekly templates.
	AvailabilityRepository interface {
		GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.DoctorAvailability, error)
		Upsert(ctx context.Context, availability *model.DoctorAvailability) error
	}

	ReleaseScheduleRepository interface {
		GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.AgendaReleaseSchedule, error)
		Upsert(ctx context.Context, schedule *model.AgendaReleaseSchedule) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ListForDay returns the doctor's appointments on one date, all statuses.
		ListForDay(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time) ([]*model.Appointment, error)
		// FindOccupying returns the appointment holding the exact slot, or nil.
		FindOccupying(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, timeOfDay string) (*model.Appointment, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	// ClinicSettingsRepository reads the legacy clinic-wide schedule default.
	ClinicSettingsRepository interface {
		GetByClinic(ctx context.Context, clinicID uuid.UUID) (*model.ClinicSettings, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		DeleteBefore(ctx context.Context, cutoff time.Time) error
	}

	// ReservationStore is the optimistically-locked slot hold store.
	// Lookup methods return (nil, nil) when nothing is stored.
	ReservationStore interface {
		GetSlot(ctx context.Context, slotKey string) (*model.SlotReservation, error)
		// CompareAndSwapSlot writes next under slotKey only when the stored
		// value still matches prev (nil prev means key absent). Returns
		// ErrCASMismatch when somebody got there first.
		CompareAndSwapSlot(ctx context.Context, slotKey string, prev, next *model.SlotReservation, ttl time.Duration) error
		// UpdateSlot overwrites the hold unconditionally; only the holder
		// calls this, for confirm transitions.
		UpdateSlot(ctx context.Context, reservation *model.SlotReservation, ttl time.Duration) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.SlotReservation, error)
		DeleteSlot(ctx context.Context, reservation *model.SlotReservation) error
		ListActive(ctx context.Context) ([]*model.SlotReservation, error)
	}
)
