package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
)

type availabilityRepository struct {
	db *sqlx.DB
}

func NewAvailabilityRepository(db *sqlx.DB) repository.AvailabilityRepository {
	return &availabilityRepository{db: db}
}

func (r *availabilityRepository) GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.DoctorAvailability, error) {
	query := `
		SELECT id, doctor_id, organization_id, week_schedule, absences,
			   advance_booking_days, max_appointments_per_day,
			   created_at, updated_at
		FROM doctor_availabilities
		WHERE doctor_id = $1 AND organization_id = $2
	`
	var availability model.DoctorAvailability
	err := r.db.GetContext(ctx, &availability, query, doctorID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get doctor availability: %w", err)
	}
	return &availability, nil
}

func (r *availabilityRepository) Upsert(ctx context.Context, availability *model.DoctorAvailability) error {
	query := `
		INSERT INTO doctor_availabilities (
			id, doctor_id, organization_id, week_schedule, absences,
			advance_booking_days, max_appointments_per_day,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (doctor_id, organization_id) DO UPDATE SET
			week_schedule = EXCLUDED.week_schedule,
			absences = EXCLUDED.absences,
			advance_booking_days = EXCLUDED.advance_booking_days,
			max_appointments_per_day = EXCLUDED.max_appointments_per_day,
			updated_at = EXCLUDED.updated_at
	`
	if availability.ID == uuid.Nil {
		availability.ID = uuid.New()
		availability.CreatedAt = time.Now()
	}
	availability.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		availability.ID,
		availability.DoctorID,
		availability.OrganizationID,
		availability.WeekSchedule,
		availability.Absences,
		availability.AdvanceBookingDays,
		availability.MaxAppointmentsPerDay,
		availability.CreatedAt,
		availability.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert doctor availability: %w", err)
	}
	return nil
}
