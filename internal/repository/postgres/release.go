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

type releaseScheduleRepository struct {
	db *sqlx.DB
}

func NewReleaseScheduleRepository(db *sqlx.DB) repository.ReleaseScheduleRepository {
	return &releaseScheduleRepository{db: db}
}

func (r *releaseScheduleRepository) GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.AgendaReleaseSchedule, error) {
	query := `
		SELECT id, doctor_id, organization_id, release_type, weekly_config,
			   monthly_config, custom_dates, enabled, created_at, updated_at
		FROM agenda_release_schedules
		WHERE doctor_id = $1 AND organization_id = $2
	`
	var schedule model.AgendaReleaseSchedule
	err := r.db.GetContext(ctx, &schedule, query, doctorID, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release schedule: %w", err)
	}
	return &schedule, nil
}

func (r *releaseScheduleRepository) Upsert(ctx context.Context, schedule *model.AgendaReleaseSchedule) error {
	query := `
		INSERT INTO agenda_release_schedules (
			id, doctor_id, organization_id, release_type, weekly_config,
			monthly_config, custom_dates, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (doctor_id, organization_id) DO UPDATE SET
			release_type = EXCLUDED.release_type,
			weekly_config = EXCLUDED.weekly_config,
			monthly_config = EXCLUDED.monthly_config,
			custom_dates = EXCLUDED.custom_dates,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
		schedule.CreatedAt = time.Now()
	}
	schedule.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.DoctorID,
		schedule.OrganizationID,
		schedule.ReleaseType,
		schedule.WeeklyConfig,
		schedule.MonthlyConfig,
		schedule.CustomDates,
		schedule.Enabled,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert release schedule: %w", err)
	}
	return nil
}
