package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
)

type clinicSettingsRepository struct {
	db *sqlx.DB
}

func NewClinicSettingsRepository(db *sqlx.DB) repository.ClinicSettingsRepository {
	return &clinicSettingsRepository{db: db}
}

func (r *clinicSettingsRepository) GetByClinic(ctx context.Context, clinicID uuid.UUID) (*model.ClinicSettings, error) {
	query := `
		SELECT id, clinic_id, organization_id, default_start_time,
			   default_end_time, default_interval_minutes,
			   created_at, updated_at
		FROM clinic_settings
		WHERE clinic_id = $1
	`
	var settings model.ClinicSettings
	err := r.db.GetContext(ctx, &settings, query, clinicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clinic settings: %w", err)
	}
	return &settings, nil
}
