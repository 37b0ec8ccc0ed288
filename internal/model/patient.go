package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Patient struct {
	Base
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Name           string     `db:"name" json:"name"`
	Phone          string     `db:"phone" json:"phone"`
	CPF            string     `db:"cpf" json:"cpf,omitempty"`
	Email          string     `db:"email" json:"email,omitempty"`
	BirthDate      *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Status         string     `db:"status" json:"status"`
}

// CreatePatientRequest is the new-patient payload the booking saga
// validates before creating the record.
type CreatePatientRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id" validate:"required"`
	Name           string     `json:"name" validate:"required,min=2,max=200"`
	Phone          string     `json:"phone" validate:"required,min=8,max=20"`
	CPF            string     `json:"cpf" validate:"omitempty,len=11"`
	Email          string     `json:"email" validate:"omitempty,email"`
	BirthDate      *time.Time `json:"birth_date"`
}
