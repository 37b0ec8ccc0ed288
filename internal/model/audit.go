package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	OrganizationID uuid.UUID       `db:"organization_id" json:"organization_id"`
	Action         string          `db:"action" json:"action"`
	EntityType     string          `db:"entity_type" json:"entity_type"`
	EntityID       uuid.UUID       `db:"entity_id" json:"entity_id"`
	Changes        json.RawMessage `db:"changes" json:"changes,omitempty"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
