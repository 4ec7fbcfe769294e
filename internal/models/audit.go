package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	ActorID    *string   `json:"actor_id,omitempty"`
	ActorType  string    `json:"actor_type"` // user/admin/system
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"` // listing/proposal/treasury
	EntityID   string    `json:"entity_id"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
