package services

import (
	"context"

	"github.com/asset-exchange/backend/internal/models"
)

// AuditLogger is satisfied by repositories.AuditRepo.
type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

const (
	actorUser   = "user"
	actorAdmin  = "admin"
	actorSystem = "system"
)

// record writes an audit entry. Audit failures never fail the operation.
func record(ctx context.Context, a AuditLogger, actor, actorType, action, entityType, entityID string, meta map[string]any) {
	if a == nil {
		return
	}
	var actorID *string
	if actor != "" {
		actorID = &actor
	}
	_ = a.Log(ctx, models.AuditLog{
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Meta:       meta,
	})
}
