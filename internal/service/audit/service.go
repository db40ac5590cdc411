package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
)

// Recorder is implemented by Service and accepted by the domain services.
type Recorder interface {
	Log(ctx context.Context, actor model.Actor, action, entityType, entityID string, metadata map[string]interface{})
}

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Log writes an audit entry. Failures are logged and never reach the
// caller.
func (s *Service) Log(ctx context.Context, actor model.Actor, action, entityType, entityID string, metadata map[string]interface{}) {
	entry := &model.AuditLog{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   model.JSONMap(metadata),
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		CreatedAt:  s.now().UTC(),
	}
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		entry.UserID = &id
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("Failed to write audit log")
	}
}

// Cleanup removes entries older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, s.now().Add(-retention))
}
