package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository"
)

// Emitter records domain events for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

// Service writes events to the outbox table. The outbox processor in the
// worker binary publishes them to the broker.
type Service struct {
	outboxRepo repository.OutboxRepository
}

func NewService(outboxRepo repository.OutboxRepository) *Service {
	return &Service{outboxRepo: outboxRepo}
}

func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// Cleanup removes processed events older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.outboxRepo.DeleteProcessedBefore(ctx, time.Now().Add(-retention))
}
