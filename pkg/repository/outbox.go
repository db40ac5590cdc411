package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rsyarsya/pneuscope/internal/model"
)

// OutboxStore is the subset of the outbox repository the background
// processor needs.
type OutboxStore interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, retryAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
}
