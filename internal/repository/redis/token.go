package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rsyarsya/pneuscope/internal/repository"
)

const revokedPrefix = "pneuscope:revoked:"

type tokenRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewTokenRepository keeps revoked token ids until their natural expiry.
func NewTokenRepository(client redis.UniversalClient) repository.TokenRepository {
	return &tokenRepository{client: client, now: time.Now}
}

func (r *tokenRepository) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (r *tokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.client.Get(ctx, revokedPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return true, nil
}
