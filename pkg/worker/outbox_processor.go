package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/pkg/messaging"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
	"github.com/rsyarsya/pneuscope/pkg/repository"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is how many times one poll tries to publish an event.
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries polls are allowed before an event is marked FAILED.
	MaxRetries int
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return fmt.Errorf("PollInterval must be greater than 0")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RetryAttempts must be greater than 0")
	case c.RetryDelay <= 0:
		return fmt.Errorf("RetryDelay must be greater than 0")
	case c.MaxRetries <= 0:
		return fmt.Errorf("MaxRetries must be greater than 0")
	}
	return nil
}

// OutboxProcessor relays committed outbox rows to the broker.
type OutboxProcessor struct {
	repo      repository.OutboxStore
	publisher messaging.Publisher
	config    OutboxProcessorConfig
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxStore,
	publisher messaging.Publisher,
	config OutboxProcessorConfig,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}

	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With().Str("component", "outbox").Logger(),
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info().Msg("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error().Err(err).Msg("Failed to process events")
			}
		}
	}
}

// lease keeps claimed rows hidden from other workers while one batch is
// published.
func (p *OutboxProcessor) lease() time.Duration {
	perEvent := time.Duration(p.config.RetryAttempts) * p.config.RetryDelay * 2
	return time.Minute + perEvent*time.Duration(p.config.BatchSize)
}

// ProcessBatch claims one batch and publishes it. It returns the number of
// events published successfully.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize, p.lease())
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.OutboxQueueSize.Set(float64(len(events)))

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("Failed to process event")
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.config.RetryDelay), uint64(p.config.RetryAttempts-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		return p.publisher.Publish(ctx, event.EventType, event.Payload)
	}, policy)
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
			return fmt.Errorf("failed to update event status: %w", err)
		}
		return nil
	}

	retryCount := event.RetryCount + 1
	p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()

	if retryCount >= p.config.MaxRetries {
		p.metrics.OutboxEventsFailed.Inc()
		if updateErr := p.repo.MarkFailed(ctx, event.ID, retryCount, err.Error()); updateErr != nil {
			p.logger.Error().Err(updateErr).Str("event_id", event.ID.String()).Msg("Failed to update event status")
		}
		return fmt.Errorf("giving up after %d attempts: %w", retryCount, err)
	}

	retryAt := p.now().Add(p.retryDelay(retryCount))
	if updateErr := p.repo.MarkRetry(ctx, event.ID, retryCount, err.Error(), retryAt); updateErr != nil {
		p.logger.Error().Err(updateErr).Str("event_id", event.ID.String()).Msg("Failed to schedule retry")
	}
	return err
}

// retryDelay doubles the poll interval for every failed poll, capped at
// an hour.
func (p *OutboxProcessor) retryDelay(retryCount int) time.Duration {
	delay := p.config.PollInterval
	for i := 1; i < retryCount && delay < time.Hour; i++ {
		delay *= 2
	}
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}
