package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"storybook-server/internal/domain"
	"storybook-server/internal/notifier"

	"go.uber.org/zap"
)

// ClientUpdatePublisher forwards terminal generation states to the client
// updates queue, from which the websocket gateway pushes them to devices.
type ClientUpdatePublisher struct {
	publisher *rabbitMQPublisher
	logger    *zap.Logger
}

func NewClientUpdatePublisher(ch Channel, queueName string, logger *zap.Logger) *ClientUpdatePublisher {
	logger = logger.Named("ClientUpdatePublisher")
	return &ClientUpdatePublisher{
		publisher: newRabbitMQPublisher(ch, queueName, logger),
		logger:    logger,
	}
}

// PublishClientUpdate publishes one update.
func (p *ClientUpdatePublisher) PublishClientUpdate(ctx context.Context, update ClientStoryUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal client update for %s: %w", update.ID, err)
	}
	if err := p.publisher.publishMessage(ctx, body, ""); err != nil {
		p.logger.Error("Failed to publish client update", zap.String("generationID", update.ID), zap.Error(err))
		return err
	}
	return nil
}

// Subscribe registers handlers for terminal generation events on registry.
func (p *ClientUpdatePublisher) Subscribe(registry *notifier.Registry) {
	registry.Subscribe(domain.EventGenerationCompleted, p.handle)
	registry.Subscribe(domain.EventGenerationFailed, p.handle)
}

func (p *ClientUpdatePublisher) handle(ctx context.Context, event domain.Event) error {
	var update ClientStoryUpdate
	switch e := event.(type) {
	case domain.GenerationCompleted:
		update = ClientStoryUpdate{
			ID:          e.GenerationID.String(),
			UserID:      e.OwnerID.String(),
			Status:      string(domain.StatusCompleted),
			ArtifactRef: e.ArtifactRef,
		}
	case domain.GenerationFailed:
		reason := e.Reason
		update = ClientStoryUpdate{
			ID:           e.GenerationID.String(),
			UserID:       e.OwnerID.String(),
			Status:       string(domain.StatusFailed),
			ErrorDetails: &reason,
		}
	default:
		return nil
	}
	return p.PublishClientUpdate(ctx, update)
}
