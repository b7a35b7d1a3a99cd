package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrMalformedResult marks results that can never be processed.
var ErrMalformedResult = errors.New("malformed generation result")

const resultProcessingTimeout = 15 * time.Second

// ResultHandler applies worker results; *service.GenerationService implements it.
type ResultHandler interface {
	CompleteGeneration(ctx context.Context, id uuid.UUID, jobID, artifactRef string) error
	FailGeneration(ctx context.Context, id uuid.UUID, jobID, reason string) error
}

// ResultProcessor parses one result message and applies it.
type ResultProcessor struct {
	handler ResultHandler
	logger  *zap.Logger
}

func NewResultProcessor(handler ResultHandler, logger *zap.Logger) *ResultProcessor {
	return &ResultProcessor{handler: handler, logger: logger.Named("ResultProcessor")}
}

// Process returns ErrMalformedResult for unparseable messages and nil for results
// that are stale or arrive for an aggregate that can no longer accept them.
func (p *ResultProcessor) Process(ctx context.Context, body []byte) error {
	var result GenerationResultPayload
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	id, err := uuid.Parse(result.GenerationID)
	if err != nil {
		return fmt.Errorf("%w: invalid generation_id %q", ErrMalformedResult, result.GenerationID)
	}
	log := p.logger.With(zap.String("generationID", id.String()), zap.String("jobID", result.JobID), zap.String("status", string(result.Status)))

	ctx, cancel := context.WithTimeout(ctx, resultProcessingTimeout)
	defer cancel()

	switch result.Status {
	case ResultStatusSuccess:
		err = p.handler.CompleteGeneration(ctx, id, result.JobID, result.ArtifactRef)
	case ResultStatusError:
		reason := result.ErrorDetails
		if reason == "" {
			reason = "generation failed"
		}
		err = p.handler.FailGeneration(ctx, id, result.JobID, reason)
	default:
		return fmt.Errorf("%w: unknown status %q", ErrMalformedResult, result.Status)
	}

	switch {
	case err == nil:
		log.Info("Generation result applied")
		return nil
	case errors.Is(err, service.ErrStaleJobResult),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotFound):
		log.Warn("Generation result ignored", zap.Error(err))
		return nil
	default:
		log.Error("Failed to apply generation result", zap.Error(err))
		return err
	}
}

// ResultConsumer reads worker results from the generation results queue.
type ResultConsumer struct {
	conn        *amqp.Connection
	processor   *ResultProcessor
	queueName   string
	consumerTag string
	stopChannel chan struct{}
	logger      *zap.Logger
}

func NewResultConsumer(conn *amqp.Connection, processor *ResultProcessor, queueName string, logger *zap.Logger) *ResultConsumer {
	return &ResultConsumer{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		consumerTag: "storybook-result-consumer",
		stopChannel: make(chan struct{}),
		logger:      logger.Named("ResultConsumer"),
	}
}

// StartConsuming blocks until ctx is done, Stop is called or the delivery
// channel closes.
func (c *ResultConsumer) StartConsuming(ctx context.Context) error {
	ch, err := OpenQueueChannel(c.conn, c.queueName, nil)
	if err != nil {
		return fmt.Errorf("result consumer: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("result consumer: failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, c.consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("result consumer: failed to register consumer: %w", err)
	}
	c.logger.Info("Waiting for generation results", zap.String("queue", c.queueName))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return nil
			}
			c.handleDelivery(ctx, d)
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping")
			return nil
		case <-c.stopChannel:
			c.logger.Info("Stop signal received")
			return nil
		}
	}
}

// Stop makes StartConsuming return.
func (c *ResultConsumer) Stop() {
	close(c.stopChannel)
}

// handleDelivery acks applied and ignored results, drops malformed ones and
// requeues other failures once.
func (c *ResultConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.Uint64("deliveryTag", d.DeliveryTag))

	err := c.processor.Process(ctx, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("Failed to ack result", zap.Error(ackErr))
		}
	case errors.Is(err, ErrMalformedResult):
		log.Error("Dropping malformed result", zap.Error(err), zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack result", zap.Error(nackErr))
		}
	default:
		requeue := !d.Redelivered
		log.Error("Result processing failed", zap.Bool("requeue", requeue), zap.Error(err))
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Error("Failed to nack result", zap.Error(nackErr))
		}
	}
}
