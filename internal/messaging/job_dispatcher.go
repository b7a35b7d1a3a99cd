package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ service.JobDispatcher = (*JobDispatcher)(nil)

// JobDispatcher hands jobs to the story worker through the generation task queue.
// The job id is assigned here and travels with the message.
type JobDispatcher struct {
	publisher *rabbitMQPublisher
	logger    *zap.Logger
}

func NewJobDispatcher(ch Channel, queueName string, logger *zap.Logger) *JobDispatcher {
	logger = logger.Named("JobDispatcher")
	return &JobDispatcher{
		publisher: newRabbitMQPublisher(ch, queueName, logger),
		logger:    logger,
	}
}

func (d *JobDispatcher) Dispatch(ctx context.Context, jobType string, payload any) (domain.DispatchResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("failed to marshal %s job payload: %w", jobType, err)
	}
	task := GenerationTaskPayload{
		JobID:   uuid.NewString(),
		JobType: jobType,
		Payload: raw,
	}
	body, err := json.Marshal(task)
	if err != nil {
		return domain.DispatchResult{}, fmt.Errorf("failed to marshal task envelope: %w", err)
	}

	if err := d.publisher.publishMessage(ctx, body, task.JobID); err != nil {
		d.logger.Error("Failed to publish generation task", zap.String("jobID", task.JobID), zap.String("jobType", jobType), zap.Error(err))
		return domain.DispatchResult{}, err
	}
	d.logger.Info("Generation task published", zap.String("jobID", task.JobID), zap.String("jobType", jobType))
	return domain.DispatchResult{ID: task.JobID}, nil
}
