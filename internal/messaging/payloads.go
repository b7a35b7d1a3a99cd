package messaging

import "encoding/json"

// ResultStatus is the outcome reported by the story worker.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// GenerationTaskPayload is the envelope published to the generation task queue.
type GenerationTaskPayload struct {
	JobID   string          `json:"job_id"`
	JobType string          `json:"job_type"`
	Payload json.RawMessage `json:"payload"`
}

// GenerationResultPayload is consumed from the generation results queue.
type GenerationResultPayload struct {
	GenerationID string       `json:"generation_id"`
	JobID        string       `json:"job_id"`
	Status       ResultStatus `json:"status"`
	ArtifactRef  string       `json:"artifact_ref,omitempty"`
	ErrorDetails string       `json:"error_details,omitempty"`
}

// ClientStoryUpdate is pushed to the client updates queue when a generation
// reaches a terminal state.
type ClientStoryUpdate struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Status       string  `json:"status"`
	ArtifactRef  string  `json:"artifact_ref,omitempty"`
	ErrorDetails *string `json:"error_details,omitempty"`
}
