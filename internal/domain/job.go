package domain

import "github.com/google/uuid"

// JobTypeStoryGeneration is the job type understood by the story-generator worker.
const JobTypeStoryGeneration = "story_generation"

// DispatchResult is what the job runner hands back. An empty ID means the job
// was not accepted.
type DispatchResult struct {
	ID string
}

// StoryGenerationJob is the payload dispatched for one generation request.
type StoryGenerationJob struct {
	GenerationID uuid.UUID   `json:"generation_id"`
	OwnerID      uuid.UUID   `json:"owner_id"`
	Theme        StoryOption `json:"theme"`
	Tone         StoryOption `json:"tone"`
	Language     StoryOption `json:"language"`
	AgeGroupID   string      `json:"age_group_id,omitempty"`
	ChapterCount int         `json:"chapter_count,omitempty"`
}

// NewStoryGenerationJob builds the payload for g from its resolved configuration.
func NewStoryGenerationJob(g *GenerationRequest, resolved ResolvedConfig) StoryGenerationJob {
	return StoryGenerationJob{
		GenerationID: g.ID,
		OwnerID:      g.OwnerID,
		Theme:        resolved.Theme,
		Tone:         resolved.Tone,
		Language:     resolved.Language,
		AgeGroupID:   resolved.AgeGroupID,
		ChapterCount: resolved.ChapterCount,
	}
}
