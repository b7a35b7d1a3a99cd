package domain

// OptionKind names a family of story configuration options.
type OptionKind string

const (
	OptionTheme    OptionKind = "theme"
	OptionTone     OptionKind = "tone"
	OptionLanguage OptionKind = "language"
)

// StoryOption is an immutable descriptor resolved from an opaque option id.
type StoryOption struct {
	Kind       OptionKind `json:"kind" db:"kind"`
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	PromptHint string     `json:"prompt_hint" db:"prompt_hint"`
}

// ResolvedConfig is the configuration handed to the job runner.
type ResolvedConfig struct {
	Theme        StoryOption
	Tone         StoryOption
	Language     StoryOption
	AgeGroupID   string
	ChapterCount int
}
