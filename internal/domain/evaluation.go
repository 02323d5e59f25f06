package domain

import "time"

// Evaluation is the question generator's judgment of one answer.
type Evaluation struct {
	Score            int    `json:"score"` // 0-10
	NextQuestion     string `json:"next_question"`
	ConflictDetected bool   `json:"conflict_detected"`
	ConflictNote     string `json:"conflict_note,omitempty"`
	Feedback         string `json:"feedback,omitempty"`
	Topic            string `json:"topic,omitempty"`

	// Proceed means the generator chose not to ask anything new;
	// the session keeps listening and nothing is synthesized.
	Proceed bool `json:"-"`
}

// VisionContext is the latest accepted description of the shared screen.
// It is overwritten wholesale on every successful analysis.
type VisionContext struct {
	Description string    `json:"description"`
	CapturedAt  time.Time `json:"captured_at"`
}
