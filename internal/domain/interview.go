package domain

import "time"

// Exchange is one answer/evaluation round within an interview.
type Exchange struct {
	Seq           int        `json:"seq"`
	Answer        string     `json:"answer"`
	Evaluation    Evaluation `json:"evaluation"`
	ScreenContext string     `json:"screen_context,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Interview is the persisted record of one session.
type Interview struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	AutoEnded bool       `json:"auto_ended"` // screen share grace period expired
	Summary   *Summary   `json:"summary,omitempty"`
	Exchanges []Exchange `json:"exchanges,omitempty"`
}

// Summary is the end-of-interview report.
type Summary struct {
	OverallScore   int            `json:"overall_score"` // 0-100
	CategoryScores map[string]int `json:"category_scores,omitempty"`
	Strengths      []string       `json:"strengths,omitempty"`
	Weaknesses     []string       `json:"weaknesses,omitempty"`
	Summary        string         `json:"summary"`
	Recommendation string         `json:"recommendation,omitempty"`
	QuestionCount  int            `json:"question_count"`
	AverageScore   float64        `json:"average_score"`
	ConflictCount  int            `json:"conflict_count"`
}

// Duration returns how long the interview ran, or time-since-start
// while it is still live.
func (iv *Interview) Duration() time.Duration {
	if iv.EndedAt == nil {
		return time.Since(iv.StartedAt)
	}
	return iv.EndedAt.Sub(iv.StartedAt)
}

// AverageScore computes the mean evaluation score across exchanges.
// Returns 0 for an interview with no exchanges.
func (iv *Interview) AverageScore() float64 {
	if len(iv.Exchanges) == 0 {
		return 0
	}
	total := 0
	for _, ex := range iv.Exchanges {
		total += ex.Evaluation.Score
	}
	return float64(total) / float64(len(iv.Exchanges))
}

// ConflictCount counts exchanges where speech contradicted the screen.
func (iv *Interview) ConflictCount() int {
	n := 0
	for _, ex := range iv.Exchanges {
		if ex.Evaluation.ConflictDetected {
			n++
		}
	}
	return n
}
