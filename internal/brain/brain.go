// Package brain turns interview context into follow-up questions,
// per-answer evaluations, and the end-of-interview summary.
package brain

import (
	"context"
	"fmt"
	"sort"

	"github.com/navai/interview-server/internal/domain"
)

// FallbackQuestion keeps the interview moving when generation fails.
const FallbackQuestion = "Could you elaborate on that?"

// FallbackOpening greets the candidate when the generator is unavailable.
const FallbackOpening = "Welcome! Please share your screen and start walking me through your work. I'll follow up as you go."

// EvaluationRequest is everything the generator sees for one answer.
type EvaluationRequest struct {
	// Answer is the finalized segment being evaluated.
	Answer string
	// TranscriptSoFar is the full finalized transcript, oldest first.
	TranscriptSoFar string
	// ScreenContext is the latest vision description, possibly empty.
	ScreenContext string
	// History holds prior exchanges, oldest first.
	History []domain.Exchange
}

// Generator produces the conversational side of the interview.
type Generator interface {
	// Opening produces the greeting spoken at session start.
	Opening(ctx context.Context) (string, error)

	// Evaluate scores one finalized answer and proposes the next question.
	Evaluate(ctx context.Context, req EvaluationRequest) (*domain.Evaluation, error)

	// Summarize produces the end-of-interview report.
	Summarize(ctx context.Context, iv *domain.Interview) (*domain.Summary, error)
}

// FallbackEvaluation is used when generation fails: neutral score, generic
// continuation, so the interview never silently stalls.
func FallbackEvaluation() *domain.Evaluation {
	return &domain.Evaluation{
		Score:        5,
		NextQuestion: FallbackQuestion,
		Feedback:     "Let's keep going.",
	}
}

// FallbackSummary builds a purely statistical report when generation fails.
func FallbackSummary(iv *domain.Interview) *domain.Summary {
	stats := statsFor(iv)
	stats.Summary = fmt.Sprintf(
		"The interview covered %d question(s) with an average score of %.1f out of 10.",
		stats.QuestionCount, stats.AverageScore)
	if stats.ConflictCount > 0 {
		stats.Summary += fmt.Sprintf(
			" %d answer(s) appeared to contradict the shared screen.", stats.ConflictCount)
	}
	stats.Recommendation = "Review the per-question feedback for details."
	return stats
}

// statsFor computes the deterministic part of a summary from history.
func statsFor(iv *domain.Interview) *domain.Summary {
	avg := iv.AverageScore()
	return &domain.Summary{
		OverallScore:  int(avg * 10),
		QuestionCount: len(iv.Exchanges),
		AverageScore:  avg,
		ConflictCount: iv.ConflictCount(),
	}
}

// topicsFor lists distinct topics touched during the interview, sorted for
// stable prompt construction.
func topicsFor(iv *domain.Interview) []string {
	seen := map[string]bool{}
	for _, ex := range iv.Exchanges {
		if ex.Evaluation.Topic != "" {
			seen[ex.Evaluation.Topic] = true
		}
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
