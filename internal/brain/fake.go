package brain

import (
	"context"
	"sync/atomic"

	"github.com/navai/interview-server/internal/domain"
)

var fakeQuestions = []string{
	"What problem were you trying to solve with this?",
	"Walk me through the trade-offs you considered.",
	"How would this behave under ten times the load?",
	"What would you change if you rebuilt it today?",
}

// FakeGenerator produces deterministic canned output for development runs
// without an LLM key.
type FakeGenerator struct {
	n atomic.Int64
}

// NewFakeGenerator creates a fake generator.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{}
}

// Opening returns a canned greeting.
func (f *FakeGenerator) Opening(context.Context) (string, error) {
	return FallbackOpening, nil
}

// Evaluate scores by answer length and cycles through canned questions.
func (f *FakeGenerator) Evaluate(_ context.Context, req EvaluationRequest) (*domain.Evaluation, error) {
	i := f.n.Add(1) - 1

	score := 5
	if len(req.Answer) > 80 {
		score = 7
	}
	if len(req.Answer) > 240 {
		score = 9
	}

	return &domain.Evaluation{
		Score:        score,
		NextQuestion: fakeQuestions[int(i)%len(fakeQuestions)],
		Feedback:     "Simulated evaluation.",
		Topic:        "presentation",
	}, nil
}

// Summarize returns the statistical fallback report.
func (f *FakeGenerator) Summarize(_ context.Context, iv *domain.Interview) (*domain.Summary, error) {
	return FallbackSummary(iv), nil
}
