package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/navai/interview-server/internal/domain"
)

const (
	historyWindow      = 6
	answerClipLen      = 300
	transcriptTailLen  = 1200
	evaluationMaxToken = 500
)

// GroqGenerator implements Generator on an OpenAI-compatible chat API.
type GroqGenerator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewGroqGenerator creates a generator on an existing client.
func NewGroqGenerator(client *openai.Client, model string, logger *slog.Logger) *GroqGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroqGenerator{client: client, model: model, logger: logger}
}

// Opening produces the greeting spoken at session start.
func (g *GroqGenerator) Opening(ctx context.Context) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openingSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "The candidate just connected. Greet them."},
		},
		MaxTokens:   120,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("generate opening: %w", err)
	}
	text := firstChoice(resp)
	if text == "" {
		return "", errors.New("generate opening: empty reply")
	}
	return text, nil
}

// Evaluate scores one finalized answer and proposes the next question.
func (g *GroqGenerator) Evaluate(ctx context.Context, req EvaluationRequest) (*domain.Evaluation, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: evaluationSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildEvaluationContext(req)},
		},
		MaxTokens:   evaluationMaxToken,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate evaluation: %w", err)
	}

	payload, err := parseEvaluation(firstChoice(resp))
	if err != nil {
		g.logger.Debug("[BRAIN] unusable evaluation reply", "error", err, "reply", clip(firstChoice(resp), 200))
		return nil, fmt.Errorf("generate evaluation: %w", err)
	}

	eval := &domain.Evaluation{
		Score:            payload.Score,
		NextQuestion:     strings.TrimSpace(payload.NextQuestion),
		ConflictDetected: payload.ConflictDetected,
		ConflictNote:     strings.TrimSpace(payload.ConflictNote),
		Feedback:         strings.TrimSpace(payload.Feedback),
		Topic:            strings.TrimSpace(payload.Topic),
		Proceed:          payload.ResponseType == "proceed",
	}
	if !eval.Proceed && eval.NextQuestion == "" {
		eval.NextQuestion = FallbackQuestion
	}
	return eval, nil
}

// Summarize produces the end-of-interview report, blending the model's
// judgment with statistics computed from history.
func (g *GroqGenerator) Summarize(ctx context.Context, iv *domain.Interview) (*domain.Summary, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildSummaryContext(iv)},
		},
		MaxTokens:   700,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	payload, err := parseSummary(firstChoice(resp))
	if err != nil {
		g.logger.Debug("[BRAIN] unusable summary reply", "error", err, "reply", clip(firstChoice(resp), 200))
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	stats := statsFor(iv)
	summary := &domain.Summary{
		OverallScore:   payload.OverallScore,
		CategoryScores: payload.CategoryScores,
		Strengths:      payload.Strengths,
		Weaknesses:     payload.Weaknesses,
		Summary:        strings.TrimSpace(payload.Summary),
		Recommendation: strings.TrimSpace(payload.Recommendation),
		QuestionCount:  stats.QuestionCount,
		AverageScore:   stats.AverageScore,
		ConflictCount:  stats.ConflictCount,
	}
	// Anchor the model's overall score to the per-answer evidence.
	if stats.QuestionCount > 0 {
		summary.OverallScore = (summary.OverallScore + stats.OverallScore) / 2
	}
	return summary, nil
}

func firstChoice(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func buildEvaluationContext(req EvaluationRequest) string {
	var b strings.Builder

	if req.ScreenContext != "" {
		fmt.Fprintf(&b, "Current screen: %s\n\n", req.ScreenContext)
	}

	if len(req.History) > 0 {
		b.WriteString("Previous answers:\n")
		history := req.History
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		for _, ex := range history {
			topic := ex.Evaluation.Topic
			if topic == "" {
				topic = "general"
			}
			fmt.Fprintf(&b, "- [%s, score %d/10] %s\n", topic, ex.Evaluation.Score, clip(ex.Answer, answerClipLen))
		}
		b.WriteString("\n")
	}

	if t := tail(req.TranscriptSoFar, transcriptTailLen); t != "" {
		fmt.Fprintf(&b, "Transcript so far:\n%s\n\n", t)
	}

	fmt.Fprintf(&b, "Latest answer to evaluate:\n%s", req.Answer)
	return b.String()
}

func buildSummaryContext(iv *domain.Interview) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The interview lasted %s and covered %d answer(s).\n",
		iv.Duration().Round(time.Second), len(iv.Exchanges))
	if topics := topicsFor(iv); len(topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s.\n", strings.Join(topics, ", "))
	}
	b.WriteString("\nHistory:\n")
	for _, ex := range iv.Exchanges {
		conflict := ""
		if ex.Evaluation.ConflictDetected {
			conflict = ", conflicted with screen"
		}
		fmt.Fprintf(&b, "Q%d [score %d/10%s]: %s\n", ex.Seq+1, ex.Evaluation.Score, conflict, clip(ex.Answer, answerClipLen))
	}
	return b.String()
}

// clip truncates s to at most n bytes, marking the cut.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// tail keeps only the last n bytes of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
