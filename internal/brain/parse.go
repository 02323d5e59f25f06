package brain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first JSON object out of a model reply. Models
// wrap JSON in markdown fences or lead-in prose often enough that naive
// unmarshaling is not an option.
func extractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return s[start : end+1], nil
}

// evaluationPayload is the JSON contract the evaluation prompt demands.
type evaluationPayload struct {
	Score            int    `json:"score"`
	Feedback         string `json:"feedback"`
	ConflictDetected bool   `json:"conflict_detected"`
	ConflictNote     string `json:"conflict_note"`
	NextQuestion     string `json:"next_question"`
	ResponseType     string `json:"response_type"`
	Topic            string `json:"topic"`
}

func parseEvaluation(reply string) (*evaluationPayload, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload evaluationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode evaluation payload: %w", err)
	}

	if payload.Score < 0 {
		payload.Score = 0
	}
	if payload.Score > 10 {
		payload.Score = 10
	}
	return &payload, nil
}

// summaryPayload is the JSON contract the summary prompt demands.
type summaryPayload struct {
	OverallScore   int            `json:"overall_score"`
	CategoryScores map[string]int `json:"category_scores"`
	Strengths      []string       `json:"strengths"`
	Weaknesses     []string       `json:"weaknesses"`
	Summary        string         `json:"summary"`
	Recommendation string         `json:"recommendation"`
}

func parseSummary(reply string) (*summaryPayload, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode summary payload: %w", err)
	}

	if payload.OverallScore < 0 {
		payload.OverallScore = 0
	}
	if payload.OverallScore > 100 {
		payload.OverallScore = 100
	}
	return &payload, nil
}
