package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const visionPrompt = `You are watching a candidate's shared screen during a technical interview.
Describe what is currently visible in 2-3 sentences: the kind of content (slides, code,
diagram, terminal, document), its topic, and any concrete details worth asking about.
Do not speculate about anything not visible.`

// GroqAnalyzer describes frames with a vision-capable model behind an
// OpenAI-compatible chat API.
type GroqAnalyzer struct {
	client *openai.Client
	model  string
}

// NewGroqAnalyzer creates an analyzer on an existing client.
func NewGroqAnalyzer(client *openai.Client, model string) *GroqAnalyzer {
	return &GroqAnalyzer{client: client, model: model}
}

// Analyze sends the frame inline as a data URL and returns the description.
func (a *GroqAnalyzer) Analyze(ctx context.Context, frame []byte) (string, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		MaxTokens:   400,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("vision analyze: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("vision analyze: empty response")
	}

	description := strings.TrimSpace(resp.Choices[0].Message.Content)
	if description == "" {
		return "", errors.New("vision analyze: blank description")
	}
	return description, nil
}
