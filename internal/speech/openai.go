package speech

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISynthesizer streams speech from the OpenAI audio API.
type OpenAISynthesizer struct {
	client *openai.Client
	voice  string
}

// NewOpenAI creates a synthesizer on an existing client.
func NewOpenAI(client *openai.Client, voice string) *OpenAISynthesizer {
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAISynthesizer{client: client, voice: voice}
}

// Synthesize requests speech for the text and streams the MP3 body back
// in chunks.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (Stream, error) {
	body, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return newReaderStream(body), nil
}
