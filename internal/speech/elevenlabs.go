package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// ElevenLabsSynthesizer streams speech from the ElevenLabs API. The
// with-timestamps endpoint delivers audio as a stream of JSON objects
// carrying base64 chunks, which maps directly onto Stream.Recv.
type ElevenLabsSynthesizer struct {
	apiKey  string
	voiceID string
	baseURL string
	http    *http.Client
}

// NewElevenLabs creates an ElevenLabs synthesizer.
func NewElevenLabs(apiKey, voiceID string) *ElevenLabsSynthesizer {
	return &ElevenLabsSynthesizer{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: elevenLabsBaseURL,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Synthesize opens the streaming request for the text.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (Stream, error) {
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream/with-timestamps?output_format=mp3_44100_128",
		s.baseURL, s.voiceID)

	payload, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("synthesis request: status %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	return &elevenLabsStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

type elevenLabsStream struct {
	body io.ReadCloser
	dec  *json.Decoder
}

func (s *elevenLabsStream) Recv() ([]byte, error) {
	for {
		var chunk struct {
			AudioBase64 string `json:"audio_base64"`
		}
		if err := s.dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("decode audio chunk: %w", err)
		}
		if chunk.AudioBase64 == "" {
			// Timestamp-only objects carry no audio.
			continue
		}

		audio, err := base64.StdEncoding.DecodeString(chunk.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("decode audio chunk: %w", err)
		}
		return audio, nil
	}
}

func (s *elevenLabsStream) Close() error {
	return s.body.Close()
}
