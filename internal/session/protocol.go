// Package session implements the per-connection interview orchestrator:
// the WebSocket gateway, the session state machine, and the plumbing
// between transcription, vision, question generation, and speech playback.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/navai/interview-server/internal/domain"
)

// envelope is the wire shape of every message in both directions.
// Binary payloads (audio, video frames) travel as base64 strings inside
// the JSON, which encoding/json maps to []byte directly.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is a client message after boundary validation. The set of
// implementations is closed; DecodeInbound rejects anything else.
type Inbound interface {
	inbound()
}

// AudioIn carries one chunk of microphone audio.
type AudioIn struct {
	Data       []byte `json:"data"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// VideoIn carries one encoded screen-share frame.
type VideoIn struct {
	Data []byte `json:"data"`
}

// StopIn ends the interview.
type StopIn struct{}

// GenerateReportIn asks for the end-of-interview summary. Only valid
// after the interview has stopped.
type GenerateReportIn struct{}

// ScreenLostIn signals the client's screen share ended.
type ScreenLostIn struct{}

// ScreenRestoredIn signals the screen share is back.
type ScreenRestoredIn struct{}

func (AudioIn) inbound()          {}
func (VideoIn) inbound()          {}
func (StopIn) inbound()           {}
func (GenerateReportIn) inbound() {}
func (ScreenLostIn) inbound()     {}
func (ScreenRestoredIn) inbound() {}

// DecodeInbound parses and validates one client message. Unknown types
// and malformed payloads come back as errors; callers drop the message
// with a warning rather than letting bad input travel inward.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case "audio":
		var m AudioIn
		if err := unmarshalData(env.Data, &m); err != nil {
			return nil, fmt.Errorf("audio payload: %w", err)
		}
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("audio payload: empty data")
		}
		return m, nil
	case "video":
		var m VideoIn
		if err := unmarshalData(env.Data, &m); err != nil {
			return nil, fmt.Errorf("video payload: %w", err)
		}
		if len(m.Data) == 0 {
			return nil, fmt.Errorf("video payload: empty data")
		}
		return m, nil
	case "stop":
		return StopIn{}, nil
	case "generate_report":
		return GenerateReportIn{}, nil
	case "screen_share_lost":
		return ScreenLostIn{}, nil
	case "screen_share_restored":
		return ScreenRestoredIn{}, nil
	case "":
		return nil, fmt.Errorf("missing message type")
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(raw, v)
}

// Outbound event types.
const (
	EventStatus              = "status"
	EventTranscriptInterim   = "transcript_interim"
	EventTranscriptFinal     = "transcript_final"
	EventEvaluation          = "evaluation"
	EventAudioChunk          = "audio_chunk"
	EventAudioEnd            = "audio_end"
	EventStopAudio           = "stop_audio"
	EventScreenUpdate        = "screen_update"
	EventScreenShareLost     = "screen_share_lost"
	EventScreenShareRestored = "screen_share_restored"
	EventInterviewStopped    = "interview_stopped"
	EventInterviewComplete   = "interview_complete"
	EventError               = "error"
	EventAIMessage           = "ai_message"
	EventKeepalive           = "keepalive"
)

// Event is one outbound message. The gateway delivers events in the
// order the session submitted them.
type Event struct {
	Type string
	Data any
}

func encodeEvent(ev Event) ([]byte, error) {
	out := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: ev.Type, Data: ev.Data}
	return json.Marshal(out)
}

// Status is the client-visible liveness state of the session.
type Status string

const (
	StatusListening Status = "listening"
	StatusThinking  Status = "thinking"
	StatusSpeaking  Status = "speaking"
)

type statusData struct {
	State string `json:"state"`
}

type textData struct {
	Text string `json:"text"`
}

type evaluationData struct {
	Score            int    `json:"score"`
	NextQuestion     string `json:"next_question"`
	ConflictDetected bool   `json:"conflict_detected"`
	ConflictNote     string `json:"conflict_note,omitempty"`
	Feedback         string `json:"feedback,omitempty"`
	Topic            string `json:"topic,omitempty"`
}

type audioChunkData struct {
	Audio []byte `json:"audio"`
}

type errorData struct {
	Message string `json:"message"`
}

type stoppedData struct {
	SessionID string `json:"session_id"`
}

type completeData struct {
	Summary *domain.Summary   `json:"summary"`
	History []domain.Exchange `json:"history"`
}

func statusEvent(st Status) Event {
	return Event{Type: EventStatus, Data: statusData{State: string(st)}}
}

func interimEvent(text string) Event {
	return Event{Type: EventTranscriptInterim, Data: textData{Text: text}}
}

func finalEvent(text string) Event {
	return Event{Type: EventTranscriptFinal, Data: textData{Text: text}}
}

func evaluationEvent(eval *domain.Evaluation) Event {
	return Event{Type: EventEvaluation, Data: evaluationData{
		Score:            eval.Score,
		NextQuestion:     eval.NextQuestion,
		ConflictDetected: eval.ConflictDetected,
		ConflictNote:     eval.ConflictNote,
		Feedback:         eval.Feedback,
		Topic:            eval.Topic,
	}}
}

func audioChunkEvent(chunk []byte) Event {
	return Event{Type: EventAudioChunk, Data: audioChunkData{Audio: chunk}}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Data: errorData{Message: message}}
}

func aiMessageEvent(text string) Event {
	return Event{Type: EventAIMessage, Data: textData{Text: text}}
}
