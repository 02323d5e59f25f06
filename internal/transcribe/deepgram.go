package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	keepaliveEvery    = 5 * time.Second
	resultsBufferSize = 16
)

// Deepgram opens streaming transcription sessions against the Deepgram
// real-time API.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	logger     *slog.Logger
}

// NewDeepgram creates a Deepgram transcriber.
func NewDeepgram(apiKey, model string, sampleRate int, logger *slog.Logger) *Deepgram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deepgram{apiKey: apiKey, model: model, sampleRate: sampleRate, logger: logger}
}

// streamURL builds the listen endpoint with the session parameters.
func (d *Deepgram) streamURL() (string, error) {
	endpoint, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	model := d.model
	if model == "" {
		model = "nova-2"
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", d.sampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	endpoint.RawQuery = q.Encode()

	return endpoint.String(), nil
}

// Start dials the streaming endpoint and begins reading results.
func (d *Deepgram) Start(ctx context.Context) (Stream, error) {
	target, err := d.streamURL()
	if err != nil {
		return nil, fmt.Errorf("build deepgram url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, target, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial deepgram: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	s := &deepgramStream{
		conn:    conn,
		ctx:     streamCtx,
		cancel:  cancel,
		results: make(chan Result, resultsBufferSize),
		logger:  d.logger,
	}

	go s.readLoop()
	go s.keepaliveLoop()

	return s, nil
}

// deepgramResponse is the subset of the live API message we consume.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r *deepgramResponse) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
}

// utteranceAssembler merges Deepgram's incremental finals into whole
// utterances. is_final messages carry settled fragments; speech_final or
// UtteranceEnd closes the utterance.
type utteranceAssembler struct {
	parts []string
}

func (a *utteranceAssembler) push(resp *deepgramResponse) (Result, bool) {
	switch resp.Type {
	case "Results":
		text := resp.transcript()
		if !resp.IsFinal {
			if text == "" {
				return Result{}, false
			}
			return Result{Text: text, IsFinal: false}, true
		}
		if text != "" {
			a.parts = append(a.parts, text)
		}
		if resp.SpeechFinal {
			return a.flush()
		}
		return Result{}, false
	case "UtteranceEnd":
		return a.flush()
	default:
		// Metadata, SpeechStarted and friends carry no transcript.
		return Result{}, false
	}
}

func (a *utteranceAssembler) flush() (Result, bool) {
	if len(a.parts) == 0 {
		return Result{}, false
	}
	text := strings.Join(a.parts, " ")
	a.parts = nil
	return Result{Text: text, IsFinal: true}, true
}

type deepgramStream struct {
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	results chan Result
	logger  *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Send forwards one chunk of raw PCM audio.
func (s *deepgramStream) Send(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

// Results yields transcription updates.
func (s *deepgramStream) Results() <-chan Result {
	return s.results
}

// Err reports why Results closed.
func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close finalizes the stream and closes the connection.
func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		// Best effort: ask the API to flush whatever it is still holding.
		_ = s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()

		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

func (s *deepgramStream) readLoop() {
	defer close(s.results)

	var assembler utteranceAssembler
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if !s.closedCleanly(err) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			s.logger.Warn("[DEEPGRAM] undecodable message", "error", err, "bytes", len(data))
			continue
		}

		if result, ok := assembler.push(&resp); ok {
			select {
			case s.results <- result:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *deepgramStream) closedCleanly(err error) bool {
	if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}

// keepaliveLoop keeps the connection open across silent stretches.
func (s *deepgramStream) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
