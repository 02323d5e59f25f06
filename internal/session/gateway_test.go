package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// gatewayHarness runs a gateway on a live test server with the same
// fakes the session tests use.
type gatewayHarness struct {
	srv      *httptest.Server
	registry *Registry
	trans    *fakeTranscriber
	gen      *scriptGenerator
	synth    *fakeSynth
	hist     *recordingHistory
}

func startGateway(t *testing.T, mutate func(*GatewayConfig)) *gatewayHarness {
	t.Helper()

	h := &gatewayHarness{
		registry: NewRegistry(),
		trans:    newFakeTranscriber(),
		gen:      &scriptGenerator{},
		synth:    newFakeSynth(),
		hist:     &recordingHistory{},
	}

	deps := Deps{
		Transcriber: h.trans,
		Analyzer:    fakeAnalyzer{},
		Generator:   h.gen,
		Synthesizer: h.synth,
		History:     h.hist,
		Logger:      discardLogger(),
	}
	cfg := GatewayConfig{
		DevMode: true,
		Session: Options{TranscriberRetries: 2},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	gw := NewGateway(deps, cfg, h.registry, discardLogger())
	h.srv = httptest.NewServer(gw)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *gatewayHarness) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "test done")
	})
	return conn
}

// readUntil consumes frames until one with the wanted type arrives,
// returning its decoded envelope.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) envelope {
	t.Helper()
	var seen []string
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read while waiting for %q failed: %v (saw %v)", typ, err, seen)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad frame %q: %v", raw, err)
		}
		if env.Type == typ {
			return env
		}
		seen = append(seen, env.Type)
	}
}

func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestGatewayEndToEndInterview(t *testing.T) {
	h := startGateway(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := h.dial(t, ctx)

	// Opening: greeting text, audio, then back to listening.
	env := readUntil(t, ctx, conn, EventAIMessage)
	var greeting textData
	if err := json.Unmarshal(env.Data, &greeting); err != nil {
		t.Fatalf("bad ai_message payload: %v", err)
	}
	if greeting.Text == "" {
		t.Error("opening greeting is empty")
	}
	readUntil(t, ctx, conn, EventAudioChunk)
	readUntil(t, ctx, conn, EventAudioEnd)

	// Microphone audio flows through to the transcription stream.
	sendJSON(t, ctx, conn, map[string]any{
		"type": "audio",
		"data": AudioIn{Data: []byte("pcm-bytes"), Encoding: "linear16", SampleRate: 16000},
	})
	st := h.trans.waitStream(t, 0)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if bytes.Contains(st.sentBytes(), []byte("pcm-bytes")) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !bytes.Contains(st.sentBytes(), []byte("pcm-bytes")) {
		t.Fatalf("transcriber never received audio, got %q", st.sentBytes())
	}

	// A finalized answer produces a transcript event and a follow-up
	// question over the wire.
	st.push("I built the ingest pipeline", true)

	env = readUntil(t, ctx, conn, EventTranscriptFinal)
	var final textData
	if err := json.Unmarshal(env.Data, &final); err != nil {
		t.Fatalf("bad transcript_final payload: %v", err)
	}
	if final.Text != "I built the ingest pipeline" {
		t.Errorf("transcript_final = %q", final.Text)
	}

	env = readUntil(t, ctx, conn, EventEvaluation)
	var eval evaluationData
	if err := json.Unmarshal(env.Data, &eval); err != nil {
		t.Fatalf("bad evaluation payload: %v", err)
	}
	if eval.Score != 7 || !strings.Contains(eval.NextQuestion, "ingest pipeline") {
		t.Errorf("evaluation = %+v", eval)
	}
	readUntil(t, ctx, conn, EventAudioEnd)

	// Stop, then ask for the report.
	sendJSON(t, ctx, conn, map[string]string{"type": "stop"})
	env = readUntil(t, ctx, conn, EventInterviewStopped)
	var stopped stoppedData
	if err := json.Unmarshal(env.Data, &stopped); err != nil {
		t.Fatalf("bad interview_stopped payload: %v", err)
	}
	if stopped.SessionID == "" {
		t.Error("interview_stopped carries no session id")
	}

	sendJSON(t, ctx, conn, map[string]string{"type": "generate_report"})
	env = readUntil(t, ctx, conn, EventInterviewComplete)
	var complete struct {
		Summary struct {
			OverallScore int `json:"overall_score"`
		} `json:"summary"`
		History []struct {
			Answer string `json:"answer"`
		} `json:"history"`
	}
	if err := json.Unmarshal(env.Data, &complete); err != nil {
		t.Fatalf("bad interview_complete payload: %v", err)
	}
	if complete.Summary.OverallScore != 80 {
		t.Errorf("overall score = %d, want 80", complete.Summary.OverallScore)
	}
	if len(complete.History) != 1 || complete.History[0].Answer != "I built the ingest pipeline" {
		t.Errorf("history = %+v", complete.History)
	}
}

func TestGatewaySurvivesMalformedMessages(t *testing.T) {
	h := startGateway(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := h.dial(t, ctx)
	readUntil(t, ctx, conn, EventAudioEnd)

	// None of these may kill the connection.
	for _, raw := range []string{
		"not json at all",
		`{"type":"resize","data":{"cols":80}}`,
		`{"type":"audio","data":{"data":""}}`,
		`{}`,
	} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
			t.Fatalf("write of %q failed: %v", raw, err)
		}
	}

	sendJSON(t, ctx, conn, map[string]string{"type": "stop"})
	readUntil(t, ctx, conn, EventInterviewStopped)
}

func TestGatewayRejectsForeignOrigin(t *testing.T) {
	h := startGateway(t, func(cfg *GatewayConfig) {
		cfg.DevMode = false
		cfg.AllowedOrigin = "https://app.example.com"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("dial from a foreign origin should fail")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestGatewayAllowsConfiguredOrigin(t *testing.T) {
	h := startGateway(t, func(cfg *GatewayConfig) {
		cfg.DevMode = false
		cfg.AllowedOrigin = "https://app.example.com"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	header := http.Header{}
	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial from the configured origin failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, conn, EventStatus)
}

func TestGatewayKeepalive(t *testing.T) {
	h := startGateway(t, func(cfg *GatewayConfig) {
		cfg.KeepaliveInterval = 20 * time.Millisecond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := h.dial(t, ctx)

	readUntil(t, ctx, conn, EventKeepalive)
}

func TestGatewayRegistryTracksConnections(t *testing.T) {
	h := startGateway(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := h.dial(t, ctx)
	readUntil(t, ctx, conn, EventStatus)

	if h.registry.Len() != 1 {
		t.Fatalf("registry Len() = %d after connect, want 1", h.registry.Len())
	}

	conn.Close(websocket.StatusNormalClosure, "leaving")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.registry.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry Len() = %d after disconnect, want 0", h.registry.Len())
}
