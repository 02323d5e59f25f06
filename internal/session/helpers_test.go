package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/navai/interview-server/internal/brain"
	"github.com/navai/interview-server/internal/domain"
	"github.com/navai/interview-server/internal/speech"
	"github.com/navai/interview-server/internal/transcribe"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventSink collects outbound events in emission order.
type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func newEventSink() *eventSink { return &eventSink{} }

func (k *eventSink) emit(ev Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, ev)
}

func (k *eventSink) snapshot() []Event {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]Event(nil), k.events...)
}

func (k *eventSink) count(typ string) int {
	n := 0
	for _, ev := range k.snapshot() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (k *eventSink) types() []string {
	events := k.snapshot()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

// waitCount polls until at least n events of the given type were
// emitted, returning them in order.
func (k *eventSink) waitCount(t *testing.T, typ string, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var found []Event
		for _, ev := range k.snapshot() {
			if ev.Type == typ {
				found = append(found, ev)
			}
		}
		if len(found) >= n {
			return found
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q event(s); saw %v", n, typ, k.types())
	return nil
}

func (k *eventSink) waitFor(t *testing.T, typ string) Event {
	t.Helper()
	return k.waitCount(t, typ, 1)[0]
}

// waitStatus polls until a status event with the given state appears.
func (k *eventSink) waitStatus(t *testing.T, state Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range k.snapshot() {
			if ev.Type == EventStatus && ev.Data.(statusData).State == string(state) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q; saw %v", state, k.types())
}

// fakeTranscriber hands out scriptable streams and can be told to
// refuse the next dials.
type fakeTranscriber struct {
	mu       sync.Mutex
	streams  []*fakeTranscribeStream
	failNext int
}

func newFakeTranscriber() *fakeTranscriber { return &fakeTranscriber{} }

func (f *fakeTranscriber) Start(ctx context.Context) (transcribe.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("transcriber dial refused")
	}
	st := &fakeTranscribeStream{results: make(chan transcribe.Result, 16)}
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeTranscriber) refuseNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

func (f *fakeTranscriber) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// waitStream polls until stream n exists.
func (f *fakeTranscriber) waitStream(t *testing.T, n int) *fakeTranscribeStream {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.streams) > n {
			st := f.streams[n]
			f.mu.Unlock()
			return st
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for transcriber stream %d", n)
	return nil
}

type fakeTranscribeStream struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	err     error
	closed  bool
	results chan transcribe.Result
	once    sync.Once
}

func (s *fakeTranscribeStream) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	s.sent = append(s.sent, buf)
	return nil
}

func (s *fakeTranscribeStream) Results() <-chan transcribe.Result { return s.results }

func (s *fakeTranscribeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeTranscribeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.results) })
	return nil
}

// fail simulates the vendor dropping the stream: results end with an
// error and further sends are refused.
func (s *fakeTranscribeStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.sendErr = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.results) })
}

// push injects a transcription result.
func (s *fakeTranscribeStream) push(text string, final bool) {
	s.results <- transcribe.Result{Text: text, IsFinal: final}
}

func (s *fakeTranscribeStream) sentBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, chunk := range s.sent {
		out = append(out, chunk...)
	}
	return out
}

// fakeAnalyzer answers every frame with a fixed description.
type fakeAnalyzer struct{ desc string }

func (a fakeAnalyzer) Analyze(ctx context.Context, frame []byte) (string, error) {
	if a.desc == "" {
		return "a terminal window", nil
	}
	return a.desc, nil
}

// scriptGenerator is a controllable question generator.
type scriptGenerator struct {
	mu        sync.Mutex
	evalCalls []brain.EvaluationRequest
	sumCalls  int

	opening   string
	openErr   error
	evalDelay time.Duration
	evalErr   error
	proceed   bool
	summary   *domain.Summary
	sumErr    error
}

func (g *scriptGenerator) Opening(ctx context.Context) (string, error) {
	if g.openErr != nil {
		return "", g.openErr
	}
	if g.opening == "" {
		return "Welcome, walk me through your screen.", nil
	}
	return g.opening, nil
}

func (g *scriptGenerator) Evaluate(ctx context.Context, req brain.EvaluationRequest) (*domain.Evaluation, error) {
	g.mu.Lock()
	g.evalCalls = append(g.evalCalls, req)
	g.mu.Unlock()

	if g.evalDelay > 0 {
		select {
		case <-time.After(g.evalDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.evalErr != nil {
		return nil, g.evalErr
	}
	if g.proceed {
		return &domain.Evaluation{Score: 6, Proceed: true}, nil
	}
	return &domain.Evaluation{
		Score:        7,
		NextQuestion: "Tell me more about: " + req.Answer,
		Feedback:     "ok",
	}, nil
}

func (g *scriptGenerator) Summarize(ctx context.Context, iv *domain.Interview) (*domain.Summary, error) {
	g.mu.Lock()
	g.sumCalls++
	g.mu.Unlock()
	if g.sumErr != nil {
		return nil, g.sumErr
	}
	if g.summary != nil {
		return g.summary, nil
	}
	return &domain.Summary{
		OverallScore:  80,
		Summary:       "solid walkthrough",
		QuestionCount: len(iv.Exchanges),
		AverageScore:  iv.AverageScore(),
	}, nil
}

func (g *scriptGenerator) evaluations() []brain.EvaluationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]brain.EvaluationRequest(nil), g.evalCalls...)
}

// fakeSynth yields two small chunks per utterance. One call index can be
// told to block mid-stream until released, for interruption tests.
type fakeSynth struct {
	mu         sync.Mutex
	calls      []string
	blockCall  int
	blockAfter int
	release    chan struct{}
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{blockCall: -1, release: make(chan struct{})}
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (speech.Stream, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	st := &fakeSpeechStream{
		ctx:    ctx,
		chunks: [][]byte{{0xA1}, {0xA2}},
	}
	if idx == f.blockCall {
		st.blockAfter = f.blockAfter
		st.release = f.release
	}
	return st, nil
}

func (f *fakeSynth) callTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// waitCall polls until call n happened and returns its text.
func (f *fakeSynth) waitCall(t *testing.T, n int) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.calls) > n {
			text := f.calls[n]
			f.mu.Unlock()
			return text
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for synthesizer call %d", n)
	return ""
}

type fakeSpeechStream struct {
	ctx        context.Context
	chunks     [][]byte
	sent       int
	blockAfter int
	release    chan struct{}
}

func (s *fakeSpeechStream) Recv() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.release != nil && s.sent == s.blockAfter {
		select {
		case <-s.release:
			s.release = nil
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
	if s.sent >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.sent]
	s.sent++
	return chunk, nil
}

func (s *fakeSpeechStream) Close() error { return nil }

// recordingHistory captures recorder calls for assertions.
type recordingHistory struct {
	mu        sync.Mutex
	starts    []*domain.Interview
	exchanges []*domain.Exchange
	finishes  int
	summaries []*domain.Summary
}

func (h *recordingHistory) RecordStart(iv *domain.Interview) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts = append(h.starts, iv)
}

func (h *recordingHistory) RecordExchange(id string, ex *domain.Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = append(h.exchanges, ex)
}

func (h *recordingHistory) RecordFinish(id string, endedAt time.Time, autoEnded bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finishes++
}

func (h *recordingHistory) RecordSummary(id string, summary *domain.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summaries = append(h.summaries, summary)
}

// testFrame builds a solid-color PNG big enough for the frame gate.
func testFrame(c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// testHarness bundles one running session with its fakes.
type testHarness struct {
	sess  *Session
	sink  *eventSink
	trans *fakeTranscriber
	gen   *scriptGenerator
	synth *fakeSynth
	hist  *recordingHistory
}

// startSession runs a session against fresh fakes and waits for the
// opening greeting to finish so tests start from a quiet listening
// state.
func startSession(t *testing.T, mutate func(*Deps, *Options)) *testHarness {
	t.Helper()

	h := &testHarness{
		sink:  newEventSink(),
		trans: newFakeTranscriber(),
		gen:   &scriptGenerator{},
		synth: newFakeSynth(),
		hist:  &recordingHistory{},
	}

	deps := Deps{
		Transcriber: h.trans,
		Analyzer:    fakeAnalyzer{},
		Generator:   h.gen,
		Synthesizer: h.synth,
		History:     h.hist,
		Logger:      discardLogger(),
	}
	opts := Options{
		GracePeriod:        50 * time.Millisecond,
		TranscriberRetries: 2,
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.sess = New(ctx, "sess-test", "owner-test", deps, opts, h.sink.emit)
	go h.sess.Run()
	t.Cleanup(func() {
		cancel()
		h.sess.Close()
	})

	h.sink.waitStatus(t, StatusListening)
	return h
}

// finalize pushes one finalized utterance through the transcriber.
func (h *testHarness) finalize(t *testing.T, text string) {
	t.Helper()
	st := h.trans.waitStream(t, 0)
	st.push(text, true)
}
