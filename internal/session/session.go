package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/navai/interview-server/internal/brain"
	"github.com/navai/interview-server/internal/domain"
	"github.com/navai/interview-server/internal/speech"
	"github.com/navai/interview-server/internal/transcribe"
	"github.com/navai/interview-server/internal/vision"
)

// Phase is the session lifecycle. The listening/thinking/speaking
// statuses the client sees are sub-states of PhaseLive, derived from
// what the session is currently doing.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseLive
	PhaseStopped
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseLive:
		return "live"
	case PhaseStopped:
		return "stopped"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Recorder receives interview history writes. Implementations must not
// block; the store's async writer satisfies this.
type Recorder interface {
	RecordStart(iv *domain.Interview)
	RecordExchange(interviewID string, ex *domain.Exchange)
	RecordFinish(interviewID string, endedAt time.Time, autoEnded bool)
	RecordSummary(interviewID string, summary *domain.Summary)
}

// Deps are the capabilities one session runs on.
type Deps struct {
	Transcriber transcribe.Transcriber
	Analyzer    vision.Analyzer
	Generator   brain.Generator
	Synthesizer speech.Synthesizer
	History     Recorder // optional
	Logger      *slog.Logger
}

// Options carries the per-session tunables.
type Options struct {
	// VisionGate configures frame change detection and debounce.
	VisionGate vision.GateConfig
	// GracePeriod is how long a lost screen share may stay lost before
	// the interview auto-ends.
	GracePeriod time.Duration
	// TranscriberRetries bounds stream reconnection attempts per outage.
	TranscriberRetries int
	// AudioRingSize is the outage buffer capacity in bytes.
	AudioRingSize int
}

func (o *Options) applyDefaults() {
	if o.GracePeriod <= 0 {
		o.GracePeriod = 30 * time.Second
	}
	if o.TranscriberRetries <= 0 {
		o.TranscriberRetries = 3
	}
}

// Internal events. Everything that mutates session state arrives here.
type event interface{ sessionEvent() }

type evClient struct{ msg Inbound }

type evTranscript struct{ res transcribe.Result }

type evTranscriptDown struct{ err error }

type evScreen struct{ analysis vision.Analysis }

type evEvaluated struct {
	seq    int
	answer string
	eval   *domain.Evaluation
	err    error
}

type evOpening struct {
	text string
	err  error
}

type evChunk struct {
	gen   uint64
	audio []byte
}

type evPlayDone struct {
	gen uint64
	err error
}

type evGrace struct{ epoch uint64 }

type evSummary struct {
	summary *domain.Summary
	err     error
}

func (evClient) sessionEvent()         {}
func (evTranscript) sessionEvent()     {}
func (evTranscriptDown) sessionEvent() {}
func (evScreen) sessionEvent()         {}
func (evEvaluated) sessionEvent()      {}
func (evOpening) sessionEvent()        {}
func (evChunk) sessionEvent()          {}
func (evPlayDone) sessionEvent()       {}
func (evGrace) sessionEvent()          {}
func (evSummary) sessionEvent()        {}

// Session orchestrates one interview connection. All state below the
// "actor state" marker is owned by the Run goroutine; other goroutines
// talk to it exclusively by posting events.
type Session struct {
	id      string
	ownerID string
	deps    Deps
	opts    Options
	logger  *slog.Logger

	// emit hands an outbound event to the gateway. Called only from
	// the Run goroutine, so egress order matches decision order.
	emit func(Event)

	ctx          context.Context
	cancel       context.CancelFunc
	ingestCtx    context.Context
	ingestCancel context.CancelFunc
	events       chan event
	done         chan struct{}
	closeOnce    sync.Once

	pump *transcriptPump
	gate *vision.Gate

	// Actor state. Only the Run goroutine reads or writes these.
	phase      Phase
	status     Status
	startedAt  time.Time
	endedAt    *time.Time
	autoEnded  bool
	interim    string
	transcript domain.Transcript
	screen     *domain.VisionContext
	exchanges  []domain.Exchange
	answerQ    []string
	genBusy    bool
	seq        int

	speaking   bool
	playGen    uint64
	playCancel context.CancelFunc

	screenLost bool
	graceEpoch uint64
	graceTimer *time.Timer

	reportRequested bool
	summaryStarted  bool
}

// New wires up a session for one accepted connection. Call Run to start
// the state machine; the emit callback receives outbound events in
// submission order.
func New(ctx context.Context, id, ownerID string, deps Deps, opts Options, emit func(Event)) *Session {
	opts.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	sctx, cancel := context.WithCancel(ctx)
	ingestCtx, ingestCancel := context.WithCancel(sctx)

	s := &Session{
		id:           id,
		ownerID:      ownerID,
		deps:         deps,
		opts:         opts,
		logger:       logger,
		emit:         emit,
		ctx:          sctx,
		cancel:       cancel,
		ingestCtx:    ingestCtx,
		ingestCancel: ingestCancel,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		phase:        PhaseConnecting,
	}

	s.pump = newTranscriptPump(deps.Transcriber, opts.TranscriberRetries, opts.AudioRingSize, s.post, logger)
	s.gate = vision.NewGate(deps.Analyzer, opts.VisionGate, func(a vision.Analysis) {
		s.post(evScreen{analysis: a})
	}, logger)

	return s
}

// ID returns the session identifier, shared with the interview record.
func (s *Session) ID() string { return s.id }

// Deliver posts one decoded client message to the state machine.
func (s *Session) Deliver(msg Inbound) {
	s.post(evClient{msg: msg})
}

// Close tears the session down and waits for the state machine to exit.
// Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(s.cancel)
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("[SESSION] close timed out waiting for loop exit")
	}
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Run executes the state machine until the session context ends. It is
// the single writer for all session state.
func (s *Session) Run() {
	defer close(s.done)
	s.begin()
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// begin arms both ingestion paths and kicks off the opening greeting.
func (s *Session) begin() {
	s.startedAt = time.Now()
	s.logger.Info("[SESSION] started", "owner_id", s.ownerID)

	if s.deps.History != nil {
		s.deps.History.RecordStart(&domain.Interview{
			ID:        s.id,
			OwnerID:   s.ownerID,
			StartedAt: s.startedAt,
		})
	}

	go s.pump.run(s.ingestCtx)
	go s.gate.Run(s.ingestCtx)

	s.phase = PhaseLive

	// Greet before the first answer: thinking while the line is
	// generated, speaking while it plays, then listening.
	s.genBusy = true
	s.syncStatus()
	go func() {
		text, err := s.deps.Generator.Opening(s.ctx)
		s.post(evOpening{text: text, err: err})
	}()
}

func (s *Session) shutdown() {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	if s.playCancel != nil {
		s.playCancel()
		s.playCancel = nil
	}
	s.ingestCancel()
	s.logger.Info("[SESSION] closed", "phase", s.phase.String())
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case evClient:
		s.handleClient(ev.msg)
	case evTranscript:
		s.handleTranscript(ev.res)
	case evTranscriptDown:
		if s.phase == PhaseLive {
			s.emit(errorEvent("transcription is temporarily unavailable; your audio is still being captured"))
		}
	case evScreen:
		s.handleScreen(ev.analysis)
	case evEvaluated:
		s.handleEvaluated(ev)
	case evOpening:
		s.handleOpening(ev)
	case evChunk:
		s.handleChunk(ev)
	case evPlayDone:
		s.handlePlayDone(ev)
	case evGrace:
		s.handleGrace(ev)
	case evSummary:
		s.handleSummary(ev)
	}
}

func (s *Session) handleClient(msg Inbound) {
	switch m := msg.(type) {
	case AudioIn:
		if s.phase != PhaseLive {
			return
		}
		if s.speaking {
			s.bargeIn()
		}
		s.pump.feed(m.Data)
	case VideoIn:
		if s.phase != PhaseLive || s.screenLost {
			return
		}
		s.gate.Submit(m.Data, time.Now())
	case StopIn:
		s.stop(false)
	case GenerateReportIn:
		s.requestReport()
	case ScreenLostIn:
		s.screenShareLost()
	case ScreenRestoredIn:
		s.screenShareRestored()
	}
}

// bargeIn cancels playback because the user started talking over it.
// The stop_audio event goes out before any later chunk event can be
// processed, so the client never hears stale speech.
func (s *Session) bargeIn() {
	s.logger.Debug("[SESSION] barge-in, cancelling playback")
	s.cancelPlayback()
	s.emit(Event{Type: EventStopAudio})
	s.syncStatus()
}

func (s *Session) handleTranscript(res transcribe.Result) {
	if s.phase != PhaseLive {
		return
	}

	if !res.IsFinal {
		s.interim = res.Text
		s.emit(interimEvent(res.Text))
		return
	}

	text := strings.TrimSpace(res.Text)
	s.interim = ""
	if text == "" {
		return
	}

	s.emit(finalEvent(text))
	s.transcript = s.transcript.Append(domain.TranscriptSegment{
		Kind:      domain.SegmentFinal,
		Text:      text,
		Timestamp: time.Now(),
	})

	// Every finalized answer is evaluated, in finalization order.
	s.answerQ = append(s.answerQ, text)
	s.maybeEvaluate()
	s.syncStatus()
}

func (s *Session) maybeEvaluate() {
	if s.genBusy || s.phase != PhaseLive || len(s.answerQ) == 0 {
		return
	}

	answer := s.answerQ[0]
	s.answerQ = s.answerQ[1:]
	s.genBusy = true
	s.seq++

	req := brain.EvaluationRequest{
		Answer:          answer,
		TranscriptSoFar: s.transcript.Join(),
		ScreenContext:   s.screenDescription(),
		History:         append([]domain.Exchange(nil), s.exchanges...),
	}
	seq := s.seq
	go func() {
		eval, err := s.deps.Generator.Evaluate(s.ctx, req)
		s.post(evEvaluated{seq: seq, answer: answer, eval: eval, err: err})
	}()
}

func (s *Session) handleEvaluated(ev evEvaluated) {
	s.genBusy = false

	eval := ev.eval
	if ev.err != nil || eval == nil {
		s.logger.Warn("[SESSION] evaluation failed, using fallback", "seq", ev.seq, "error", ev.err)
		if s.phase == PhaseLive {
			s.emit(errorEvent("question generation failed; continuing with a fallback question"))
		}
		eval = brain.FallbackEvaluation()
	}

	ex := domain.Exchange{
		Seq:           ev.seq,
		Answer:        ev.answer,
		Evaluation:    *eval,
		ScreenContext: s.screenDescription(),
		CreatedAt:     time.Now(),
	}
	s.exchanges = append(s.exchanges, ex)
	if s.deps.History != nil {
		s.deps.History.RecordExchange(s.id, &ex)
	}

	if s.phase == PhaseLive {
		s.emit(evaluationEvent(eval))
		if question := strings.TrimSpace(eval.NextQuestion); !eval.Proceed && question != "" {
			s.speak(question)
		}
	}

	s.maybeEvaluate()
	s.maybeSummarize()
	s.syncStatus()
}

func (s *Session) handleOpening(ev evOpening) {
	s.genBusy = false

	text := strings.TrimSpace(ev.text)
	if ev.err != nil || text == "" {
		s.logger.Warn("[SESSION] opening generation failed, using fallback", "error", ev.err)
		text = brain.FallbackOpening
	}

	if s.phase == PhaseLive {
		s.emit(aiMessageEvent(text))
		s.speak(text)
	}

	s.maybeEvaluate()
	s.syncStatus()
}

func (s *Session) handleScreen(a vision.Analysis) {
	if s.phase != PhaseLive {
		return
	}
	s.screen = &domain.VisionContext{
		Description: a.Description,
		CapturedAt:  a.CapturedAt,
	}
	s.emit(Event{Type: EventScreenUpdate})
	s.logger.Debug("[SESSION] vision context updated", "chars", len(a.Description))
}

func (s *Session) screenDescription() string {
	if s.screen == nil {
		return ""
	}
	return s.screen.Description
}

func (s *Session) screenShareLost() {
	if s.phase != PhaseLive || s.screenLost {
		return
	}

	s.screenLost = true
	s.graceEpoch++
	epoch := s.graceEpoch
	s.graceTimer = time.AfterFunc(s.opts.GracePeriod, func() {
		s.post(evGrace{epoch: epoch})
	})

	s.logger.Info("[SESSION] screen share lost", "grace", s.opts.GracePeriod.String())
	s.emit(Event{Type: EventScreenShareLost})
	s.emit(aiMessageEvent("It looks like your screen share stopped. Please restore it, or the interview will end shortly."))
}

func (s *Session) screenShareRestored() {
	if s.phase != PhaseLive || !s.screenLost {
		// Duplicate restore events are a no-op, not an error.
		return
	}

	s.screenLost = false
	s.graceEpoch++
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}

	s.logger.Info("[SESSION] screen share restored")
	s.emit(Event{Type: EventScreenShareRestored})
}

func (s *Session) handleGrace(ev evGrace) {
	// Stale timers carry an old epoch: restored, re-lost, or stopped
	// since they were armed.
	if ev.epoch != s.graceEpoch || !s.screenLost || s.phase != PhaseLive {
		return
	}
	s.logger.Info("[SESSION] screen share grace period expired, ending interview")
	s.stop(true)
}

// stop moves the session to PhaseStopped from any live phase. auto marks
// ends forced by grace expiry rather than a client request.
func (s *Session) stop(auto bool) {
	if s.phase == PhaseStopped || s.phase == PhaseComplete {
		return
	}

	if s.speaking {
		s.cancelPlayback()
		s.emit(Event{Type: EventStopAudio})
	}

	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.graceEpoch++

	// A half-finished utterance still belongs in the transcript.
	if text := strings.TrimSpace(s.interim); text != "" {
		s.interim = ""
		s.emit(finalEvent(text))
		s.transcript = s.transcript.Append(domain.TranscriptSegment{
			Kind:      domain.SegmentFinal,
			Text:      text,
			Timestamp: time.Now(),
		})
	}

	now := time.Now()
	s.endedAt = &now
	s.autoEnded = auto
	s.phase = PhaseStopped
	s.ingestCancel()

	if s.deps.History != nil {
		s.deps.History.RecordFinish(s.id, now, auto)
	}

	closing := "Thank you for walking me through your work. The interview is now complete."
	if auto {
		closing = "The screen share was not restored in time, so the interview has ended. Thank you for your time."
	}
	s.emit(aiMessageEvent(closing))
	s.emit(Event{Type: EventInterviewStopped, Data: stoppedData{SessionID: s.id}})
	s.logger.Info("[SESSION] stopped", "auto_ended", auto, "exchanges", len(s.exchanges))
}

func (s *Session) requestReport() {
	if s.phase != PhaseStopped {
		s.logger.Warn("[SESSION] generate_report ignored", "phase", s.phase.String())
		return
	}
	s.reportRequested = true
	s.maybeSummarize()
}

// maybeSummarize starts the summary once the report has been requested
// and the generator is free. An evaluation still in flight when the
// interview stopped finishes first.
func (s *Session) maybeSummarize() {
	if !s.reportRequested || s.summaryStarted || s.genBusy || s.phase != PhaseStopped {
		return
	}
	s.summaryStarted = true
	s.genBusy = true

	iv := s.interviewRecord()
	go func() {
		summary, err := s.deps.Generator.Summarize(s.ctx, iv)
		s.post(evSummary{summary: summary, err: err})
	}()
}

func (s *Session) handleSummary(ev evSummary) {
	s.genBusy = false
	if s.phase != PhaseStopped {
		return
	}

	summary := ev.summary
	if ev.err != nil || summary == nil {
		s.logger.Warn("[SESSION] summary generation failed, using statistical fallback", "error", ev.err)
		s.emit(errorEvent("report generation failed; returning a statistical summary"))
		summary = brain.FallbackSummary(s.interviewRecord())
	}

	s.phase = PhaseComplete
	if s.deps.History != nil {
		s.deps.History.RecordSummary(s.id, summary)
	}

	s.emit(Event{Type: EventInterviewComplete, Data: completeData{
		Summary: summary,
		History: append([]domain.Exchange(nil), s.exchanges...),
	}})
	s.logger.Info("[SESSION] complete", "overall_score", summary.OverallScore)
}

func (s *Session) interviewRecord() *domain.Interview {
	return &domain.Interview{
		ID:        s.id,
		OwnerID:   s.ownerID,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
		AutoEnded: s.autoEnded,
		Exchanges: append([]domain.Exchange(nil), s.exchanges...),
	}
}

// syncStatus broadcasts the derived client-visible status when it
// changes. Speaking wins over thinking: the client animates whatever is
// audible.
func (s *Session) syncStatus() {
	if s.phase != PhaseLive {
		return
	}
	st := StatusListening
	switch {
	case s.speaking:
		st = StatusSpeaking
	case s.genBusy:
		st = StatusThinking
	}
	if st == s.status {
		return
	}
	s.status = st
	s.emit(statusEvent(st))
}
