package session

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// speak starts streaming one synthesized utterance to the client. A new
// utterance while one is playing supersedes it: the old one is cancelled
// with a stop_audio marker first, never queued behind.
func (s *Session) speak(text string) {
	if s.speaking {
		s.cancelPlayback()
		s.emit(Event{Type: EventStopAudio})
	}

	s.playGen++
	gen := s.playGen
	ctx, cancel := context.WithCancel(s.ctx)
	s.playCancel = cancel
	s.speaking = true

	go s.streamSpeech(ctx, gen, text)
}

// cancelPlayback invalidates the current utterance. Chunk events already
// posted by the synthesis goroutine carry the old generation and are
// discarded when the loop reaches them, so nothing plays after the
// cancellation point.
func (s *Session) cancelPlayback() {
	if s.playCancel != nil {
		s.playCancel()
		s.playCancel = nil
	}
	s.playGen++
	s.speaking = false
}

// streamSpeech runs off the actor goroutine: it drives the synthesizer
// and posts chunks back tagged with their generation.
func (s *Session) streamSpeech(ctx context.Context, gen uint64, text string) {
	stream, err := s.deps.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			s.post(evPlayDone{gen: gen, err: fmt.Errorf("synthesize: %w", err)})
		}
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Debug("[SESSION] speech stream close", "error", err)
		}
	}()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			s.post(evPlayDone{gen: gen})
			return
		}
		if err != nil {
			// A cancelled utterance ends silently; the session
			// already moved on.
			if ctx.Err() == nil {
				s.post(evPlayDone{gen: gen, err: err})
			}
			return
		}
		s.post(evChunk{gen: gen, audio: chunk})
	}
}

func (s *Session) handleChunk(ev evChunk) {
	if ev.gen != s.playGen || !s.speaking || s.phase != PhaseLive {
		return
	}
	s.emit(audioChunkEvent(ev.audio))
}

func (s *Session) handlePlayDone(ev evPlayDone) {
	if ev.gen != s.playGen {
		return
	}
	s.speaking = false
	s.playCancel = nil

	if s.phase == PhaseLive {
		if ev.err != nil {
			s.logger.Warn("[SESSION] playback failed", "error", ev.err)
			s.emit(errorEvent("speech playback failed"))
		} else {
			s.emit(Event{Type: EventAudioEnd})
		}
	}
	s.syncStatus()
}
