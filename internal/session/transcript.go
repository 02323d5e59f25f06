package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/navai/interview-server/internal/transcribe"
)

const (
	feedQueueSize      = 256
	reconnectBaseDelay = 500 * time.Millisecond
)

// transcriptPump owns the live transcription stream for one session. It
// forwards audio in arrival order, posts results back to the session
// loop, and rides out stream outages: while the stream is down, audio
// lands in a bounded ring and is replayed on reconnect so transcription
// resumes without a visible gap.
type transcriptPump struct {
	transcriber transcribe.Transcriber
	retries     int
	post        func(event)
	ring        *audioRing
	feedCh      chan []byte
	dropped     atomic.Int64
	logger      *slog.Logger
}

func newTranscriptPump(t transcribe.Transcriber, retries, ringSize int, post func(event), logger *slog.Logger) *transcriptPump {
	if retries <= 0 {
		retries = 3
	}
	return &transcriptPump{
		transcriber: t,
		retries:     retries,
		post:        post,
		ring:        newAudioRing(ringSize),
		feedCh:      make(chan []byte, feedQueueSize),
		logger:      logger,
	}
}

// feed hands one audio chunk to the pump. Never blocks: if the pump is
// hopelessly behind the chunk is dropped and counted.
func (p *transcriptPump) feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	select {
	case p.feedCh <- chunk:
	default:
		n := p.dropped.Add(1)
		p.logger.Warn("[TRANSCRIPT] audio queue full, dropping chunk",
			"bytes", len(chunk), "dropped_total", n)
	}
}

// run drives the pump until the context ends. Call on its own goroutine.
func (p *transcriptPump) run(ctx context.Context) {
	stream, err := p.transcriber.Start(ctx)
	if err != nil {
		p.logger.Warn("[TRANSCRIPT] initial stream connect failed", "error", err)
		stream = p.reconnect(ctx)
	}

	for stream != nil {
		p.pumpStream(ctx, stream)
		if ctx.Err() != nil {
			return
		}
		stream = p.reconnect(ctx)
	}

	// All reconnect attempts failed. The session stays alive; keep
	// capturing audio into the ring so nothing blocks upstream.
	p.drain(ctx)
}

// pumpStream shovels audio into the stream and results out of it until
// the stream dies or the context ends.
func (p *transcriptPump) pumpStream(ctx context.Context, stream transcribe.Stream) {
	defer func() {
		if err := stream.Close(); err != nil {
			p.logger.Debug("[TRANSCRIPT] stream close", "error", err)
		}
	}()

	results := stream.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-p.feedCh:
			if err := stream.Send(chunk); err != nil {
				p.logger.Warn("[TRANSCRIPT] stream send failed", "error", err)
				p.ring.Write(chunk)
				return
			}
		case res, open := <-results:
			if !open {
				if err := stream.Err(); err != nil {
					p.logger.Warn("[TRANSCRIPT] stream ended", "error", err)
				} else {
					p.logger.Info("[TRANSCRIPT] stream closed by transcriber")
				}
				return
			}
			p.post(evTranscript{res: res})
		}
	}
}

// reconnect tries to bring the stream back with exponential backoff,
// buffering arriving audio the whole time. Returns nil once every
// attempt is spent.
func (p *transcriptPump) reconnect(ctx context.Context) transcribe.Stream {
	for attempt := 1; attempt <= p.retries; attempt++ {
		delay := reconnectBaseDelay << (attempt - 1)
		if !p.bufferFor(ctx, delay) {
			return nil
		}

		stream, err := p.transcriber.Start(ctx)
		if err != nil {
			p.logger.Warn("[TRANSCRIPT] reconnect attempt failed",
				"attempt", attempt, "of", p.retries, "error", err)
			continue
		}

		if err := p.flushRing(stream); err != nil {
			p.logger.Warn("[TRANSCRIPT] buffered audio replay failed",
				"attempt", attempt, "error", err)
			_ = stream.Close()
			continue
		}

		p.logger.Info("[TRANSCRIPT] stream reconnected", "attempt", attempt)
		return stream
	}

	if ctx.Err() == nil {
		p.post(evTranscriptDown{err: errors.New("transcription unavailable after reconnect attempts")})
	}
	return nil
}

// bufferFor waits out a backoff delay while spooling audio into the
// ring. Returns false if the context ended first.
func (p *transcriptPump) bufferFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case chunk := <-p.feedCh:
			p.ring.Write(chunk)
		case <-timer.C:
			return true
		}
	}
}

// flushRing replays audio captured during the outage into a fresh stream.
func (p *transcriptPump) flushRing(stream transcribe.Stream) error {
	if p.ring.Len() == 0 {
		return nil
	}
	buf := p.ring.Bytes()
	p.ring.Reset()
	p.logger.Info("[TRANSCRIPT] replaying buffered audio", "bytes", len(buf))
	return stream.Send(buf)
}

// drain keeps absorbing audio into the ring after transcription is gone
// for good, so the feed path stays cheap and memory stays bounded.
func (p *transcriptPump) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-p.feedCh:
			p.ring.Write(chunk)
		}
	}
}
