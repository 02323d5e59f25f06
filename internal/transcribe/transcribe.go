// Package transcribe turns raw audio into interim and final transcript results.
package transcribe

import "context"

// Result is one transcription update from a live stream.
type Result struct {
	Text    string
	IsFinal bool // the transcriber will not revise this text further
}

// Stream is one live transcription connection. Audio goes in via Send in
// strict arrival order; results come out of Results until the channel closes.
type Stream interface {
	// Send forwards one chunk of raw PCM audio.
	Send(pcm []byte) error

	// Results yields transcription updates. Closed when the stream ends,
	// whether cleanly or not; check Err afterwards.
	Results() <-chan Result

	// Err reports why Results closed. Nil after a clean shutdown.
	Err() error

	// Close tears the stream down and flushes any pending utterance.
	Close() error
}

// Transcriber opens live transcription streams.
type Transcriber interface {
	Start(ctx context.Context) (Stream, error)
}
