// Package speech synthesizes question text into streamed audio.
package speech

import (
	"context"
	"io"
)

// Stream yields synthesized audio chunks in playback order.
type Stream interface {
	// Recv returns the next audio chunk. io.EOF signals a finished
	// utterance; any other error means the utterance is unusable.
	Recv() ([]byte, error)

	// Close abandons the stream. Safe to call at any point.
	Close() error
}

// Synthesizer turns text into a cancellable audio stream. Cancelling the
// context passed to Synthesize aborts the underlying request and makes
// pending Recv calls fail.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Stream, error)
}

const chunkSize = 4096

// readerStream adapts a raw audio body into chunked Recv calls.
type readerStream struct {
	rc  io.ReadCloser
	buf []byte
}

func newReaderStream(rc io.ReadCloser) *readerStream {
	return &readerStream{rc: rc, buf: make([]byte, chunkSize)}
}

func (s *readerStream) Recv() ([]byte, error) {
	for {
		n, err := s.rc.Read(s.buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			return chunk, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *readerStream) Close() error {
	return s.rc.Close()
}
