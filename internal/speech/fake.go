package speech

import (
	"context"
	"io"
)

// FakeSynthesizer produces silent placeholder audio for development runs
// without a TTS key.
type FakeSynthesizer struct {
	chunks int
}

// NewFake creates a fake synthesizer emitting the given number of chunks
// per utterance.
func NewFake(chunks int) *FakeSynthesizer {
	if chunks <= 0 {
		chunks = 3
	}
	return &FakeSynthesizer{chunks: chunks}
}

// Synthesize returns a stream of zeroed chunks.
func (f *FakeSynthesizer) Synthesize(ctx context.Context, _ string) (Stream, error) {
	return &fakeStream{ctx: ctx, remaining: f.chunks}, nil
}

type fakeStream struct {
	ctx       context.Context
	remaining int
}

func (s *fakeStream) Recv() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.remaining == 0 {
		return nil, io.EOF
	}
	s.remaining--
	return make([]byte, chunkSize), nil
}

func (s *fakeStream) Close() error { return nil }
