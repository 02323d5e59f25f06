package transcribe

import (
	"context"
	"sync"
)

// FakeTranscriber simulates speech recognition for development runs
// without a Deepgram key. It emits one canned utterance per chunkBytes
// of received audio, cycling through the configured phrases.
type FakeTranscriber struct {
	phrases    []string
	chunkBytes int
}

// NewFake creates a fake transcriber. With no phrases it stays silent.
func NewFake(phrases []string, chunkBytes int) *FakeTranscriber {
	if chunkBytes <= 0 {
		chunkBytes = 64 * 1024
	}
	return &FakeTranscriber{phrases: phrases, chunkBytes: chunkBytes}
}

// Start opens a fake stream.
func (f *FakeTranscriber) Start(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	return &fakeStream{
		phrases:    f.phrases,
		chunkBytes: f.chunkBytes,
		results:    make(chan Result, resultsBufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

type fakeStream struct {
	phrases    []string
	chunkBytes int
	results    chan Result
	ctx        context.Context
	cancel     context.CancelFunc

	mu        sync.Mutex
	pending   int
	next      int
	closeOnce sync.Once
}

func (s *fakeStream) Send(pcm []byte) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if len(s.phrases) == 0 {
		return nil
	}

	s.mu.Lock()
	s.pending += len(pcm)
	var emit []Result
	for s.pending >= s.chunkBytes {
		s.pending -= s.chunkBytes
		phrase := s.phrases[s.next%len(s.phrases)]
		s.next++
		emit = append(emit,
			Result{Text: phrase, IsFinal: false},
			Result{Text: phrase, IsFinal: true},
		)
	}
	s.mu.Unlock()

	for _, r := range emit {
		select {
		case s.results <- r:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
	return nil
}

func (s *fakeStream) Results() <-chan Result { return s.results }

func (s *fakeStream) Err() error { return nil }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.results)
	})
	return nil
}
