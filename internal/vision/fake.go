package vision

import (
	"context"
	"fmt"
	"sync/atomic"
)

// FakeAnalyzer returns canned descriptions for development runs without
// a vision API key.
type FakeAnalyzer struct {
	calls atomic.Int64
}

// NewFakeAnalyzer creates a fake analyzer.
func NewFakeAnalyzer() *FakeAnalyzer {
	return &FakeAnalyzer{}
}

// Analyze returns a numbered placeholder description.
func (f *FakeAnalyzer) Analyze(_ context.Context, frame []byte) (string, error) {
	n := f.calls.Add(1)
	return fmt.Sprintf("Simulated screen description #%d (%d byte frame).", n, len(frame)), nil
}
