// Package vision decides which screen-share frames are worth analyzing
// and turns the chosen ones into textual descriptions.
package vision

import (
	"context"
	"time"
)

// Analyzer produces a textual description of one captured frame.
type Analyzer interface {
	Analyze(ctx context.Context, frame []byte) (string, error)
}

// Analysis is the outcome of one successful frame analysis.
type Analysis struct {
	Description string
	CapturedAt  time.Time
}
