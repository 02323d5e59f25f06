package vision

import (
	"context"
	"image"
	"log/slog"
	"time"
)

const analyzeTimeout = 20 * time.Second

// GateConfig tunes the change-detection debounce.
type GateConfig struct {
	// ChangeThreshold is the minimum normalized change score (0-1) that
	// makes a frame worth analyzing.
	ChangeThreshold float64
	// MinInterval is the minimum gap between two triggered analyses.
	MinInterval time.Duration
}

// Gate filters the incoming frame stream down to the few frames that get
// analyzed. It keys every decision off the last frame that was actually
// analyzed, holds at most one analysis in flight, and lets newer frames
// silently replace older pending ones: freshness over completeness.
type Gate struct {
	analyzer Analyzer
	cfg      GateConfig
	emit     func(Analysis)
	logger   *slog.Logger

	frames chan frameCandidate

	// Owned by the Run goroutine.
	lastAnalyzed  *image.Gray
	lastTriggered time.Time
}

type frameCandidate struct {
	data []byte
	at   time.Time
}

// NewGate creates a frame gate. The emit callback runs on the gate's
// goroutine after each successful analysis.
func NewGate(analyzer Analyzer, cfg GateConfig, emit func(Analysis), logger *slog.Logger) *Gate {
	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = 0.10
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		analyzer: analyzer,
		cfg:      cfg,
		emit:     emit,
		logger:   logger,
		frames:   make(chan frameCandidate, 1),
	}
}

// Submit offers a frame to the gate. Never blocks: if a frame is already
// pending it is replaced by this newer one.
func (g *Gate) Submit(data []byte, at time.Time) {
	cand := frameCandidate{data: data, at: at}

	select {
	case g.frames <- cand:
		return
	default:
	}

	// Drop the superseded frame, then offer again.
	select {
	case <-g.frames:
	default:
	}
	select {
	case g.frames <- cand:
	default:
	}
}

// Run consumes frames until the context ends. Call it on its own goroutine.
func (g *Gate) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand := <-g.frames:
			g.process(ctx, cand)
		}
	}
}

func (g *Gate) process(ctx context.Context, cand frameCandidate) {
	thumb, err := decodeFrame(cand.data)
	if err != nil {
		g.logger.Warn("[GATE] frame decode failed", "error", err, "bytes", len(cand.data))
		return
	}

	score := 1.0
	if g.lastAnalyzed != nil {
		score = changeScore(g.lastAnalyzed, thumb)
	}
	if score <= g.cfg.ChangeThreshold {
		return
	}
	if !g.lastTriggered.IsZero() && time.Since(g.lastTriggered) < g.cfg.MinInterval {
		return
	}

	g.lastTriggered = time.Now()

	actx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	description, err := g.analyzer.Analyze(actx, cand.data)
	cancel()
	if err != nil {
		// Swallowed on purpose: the next changed frame supersedes this one.
		g.logger.Warn("[GATE] analysis failed", "error", err, "change_score", score)
		return
	}

	g.lastAnalyzed = thumb
	g.emit(Analysis{Description: description, CapturedAt: cand.at})
}
