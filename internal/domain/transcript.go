// Package domain contains core domain types for the interview service.
package domain

import (
	"strings"
	"time"
)

// SegmentKind distinguishes provisional transcript text from settled text.
type SegmentKind string

const (
	// SegmentInterim is provisional text the transcriber may still revise.
	SegmentInterim SegmentKind = "interim"
	// SegmentFinal is settled text that will not change again.
	SegmentFinal SegmentKind = "final"
)

// TranscriptSegment is one piece of recognized speech.
type TranscriptSegment struct {
	Kind      SegmentKind `json:"kind"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// Transcript is the ordered sequence of finalized segments for a session.
type Transcript []TranscriptSegment

// Append adds a finalized segment. Interim segments are never stored.
func (t Transcript) Append(seg TranscriptSegment) Transcript {
	if seg.Kind != SegmentFinal {
		return t
	}
	return append(t, seg)
}

// Join renders the transcript as a single utterance-per-line string,
// the shape the question generator consumes.
func (t Transcript) Join() string {
	parts := make([]string, 0, len(t))
	for _, seg := range t {
		if s := strings.TrimSpace(seg.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
