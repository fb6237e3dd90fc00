package segment

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hearsay-live/hearsay/pkg/types"
)

// Supervisor partitions the stream of final transcript fragments into cards.
//
// A card closes when it holds at least soft words and ends in a sentence
// terminator, or unconditionally at hard words. Word counting is
// whitespace-split after trimming, which undercounts for scripts without
// whitespace; the default thresholds assume whitespace counting.
type Supervisor struct {
	soft int
	hard int

	buffer    string
	start     float64
	end       float64
	segmentID string
}

// NewSupervisor creates a Supervisor with the given word thresholds and a
// fresh initial segment id.
func NewSupervisor(soft, hard int) *Supervisor {
	return &Supervisor{
		soft:      soft,
		hard:      hard,
		segmentID: uuid.NewString(),
	}
}

// CurrentSegmentID returns the id of the open segment. The session reads it
// before ingesting an event so the event is attributed to the card that was
// open when it arrived.
func (s *Supervisor) CurrentSegmentID() string {
	return s.segmentID
}

// AddTranscript appends one final fragment to the open segment and returns
// the resulting lifecycle events: always an updated event, plus closed and
// created events when the fragment triggered a split.
func (s *Supervisor) AddTranscript(text string, start, end float64) []types.SegmentEvent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if s.buffer == "" {
		s.buffer = text
		s.start = start
	} else {
		s.buffer += " " + text
	}
	s.end = end

	words := wordCount(s.buffer)
	events := []types.SegmentEvent{{
		Kind:      types.SegmentUpdated,
		SegmentID: s.segmentID,
		Text:      s.buffer,
		Start:     s.start,
		End:       s.end,
		WordCount: words,
	}}

	split := (words >= s.soft && EndsWithTerminator(s.buffer)) || words >= s.hard
	if !split {
		return events
	}

	events = append(events, types.SegmentEvent{
		Kind:      types.SegmentClosed,
		SegmentID: s.segmentID,
		Text:      s.buffer,
		Start:     s.start,
		End:       s.end,
		WordCount: words,
	})

	s.segmentID = uuid.NewString()
	s.buffer = ""
	s.start = 0
	s.end = 0

	return append(events, types.SegmentEvent{
		Kind:      types.SegmentCreated,
		SegmentID: s.segmentID,
	})
}

// ForceClose emits a closed event for a non-empty buffer on session stop.
// A second call returns nil.
func (s *Supervisor) ForceClose() []types.SegmentEvent {
	if s.buffer == "" {
		return nil
	}

	event := types.SegmentEvent{
		Kind:      types.SegmentClosed,
		SegmentID: s.segmentID,
		Text:      s.buffer,
		Start:     s.start,
		End:       s.end,
		WordCount: wordCount(s.buffer),
	}
	s.buffer = ""
	s.start = 0
	s.end = 0
	return []types.SegmentEvent{event}
}

// wordCount is the whitespace word count of s.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
