// Package types defines the shared types used across all Hearsay packages.
//
// These types form the lingua franca between the ingress processors, the
// sentence and segment stages, the translation pipeline, and the stores. They
// are intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

// TranscriptEvent is a single speech-to-text result flowing through the
// pipeline. Both interim and final results use this type; a final event is
// immutable once emitted.
type TranscriptEvent struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim
	// (best-effort preview) result. Interim results may be revised by a
	// subsequent final; finals are never retracted.
	IsFinal bool

	// Speaker is the display label for the diarized speaker ("Speaker 0",
	// "Speaker 1", ...). Empty when diarization is off or the upstream did
	// not tag the words.
	Speaker string

	// Start and End bound the utterance in seconds relative to session start.
	Start float64
	End   float64

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// TranscriptID is an opaque stable identifier, assigned when IsFinal is
	// true. Interim events carry an empty TranscriptID.
	TranscriptID string

	// SegmentID is the UI card this event was attributed to. Assigned by the
	// session, not the provider.
	SegmentID string
}

// WordDetail holds per-word metadata from STT providers that support it.
// Times are in seconds relative to session start.
type WordDetail struct {
	Word       string
	Start      float64
	End        float64
	Confidence float64

	// Speaker is the diarized speaker number for this word, or nil when the
	// provider did not diarize.
	Speaker *int
}

// Sentence is a complete sentence cut from the stream of final transcript
// fragments, ready for translation.
type Sentence struct {
	// Text is the sentence including its terminal punctuation (when present).
	Text string

	// SegmentID is the card the sentence was born under. It stays fixed even
	// if the segment stream has moved on by the time later fragments of the
	// sentence arrive.
	SegmentID string

	// Index is the sentence's position within its segment, starting at 0 and
	// strictly increasing. Translation delivery is ordered by Index.
	Index int
}

// TranslationResult is the outcome of translating one Sentence. Results with
// Err set still flow through ordered delivery so the client sees a placeholder
// in the right position.
type TranslationResult struct {
	// Text is the translated text, or an error placeholder such as
	// "[translation timeout]" when Err is true.
	Text string

	// SegmentID and Index identify the Sentence this result belongs to.
	SegmentID string
	Index     int

	// IsFinal mirrors the wire contract; always true for dispatcher output.
	IsFinal bool

	// Err marks a failed translation. Failed results are delivered in order
	// like successful ones and never update the translation context.
	Err bool
}

// SegmentEventKind enumerates the lifecycle events a segment emits.
type SegmentEventKind int

const (
	// SegmentCreated fires once when a fresh segment opens.
	SegmentCreated SegmentEventKind = iota

	// SegmentUpdated fires every time text is appended to the open segment.
	SegmentUpdated

	// SegmentClosed fires exactly once when the segment is cut.
	SegmentClosed
)

// String returns the event kind as it appears in logs.
func (k SegmentEventKind) String() string {
	switch k {
	case SegmentCreated:
		return "created"
	case SegmentUpdated:
		return "updated"
	case SegmentClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SegmentEvent describes one lifecycle transition of a transcript segment
// (a UI "card").
type SegmentEvent struct {
	// Kind is the lifecycle transition.
	Kind SegmentEventKind

	// SegmentID identifies the segment. For SegmentCreated this is the id of
	// the newly opened segment.
	SegmentID string

	// Text is the accumulated segment text at the time of the event. Empty
	// for SegmentCreated.
	Text string

	// Start and End bound the segment in seconds relative to session start.
	Start float64
	End   float64

	// WordCount is the whitespace word count of Text. Only meaningful on
	// SegmentUpdated and SegmentClosed.
	WordCount int
}
