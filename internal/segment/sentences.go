// Package segment turns the stream of finalized transcript fragments into
// complete sentences for translation and into UI cards ("segments").
//
// The two stages are independent consumers of the same fragment stream: the
// [SentenceBuilder] accumulates fragments until sentence terminators appear,
// the [Supervisor] decides when the current card is full and a new one opens.
// Neither is safe for concurrent use; the session's transcript callback is
// the single writer for both.
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/hearsay-live/hearsay/pkg/types"
)

// sentenceTerminators is the class of runes that end a sentence. It covers
// both Latin and CJK full-width punctuation.
const sentenceTerminators = ".!?。！？"

// EndsWithTerminator reports whether s, after trimming, ends in a sentence
// terminator.
func EndsWithTerminator(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return strings.ContainsRune(sentenceTerminators, r)
}

// firstTerminator returns the byte index and encoded size of the first
// sentence terminator rune in s, or (-1, 0) when s contains none.
func firstTerminator(s string) (int, int) {
	for i, r := range s {
		if strings.ContainsRune(sentenceTerminators, r) {
			return i, utf8.RuneLen(r)
		}
	}
	return -1, 0
}

// SentenceBuilder buffers finalized transcript fragments into complete
// sentences.
//
// The first fragment of a not-yet-started sentence locks that fragment's
// segment id onto the sentence: fragments extending the sentence later keep
// the locked id even if the Supervisor has opened a new segment in the
// meantime. The sentence belongs to the card where it began.
type SentenceBuilder struct {
	buffer    string
	lockedID  string
	nextIndex int
}

// NewSentenceBuilder returns an empty builder. The first AddFinal locks the
// segment id of its fragment.
func NewSentenceBuilder() *SentenceBuilder {
	return &SentenceBuilder{}
}

// AddFinal accumulates one finalized fragment (space-joined onto the pending
// buffer) and returns all complete sentences that splitting on the terminator
// class yields, terminators preserved. Sentence indices increase
// monotonically within the current segment. A non-terminated tail stays
// buffered for the next fragment.
func (b *SentenceBuilder) AddFinal(text, segmentID string) []types.Sentence {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if b.buffer == "" {
		b.buffer = text
		b.lockedID = segmentID
	} else {
		b.buffer += " " + text
	}

	var sentences []types.Sentence
	for {
		idx, size := firstTerminator(b.buffer)
		if idx < 0 {
			break
		}
		sentence := strings.TrimSpace(b.buffer[:idx+size])
		b.buffer = strings.TrimLeft(b.buffer[idx+size:], " \t\n\r")
		if sentence == "" {
			continue
		}
		sentences = append(sentences, types.Sentence{
			Text:      sentence,
			SegmentID: b.lockedID,
			Index:     b.nextIndex,
		})
		b.nextIndex++
	}
	return sentences
}

// ResetForNewSegment force-flushes the pending tail as a sentence under the
// old locked segment id, then zeroes the sentence index and adopts
// newSegmentID. Called when the Supervisor closes a segment.
func (b *SentenceBuilder) ResetForNewSegment(newSegmentID string) []types.Sentence {
	var sentences []types.Sentence
	if tail := strings.TrimSpace(b.buffer); tail != "" {
		sentences = append(sentences, types.Sentence{
			Text:      tail,
			SegmentID: b.lockedID,
			Index:     b.nextIndex,
		})
	}
	b.buffer = ""
	b.nextIndex = 0
	b.lockedID = newSegmentID
	return sentences
}

// Flush returns the pending tail as a final sentence in the current segment.
// Called on session stop.
func (b *SentenceBuilder) Flush() []types.Sentence {
	tail := strings.TrimSpace(b.buffer)
	if tail == "" {
		return nil
	}
	sentence := types.Sentence{
		Text:      tail,
		SegmentID: b.lockedID,
		Index:     b.nextIndex,
	}
	b.buffer = ""
	b.nextIndex++
	return []types.Sentence{sentence}
}
