package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Opus ingress arrives as one packet per frame at 48 kHz.
const (
	opusSampleRate = 48000
	// maxOpusFrameSize is the largest packet gopus may produce: 120 ms at
	// 48 kHz per channel.
	maxOpusFrameSize = 5760
)

// OpusStream decodes a sequence of raw Opus packets into canonical PCM.
// Each audio stream needs its own OpusStream because the decoder carries
// state across consecutive packets. Not safe for concurrent use.
type OpusStream struct {
	dec      *gopus.Decoder
	channels int
	conv     Converter
}

// NewOpusStream creates a decoder for mono or stereo Opus packets. Output is
// always canonical 16 kHz mono PCM16.
func NewOpusStream(channels int) (*OpusStream, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: opus stream supports 1 or 2 channels, got %d", channels)
	}
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusStream{
		dec:      dec,
		channels: channels,
		conv:     Converter{Target: Canonical()},
	}, nil
}

// Decode decodes a single Opus packet and returns it as canonical PCM.
// Returns an empty slice for packets that decode to no samples.
func (s *OpusStream) Decode(packet []byte) ([]byte, error) {
	pcm, err := s.dec.Decode(packet, maxOpusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	raw := Int16sToBytes(pcm)
	return s.conv.Convert(raw, Format{SampleRate: opusSampleRate, Channels: s.channels}), nil
}
