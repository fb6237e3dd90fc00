package ingress

import (
	"fmt"

	"github.com/hearsay-live/hearsay/pkg/audio"
)

// StreamDecoder converts ingress frames to canonical 16 kHz mono PCM16 one
// frame at a time, carrying codec state across frames: a WAV stream declares
// its sample format in the first frame, Opus packets share decoder state,
// MP3 frames are self-describing. Use one decoder per stream, from a single
// goroutine.
type StreamDecoder struct {
	codec audio.Codec
	conv  audio.Converter
	opus  *audio.OpusStream
	src   audio.Format
}

// NewStreamDecoder returns a decoder for the given wire codec. An empty
// codec selects pcm16.
func NewStreamDecoder(codec audio.Codec) (*StreamDecoder, error) {
	if codec == "" {
		codec = audio.CodecPCM16
	}
	if !codec.IsValid() {
		return nil, fmt.Errorf("ingress: unknown codec %q", codec)
	}
	d := &StreamDecoder{
		codec: codec,
		conv:  audio.Converter{Target: audio.Canonical()},
		src:   audio.Canonical(),
	}
	if codec == audio.CodecOpus {
		os, err := audio.NewOpusStream(1)
		if err != nil {
			return nil, fmt.Errorf("ingress: opus decoder: %w", err)
		}
		d.opus = os
	}
	return d, nil
}

// Decode converts one frame to canonical PCM. The result may alias the input
// when no conversion was needed. A nil result with nil error means the frame
// carried no audio (for example a bare WAV header).
func (d *StreamDecoder) Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, nil
	}
	switch d.codec {
	case audio.CodecPCM16:
		return frame, nil
	case audio.CodecWAV:
		if audio.IsWAV(frame) {
			pcm, f, err := audio.DecodeWAV(frame)
			if err != nil {
				return nil, fmt.Errorf("ingress: wav header frame: %w", err)
			}
			d.src = f
			return d.conv.Convert(pcm, f), nil
		}
		return d.conv.Convert(frame, d.src), nil
	case audio.CodecOpus:
		return d.opus.Decode(frame)
	case audio.CodecMP3:
		pcm, f, err := audio.DecodeMP3(frame)
		if err != nil {
			return nil, fmt.Errorf("ingress: mp3 frame: %w", err)
		}
		return d.conv.Convert(pcm, f), nil
	default:
		return nil, fmt.Errorf("ingress: unknown codec %q", d.codec)
	}
}
