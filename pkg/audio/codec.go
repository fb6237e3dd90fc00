// Package audio provides the PCM plumbing shared by the ingress pipeline,
// the VAD, the batch ASR payload builder, and the recording archiver:
// resampling and channel conversion, WAV containers, Opus packet decoding,
// and MP3 compression.
//
// Everything downstream of ingress operates on the canonical format,
// 16 kHz mono little-endian PCM16. Ingress codecs are decoded to canonical
// form either per frame (Opus, via [OpusStream]) or per payload
// ([ToCanonical]).
package audio

import "fmt"

// Codec identifies the wire format of ingress audio frames and of stored
// recording payloads.
type Codec string

const (
	// CodecPCM16 is raw canonical PCM: 16 kHz mono little-endian int16.
	CodecPCM16 Codec = "pcm16"

	// CodecWAV is a RIFF/WAVE stream whose header travels in the first frame.
	CodecWAV Codec = "wav"

	// CodecOpus is one raw Opus packet (48 kHz) per frame. Opus payloads are
	// packet-framed and cannot be decoded after concatenation; ingress
	// decodes them frame by frame with an OpusStream.
	CodecOpus Codec = "opus"

	// CodecMP3 is a concatenable MPEG Layer III stream. Used both for mp3
	// ingress and for archived recordings.
	CodecMP3 Codec = "mp3"
)

// IsValid reports whether c is a known codec.
func (c Codec) IsValid() bool {
	switch c {
	case CodecPCM16, CodecWAV, CodecOpus, CodecMP3:
		return true
	}
	return false
}

// Ext returns the file extension for payloads stored in this codec,
// without the dot.
func (c Codec) Ext() string {
	switch c {
	case CodecWAV:
		return "wav"
	case CodecMP3:
		return "mp3"
	case CodecOpus:
		return "opus"
	default:
		return "pcm"
	}
}

// DecodePayload decodes a concatenated frame payload to raw PCM16 and
// reports its format. Opus is rejected: packets lose their framing when
// concatenated, so Opus must be decoded per frame at ingress.
func DecodePayload(payload []byte, c Codec) ([]byte, Format, error) {
	switch c {
	case CodecPCM16:
		return payload, Canonical(), nil
	case CodecWAV:
		return DecodeWAV(payload)
	case CodecMP3:
		return DecodeMP3(payload)
	case CodecOpus:
		return nil, Format{}, fmt.Errorf("audio: opus payloads are packet-framed, decode per frame")
	default:
		return nil, Format{}, fmt.Errorf("audio: unknown codec %q", c)
	}
}

// ToCanonical decodes a concatenated frame payload and converts it to
// canonical 16 kHz mono PCM16.
func ToCanonical(payload []byte, c Codec) ([]byte, error) {
	pcm, f, err := DecodePayload(payload, c)
	if err != nil {
		return nil, err
	}
	if f == Canonical() {
		return pcm, nil
	}
	conv := Converter{Target: Canonical()}
	return conv.Convert(pcm, f), nil
}
