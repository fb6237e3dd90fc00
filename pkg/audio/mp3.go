package audio

import (
	"bytes"
	"fmt"
	"io"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
	gomp3 "github.com/hajimehoshi/go-mp3"
)

// mp3BlockSamples is the number of samples per channel shine encodes per
// MP3 Layer III block.
const mp3BlockSamples = 1152

// EncodeMP3 compresses PCM16 audio to MP3 at the given bitrate (kbit/s).
// 48 kbit/s mono is the voice profile used for archived recordings. The
// final partial block is zero-padded, which adds up to 72 ms of trailing
// silence at 16 kHz.
func EncodeMP3(pcm []byte, f Format, bitrateKbps int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: empty pcm payload")
	}
	if f.Channels != 1 && f.Channels != 2 {
		return nil, fmt.Errorf("audio: mp3 encode supports 1 or 2 channels, got %d", f.Channels)
	}

	enc := shine.NewEncoder(f.SampleRate, f.Channels)
	if bitrateKbps > 0 {
		enc.Mpeg.Bitrate = int64(bitrateKbps)
	}

	samples := BytesToInt16s(pcm)
	block := mp3BlockSamples * f.Channels
	if rem := len(samples) % block; rem != 0 {
		samples = append(samples, make([]int16, block-rem)...)
	}

	var out bytes.Buffer
	if err := enc.Write(&out, samples); err != nil {
		return nil, fmt.Errorf("audio: mp3 encode: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("audio: mp3 encode produced no data")
	}
	return out.Bytes(), nil
}

// DecodeMP3 decompresses an MP3 payload to PCM16. The decoder always emits
// interleaved stereo at the stream's sample rate.
func DecodeMP3(b []byte) ([]byte, Format, error) {
	dec, err := gomp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: mp3 read: %w", err)
	}
	return pcm, Format{SampleRate: dec.SampleRate(), Channels: 2}, nil
}
