package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// bitsPerSample is the sample width for all PCM handled by this package.
const bitsPerSample = 16

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct
// inclusion in a multipart form upload or an ASR request body.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// IsWAV reports whether b starts with a RIFF/WAVE header.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

// DecodeWAV parses a RIFF/WAV container and returns the raw PCM16 payload and
// its format. Only uncompressed 16-bit PCM is supported.
//
// Live recordings append audio past the header without rewriting the declared
// data size, so the parser trusts the actual byte count over the size field
// when the data chunk is the last chunk in the file.
func DecodeWAV(b []byte) ([]byte, Format, error) {
	if !IsWAV(b) {
		return nil, Format{}, fmt.Errorf("audio: not a RIFF/WAVE payload")
	}

	var f Format
	var sampleBits int
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(b) {
				return nil, Format{}, fmt.Errorf("audio: truncated fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(b[body : body+2])
			if audioFormat != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav encoding %d (want PCM)", audioFormat)
			}
			f.Channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			sampleBits = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
		case "data":
			if f.SampleRate == 0 {
				return nil, Format{}, fmt.Errorf("audio: wav data chunk before fmt chunk")
			}
			if sampleBits != bitsPerSample {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav sample width %d bits", sampleBits)
			}
			// Everything from here to the end of the payload is audio; the
			// declared size is stale for live-appended streams.
			return b[body:], f, nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}
	return nil, Format{}, fmt.Errorf("audio: wav payload has no data chunk")
}
