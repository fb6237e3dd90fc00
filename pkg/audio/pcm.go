package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// CanonicalRate is the sample rate every pipeline stage downstream of ingress
// operates on. Batch ASR payloads, VAD windows, and archived recordings are
// all 16 kHz mono PCM16.
const CanonicalRate = 16000

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the pipeline-wide target format: 16 kHz mono.
func Canonical() Format {
	return Format{SampleRate: CanonicalRate, Channels: 1}
}

// String returns a human-readable description, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Converter converts PCM16 buffers to a target format. It logs a warning on
// the first format mismatch and validates PCM alignment. Create one per
// stream; not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts pcm from src to the target format. If src already matches
// the target, pcm is returned unchanged (zero allocation). Conversion order:
// resample first, then channel convert.
func (c *Converter) Convert(pcm []byte, src Format) []byte {
	if len(pcm)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping buffer",
				"bytes", len(pcm),
				"format", src.String(),
			)
		})
		return nil
	}
	if src == c.Target {
		return pcm
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", src.String(),
			"to", c.Target.String(),
		)
	})

	rate := src.SampleRate
	channels := src.Channels

	// Resample before the channel conversion so a stereo source is not
	// resampled twice.
	if rate != c.Target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, rate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, rate, c.Target.SampleRate)
		}
		rate = c.Target.SampleRate
	}
	if channels != c.Target.Channels {
		if channels == 2 && c.Target.Channels == 1 {
			pcm = StereoToMono(pcm)
		} else if channels == 1 && c.Target.Channels == 2 {
			pcm = MonoToStereo(pcm)
		}
	}
	return pcm
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ResampleStereo16 resamples 16-bit stereo PCM from srcRate to dstRate using
// linear interpolation. Each stereo frame is 4 bytes (L+R interleaved).
// If srcRate == dstRate, the input is returned unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		l0 := int16(pcm[srcIdx*4]) | int16(pcm[srcIdx*4+1])<<8
		r0 := int16(pcm[srcIdx*4+2]) | int16(pcm[srcIdx*4+3])<<8

		l1, r1 := l0, r0
		if srcIdx+1 < srcFrames {
			l1 = int16(pcm[(srcIdx+1)*4]) | int16(pcm[(srcIdx+1)*4+1])<<8
			r1 = int16(pcm[(srcIdx+1)*4+2]) | int16(pcm[(srcIdx+1)*4+3])<<8
		}

		lv := int16(float64(l0)*(1-frac) + float64(l1)*frac)
		rv := int16(float64(r0)*(1-frac) + float64(r1)*frac)

		out[i*4] = byte(lv)
		out[i*4+1] = byte(lv >> 8)
		out[i*4+2] = byte(rv)
		out[i*4+3] = byte(rv >> 8)
	}
	return out
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// RMS computes the root mean square amplitude of little-endian PCM16 data.
// Returns 0 for empty or misaligned input. Full-scale speech sits in the
// thousands; anything below a few hundred is effectively silence.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns the playback length in seconds of pcm in the given format.
func Duration(pcm []byte, f Format) float64 {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(pcm) / 2 / f.Channels
	return float64(samples) / float64(f.SampleRate)
}
