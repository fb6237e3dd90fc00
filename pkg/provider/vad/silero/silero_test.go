package silero

import (
	"math"
	"os"
	"testing"
)

func TestNew_MissingModelPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty model path")
	}
}

func TestNew_ModelFileNotFound(t *testing.T) {
	if _, err := New("/nonexistent/silero_vad.onnx"); err == nil {
		t.Error("expected error for missing model file")
	}
}

func TestSpeechSpans_Basic(t *testing.T) {
	// Three speech windows surrounded by silence.
	probs := []float64{0.1, 0.8, 0.9, 0.7, 0.1, 0.1, 0.1}
	spans := speechSpans(probs, 0.5, 0, 0)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d (%v)", len(spans), spans)
	}
	if spans[0].start != 1 || spans[0].end != 4 {
		t.Errorf("span: want [1,4), got [%d,%d)", spans[0].start, spans[0].end)
	}
}

func TestSpeechSpans_ShortSilenceDoesNotSplit(t *testing.T) {
	// One silent window (32ms) inside speech; 100ms min silence keeps the
	// span whole, 0ms min silence splits it.
	probs := []float64{0.8, 0.8, 0.1, 0.8, 0.8}

	joined := speechSpans(probs, 0.5, 0, 100)
	if len(joined) != 1 {
		t.Fatalf("expected 1 joined span, got %d (%v)", len(joined), joined)
	}
	if joined[0].start != 0 || joined[0].end != 5 {
		t.Errorf("joined span: want [0,5), got [%d,%d)", joined[0].start, joined[0].end)
	}

	split := speechSpans(probs, 0.5, 0, 0)
	if len(split) != 2 {
		t.Fatalf("expected 2 split spans, got %d (%v)", len(split), split)
	}
}

func TestSpeechSpans_MinSpeechFiltersShortSpans(t *testing.T) {
	// A single 32ms window is below a 100ms minimum.
	probs := []float64{0.1, 0.9, 0.1, 0.1, 0.9, 0.9, 0.9, 0.9, 0.1}
	spans := speechSpans(probs, 0.5, 100, 0)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d (%v)", len(spans), spans)
	}
	if spans[0].start != 4 || spans[0].end != 8 {
		t.Errorf("span: want [4,8), got [%d,%d)", spans[0].start, spans[0].end)
	}
}

func TestSpeechSpans_TrailingSpeechClosed(t *testing.T) {
	probs := []float64{0.1, 0.1, 0.9, 0.9}
	spans := speechSpans(probs, 0.5, 0, 100)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d (%v)", len(spans), spans)
	}
	if spans[0].start != 2 || spans[0].end != 4 {
		t.Errorf("span: want [2,4), got [%d,%d)", spans[0].start, spans[0].end)
	}
}

func TestSpeechSpans_NoSpeech(t *testing.T) {
	probs := []float64{0.1, 0.2, 0.05}
	if spans := speechSpans(probs, 0.5, 0, 0); len(spans) != 0 {
		t.Errorf("expected no spans, got %v", spans)
	}
}

func TestAssembleSpans_CopiesOriginalSamples(t *testing.T) {
	// Two windows of recognizable bytes.
	totalSamples := 2 * windowSize
	pcm := make([]byte, totalSamples*2)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	out, n := assembleSpans(pcm, totalSamples, []span{{1, 2}}, 0)
	if n != windowSize {
		t.Fatalf("samples: want %d, got %d", windowSize, n)
	}
	wantStart := windowSize * 2
	for i, b := range out {
		if b != pcm[wantStart+i] {
			t.Fatalf("byte %d: want %d, got %d", i, pcm[wantStart+i], b)
		}
	}
}

func TestAssembleSpans_PadClampedToBuffer(t *testing.T) {
	totalSamples := windowSize
	pcm := make([]byte, totalSamples*2)

	out, n := assembleSpans(pcm, totalSamples, []span{{0, 1}}, 480)
	if n != totalSamples {
		t.Errorf("samples: want %d, got %d", totalSamples, n)
	}
	if len(out) != totalSamples*2 {
		t.Errorf("bytes: want %d, got %d", totalSamples*2, len(out))
	}
}

func TestAssembleSpans_PaddedSpansDoNotOverlap(t *testing.T) {
	// Spans one window apart with padding large enough to bridge the gap:
	// every sample must be emitted exactly once.
	totalSamples := 4 * windowSize
	pcm := make([]byte, totalSamples*2)

	out, n := assembleSpans(pcm, totalSamples, []span{{0, 1}, {2, 3}}, windowSize)
	if n != totalSamples {
		t.Errorf("samples: want %d, got %d", totalSamples, n)
	}
	if len(out) != totalSamples*2 {
		t.Errorf("bytes: want %d, got %d", totalSamples*2, len(out))
	}
}

func TestPCMToFloat32(t *testing.T) {
	pcm := []byte{
		0x00, 0x00, // 0
		0xFF, 0x7F, // 32767
		0x00, 0x80, // -32768
		0x01, // trailing odd byte dropped
	}
	samples := pcmToFloat32(pcm)
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("sample 0: want 0, got %v", samples[0])
	}
	if math.Abs(float64(samples[1])-32767.0/32768.0) > 1e-6 {
		t.Errorf("sample 1: want ~1, got %v", samples[1])
	}
	if samples[2] != -1 {
		t.Errorf("sample 2: want -1, got %v", samples[2])
	}
}

// TestEngine_LiveInference exercises the real model when one is available.
func TestEngine_LiveInference(t *testing.T) {
	modelPath := os.Getenv("HEARSAY_TEST_SILERO_MODEL")
	if modelPath == "" {
		t.Skip("HEARSAY_TEST_SILERO_MODEL not set, skipping live inference test")
	}

	engine, err := New(modelPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	sess, err := engine.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	silence := make([]byte, windowSize*2)
	prob, err := sess.SpeechProbability(silence)
	if err != nil {
		t.Fatalf("SpeechProbability: %v", err)
	}
	if prob > 0.3 {
		t.Errorf("silence probability too high: %v", prob)
	}

	sess.Reset()

	speech, seconds, err := engine.ExtractSpeech(silence, 0.5, 250, 100)
	if err != nil {
		t.Fatalf("ExtractSpeech: %v", err)
	}
	if len(speech) != 0 || seconds != 0 {
		t.Errorf("expected no speech in silence, got %d bytes / %vs", len(speech), seconds)
	}
}
