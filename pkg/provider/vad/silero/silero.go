// Package silero implements vad.Engine on top of the Silero VAD ONNX model.
//
// The model is a small recurrent network scoring 512-sample (32ms) windows
// of 16 kHz mono PCM. One ONNX session is shared by the whole process;
// inference calls are serialized internally. Per-stream recurrent state
// (the [2,1,128] state tensor plus a 64-sample context carried between
// windows) lives in the session handles, so concurrent streams do not bleed
// into each other.
package silero

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// SampleRate is the only rate the model graph accepts for 512-sample windows.
const SampleRate = 16000

const (
	windowSize  = 512 // samples per inference window (32ms at 16 kHz)
	contextSize = 64  // trailing samples of the previous window prepended to the next
	stateSize   = 2 * 1 * 128
	windowMs    = windowSize * 1000 / SampleRate

	defaultSpeechPadMs = 30
)

var (
	ortInitMu   sync.Mutex
	ortInitDone bool
)

// initRuntime initializes the process-wide ONNX runtime environment once.
// An explicit library path wins over ONNXRUNTIME_SHARED_LIBRARY_PATH.
func initRuntime(libraryPath string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ortInitDone {
		return nil
	}
	if libraryPath == "" {
		libraryPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}
	ortInitDone = true
	return nil
}

// Option configures the Engine.
type Option func(*Engine)

// WithLibraryPath sets the onnxruntime shared library location. Defaults to
// the ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable, then the
// platform loader's search path.
func WithLibraryPath(path string) Option {
	return func(e *Engine) {
		e.libraryPath = path
	}
}

// WithSpeechPadMs overrides the padding added around extracted speech spans.
func WithSpeechPadMs(ms int) Option {
	return func(e *Engine) {
		if ms >= 0 {
			e.padMs = ms
		}
	}
}

// Engine runs Silero VAD inference through a single shared ONNX session.
type Engine struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	closed  bool

	padMs       int
	libraryPath string
}

// New loads the Silero VAD model from modelPath and prepares the shared
// inference session.
func New(modelPath string, opts ...Option) (*Engine, error) {
	e := &Engine{padMs: defaultSpeechPadMs}
	for _, opt := range opts {
		opt(e)
	}

	if modelPath == "" {
		return nil, fmt.Errorf("silero: model path must not be empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero: model file: %w", err)
	}
	if err := initRuntime(e.libraryPath); err != nil {
		return nil, fmt.Errorf("silero: initialize onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("silero: create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("silero: create session: %w", err)
	}
	e.session = session
	return e, nil
}

// NewSession returns a detection session with fresh recurrent state. Each
// session is single-goroutine; the underlying model calls are serialized by
// the engine.
func (e *Engine) NewSession() (vad.SessionHandle, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("silero: engine closed")
	}
	return newSession(e), nil
}

// ExtractSpeech scores pcm window by window with fresh state, groups windows
// above threshold into spans with min-speech/min-silence hysteresis, pads
// each span, and returns the original samples over the padded spans.
func (e *Engine) ExtractSpeech(pcm []byte, threshold float64, minSpeechMs, minSilenceMs int) ([]byte, float64, error) {
	samples := pcmToFloat32(pcm)
	if len(samples) == 0 {
		return nil, 0, nil
	}

	sess := newSession(e)
	probs := make([]float64, 0, (len(samples)+windowSize-1)/windowSize)
	padded := make([]float32, windowSize)
	for off := 0; off < len(samples); off += windowSize {
		window := samples[off:]
		if len(window) >= windowSize {
			window = window[:windowSize]
		} else {
			// Final partial window is zero-padded to model size.
			for i := range padded {
				padded[i] = 0
			}
			copy(padded, window)
			window = padded
		}
		prob, err := sess.processWindow(window)
		if err != nil {
			return nil, 0, err
		}
		probs = append(probs, float64(prob))
	}

	spans := speechSpans(probs, threshold, minSpeechMs, minSilenceMs)
	if len(spans) == 0 {
		return nil, 0, nil
	}

	pad := e.padMs * SampleRate / 1000
	out, speechSamples := assembleSpans(pcm, len(samples), spans, pad)
	if speechSamples == 0 {
		return nil, 0, nil
	}
	return out, float64(speechSamples) / SampleRate, nil
}

// Close destroys the shared model session.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	if err != nil {
		return fmt.Errorf("silero: destroy session: %w", err)
	}
	return nil
}

// infer runs one context+window input through the model. state is read and
// overwritten with the model's next state.
func (e *Engine) infer(input []float32, state []float32) (float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, fmt.Errorf("silero: engine closed")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("silero: create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), state)
	if err != nil {
		return 0, fmt.Errorf("silero: create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{SampleRate})
	if err != nil {
		return 0, fmt.Errorf("silero: create sample rate tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := e.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, fmt.Errorf("silero: run inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("silero: unexpected output tensor type %T", outputs[0])
	}
	nextTensor, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("silero: unexpected state tensor type %T", outputs[1])
	}
	copy(state, nextTensor.GetData())

	data := outTensor.GetData()
	if len(data) == 0 {
		return 0, nil
	}
	return data[0], nil
}

// ---- session ----

// session carries the recurrent state for one audio stream.
type session struct {
	engine  *Engine
	state   []float32
	context []float32
	scratch []float32 // context + window inference input
}

func newSession(e *Engine) *session {
	return &session{
		engine:  e,
		state:   make([]float32, stateSize),
		context: make([]float32, contextSize),
		scratch: make([]float32, contextSize+windowSize),
	}
}

// SpeechProbability scores every full 512-sample window in pcm and returns
// the highest probability seen. Trailing samples short of a full window are
// ignored so the carried context stays aligned to real audio.
func (s *session) SpeechProbability(pcm []byte) (float64, error) {
	samples := pcmToFloat32(pcm)
	var maxProb float64
	for off := 0; off+windowSize <= len(samples); off += windowSize {
		prob, err := s.processWindow(samples[off : off+windowSize])
		if err != nil {
			return 0, err
		}
		if float64(prob) > maxProb {
			maxProb = float64(prob)
		}
	}
	return maxProb, nil
}

// Reset zeroes the recurrent state and context buffer.
func (s *session) Reset() {
	for i := range s.state {
		s.state[i] = 0
	}
	for i := range s.context {
		s.context[i] = 0
	}
}

// Close is a no-op; the model session belongs to the engine.
func (s *session) Close() error {
	return nil
}

// processWindow prepends the carried context, runs inference, and slides the
// context forward to the window's last samples.
func (s *session) processWindow(window []float32) (float32, error) {
	copy(s.scratch[:contextSize], s.context)
	copy(s.scratch[contextSize:], window)
	prob, err := s.engine.infer(s.scratch, s.state)
	if err != nil {
		return 0, err
	}
	copy(s.context, window[windowSize-contextSize:])
	return prob, nil
}

// ---- span detection ----

// span is a half-open range of window indices.
type span struct {
	start, end int
}

// speechSpans groups windows with probability >= threshold into spans. A
// span closes only after minSilenceMs of consecutive silent windows and is
// kept only if it covers at least minSpeechMs of speech.
func speechSpans(probs []float64, threshold float64, minSpeechMs, minSilenceMs int) []span {
	minSilence := minSilenceMs / windowMs
	var spans []span
	start, last := -1, -1
	silence := 0
	for w, p := range probs {
		if p >= threshold {
			if start < 0 {
				start = w
			}
			last = w
			silence = 0
			continue
		}
		if start < 0 {
			continue
		}
		silence++
		if silence >= minSilence {
			spans = appendLongEnough(spans, span{start, last + 1}, minSpeechMs)
			start, last, silence = -1, -1, 0
		}
	}
	if start >= 0 {
		spans = appendLongEnough(spans, span{start, last + 1}, minSpeechMs)
	}
	return spans
}

func appendLongEnough(spans []span, s span, minSpeechMs int) []span {
	if (s.end-s.start)*windowMs < minSpeechMs {
		return spans
	}
	return append(spans, s)
}

// assembleSpans copies the original PCM bytes covering each span, extended
// by pad samples on both sides. Padded spans that touch are merged so no
// sample is emitted twice. Returns the concatenated bytes and the total
// sample count.
func assembleSpans(pcm []byte, totalSamples int, spans []span, pad int) ([]byte, int) {
	out := make([]byte, 0, len(spans)*(windowSize+2*pad)*2)
	speechSamples := 0
	prevEnd := 0
	for _, sp := range spans {
		start := sp.start*windowSize - pad
		if start < prevEnd {
			start = prevEnd
		}
		end := sp.end*windowSize + pad
		if end > totalSamples {
			end = totalSamples
		}
		if end <= start {
			continue
		}
		out = append(out, pcm[start*2:end*2]...)
		speechSamples += end - start
		prevEnd = end
	}
	return out, speechSamples
}

// pcmToFloat32 converts little-endian PCM16 to [-1, 1) float samples. A
// trailing odd byte is dropped.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return samples
}

// Ensure interfaces are satisfied at compile time.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)
