package whisper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures the fields of one multipart POST to /inference.
type inferenceRequest struct {
	fileBytes []byte
	language  string
	model     string
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing the provided responseText. Each matched request is
// parsed and recorded through record (may be nil).
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, record func(inferenceRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if record != nil {
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse multipart form: %v", err)
			} else {
				var req inferenceRequest
				req.language = r.FormValue("language")
				req.model = r.FormValue("model")
				if f, _, err := r.FormFile("file"); err == nil {
					buf := make([]byte, 64)
					n, _ := f.Read(buf)
					req.fileBytes = buf[:n]
					f.Close()
				}
				record(req)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// testWAV returns a small valid WAV clip (100ms of silence at 16 kHz mono).
func testWAV() []byte {
	return audio.EncodeWAV(make([]byte, 3200), 16000, 1)
}

// ---- construction ------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	calls := atomic.Int32{}
	srv := newMockServer(t, "ok", &calls, nil)
	defer srv.Close()

	tr, err := whisper.New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), testWAV(), ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

// ---- transcription -----------------------------------------------------------

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	srv := newMockServer(t, "  Hello world. \n", nil, nil)
	defer srv.Close()

	tr, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := tr.Transcribe(context.Background(), testWAV(), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("want %q, got %q", "Hello world.", text)
	}
}

func TestTranscribe_SendsLanguageAndModel(t *testing.T) {
	var got inferenceRequest
	srv := newMockServer(t, "x", nil, func(r inferenceRequest) { got = r })
	defer srv.Close()

	tr, err := whisper.New(srv.URL, whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), testWAV(), "de"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got.language != "de" {
		t.Errorf("language: want %q, got %q", "de", got.language)
	}
	if got.model != "small" {
		t.Errorf("model: want %q, got %q", "small", got.model)
	}
	if len(got.fileBytes) < 4 || string(got.fileBytes[:4]) != "RIFF" {
		t.Errorf("file part does not start with a RIFF header: %q", got.fileBytes)
	}
}

func TestTranscribe_EmptyLanguageFallsBackToDefault(t *testing.T) {
	var got inferenceRequest
	srv := newMockServer(t, "x", nil, func(r inferenceRequest) { got = r })
	defer srv.Close()

	tr, err := whisper.New(srv.URL, whisper.WithLanguage("auto"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), testWAV(), ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.language != "auto" {
		t.Errorf("language: want %q, got %q", "auto", got.language)
	}
}

func TestTranscribe_EmptyAudio_ReturnsError(t *testing.T) {
	tr, err := whisper.New("http://localhost:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), nil, "en"); err == nil {
		t.Error("expected error for empty audio")
	}
}

func TestTranscribe_ServerError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), testWAV(), "en"); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	srv := newMockServer(t, "x", nil, nil)
	defer srv.Close()

	tr, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Transcribe(ctx, testWAV(), "en"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
