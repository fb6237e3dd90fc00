package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "openai"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.STT.Provider)
	validateProviderName("llm", cfg.LLM.Provider)

	// STT
	if t := cfg.STT.SilenceThreshold; t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("stt.silence_threshold %d is out of range [0, 100]", t))
	}

	// Recording
	if d := cfg.Recording.AudioBufferDuration; d < 0 {
		errs = append(errs, fmt.Errorf("recording.audio_buffer_duration %.2f must not be negative", d))
	}
	if cfg.Recording.SegmentSoftThreshold < 0 {
		errs = append(errs, fmt.Errorf("recording.segment_soft_threshold %d must not be negative", cfg.Recording.SegmentSoftThreshold))
	}
	if cfg.Recording.SegmentHardThreshold < 0 {
		errs = append(errs, fmt.Errorf("recording.segment_hard_threshold %d must not be negative", cfg.Recording.SegmentHardThreshold))
	}
	if soft, hard := cfg.Recording.SoftThreshold(), cfg.Recording.HardThreshold(); soft > hard {
		slog.Warn("recording.segment_soft_threshold exceeds the hard threshold; the hard cut will always win",
			"soft", soft,
			"hard", hard,
		)
	}

	// Storage
	if b := cfg.Storage.AudioBackend; b != "" && !b.IsValid() {
		errs = append(errs, fmt.Errorf("storage.audio_backend %q is invalid; valid values: lo, blob", b))
	}
	if s3 := cfg.Storage.S3; s3 != nil && s3.Bucket == "" {
		errs = append(errs, errors.New("storage.s3.bucket is required when storage.s3 is configured"))
	}

	// Availability warnings
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("auth.jwt_secret is empty; websocket clients cannot authenticate")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; recordings and transcripts will not be persisted")
	}
	if cfg.VAD.ModelPath == "" {
		slog.Warn("vad.model_path is empty; buffered transcription sessions will fail to start")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
