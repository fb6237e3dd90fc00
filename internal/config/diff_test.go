package config_test

import (
	"slices"
	"testing"

	"github.com/hearsay-live/hearsay/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{Addr: ":8080", LogLevel: config.LogInfo},
		STT:    config.STTConfig{Provider: "deepgram", APIKeys: map[string]string{"deepgram": "k"}},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=false for identical configs")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart sections, got %v", d.RestartRequired)
	}
	if d.HotApplicable() {
		t.Error("expected HotApplicable=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.HotApplicable() {
		t.Error("a log level change should be hot-applicable")
	}
}

func TestDiff_SessionDefaultsChanged_STTModel(t *testing.T) {
	t.Parallel()
	old := &config.Config{STT: config.STTConfig{Provider: "deepgram", Model: "nova-2"}}
	new := &config.Config{STT: config.STTConfig{Provider: "deepgram", Model: "nova-3"}}

	d := config.Diff(old, new)
	if !d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=true for stt model change")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("stt changes should not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_SessionDefaultsChanged_APIKeys(t *testing.T) {
	t.Parallel()
	old := &config.Config{LLM: config.LLMConfig{APIKeys: map[string]string{"openai": "a"}}}
	new := &config.Config{LLM: config.LLMConfig{APIKeys: map[string]string{"openai": "b"}}}

	d := config.Diff(old, new)
	if !d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=true for keyed credential change")
	}
}

func TestDiff_SessionDefaultsChanged_Recording(t *testing.T) {
	t.Parallel()
	old := &config.Config{Recording: config.RecordingConfig{TranslationMode: 100}}
	new := &config.Config{Recording: config.RecordingConfig{TranslationMode: 200}}

	d := config.Diff(old, new)
	if !d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=true for recording change")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:  config.ServerConfig{Addr: ":8080"},
		Auth:    config.AuthConfig{JWTSecret: "old"},
		Storage: config.StorageConfig{PostgresDSN: "postgres://old"},
		VAD:     config.VADConfig{ModelPath: "/models/old.onnx"},
	}
	new := &config.Config{
		Server:  config.ServerConfig{Addr: ":9090"},
		Auth:    config.AuthConfig{JWTSecret: "new"},
		Storage: config.StorageConfig{PostgresDSN: "postgres://new"},
		VAD:     config.VADConfig{ModelPath: "/models/new.onnx"},
	}

	d := config.Diff(old, new)
	for _, section := range []string{"server.addr", "auth.jwt_secret", "storage", "vad"} {
		if !slices.Contains(d.RestartRequired, section) {
			t.Errorf("expected %q in RestartRequired, got %v", section, d.RestartRequired)
		}
	}
	if d.HotApplicable() {
		t.Error("restart-only changes should not be hot-applicable")
	}
}

func TestDiff_TLSChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	new := &config.Config{
		Server: config.ServerConfig{TLS: &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}},
	}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("expected server.tls in RestartRequired, got %v", d.RestartRequired)
	}

	// Same TLS pointer values on both sides should not trigger.
	both := &config.Config{
		Server: config.ServerConfig{TLS: &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}},
	}
	d = config.Diff(both, new)
	if slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("equal TLS configs should not trigger, got %v", d.RestartRequired)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{Addr: ":8080", LogLevel: config.LogInfo},
		STT:       config.STTConfig{Provider: "deepgram"},
		Recording: config.RecordingConfig{TranslationMode: 100},
	}
	new := &config.Config{
		Server:    config.ServerConfig{Addr: ":9090", LogLevel: config.LogWarn},
		STT:       config.STTConfig{Provider: "openai"},
		Recording: config.RecordingConfig{TranslationMode: 100},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.SessionDefaultsChanged {
		t.Error("expected SessionDefaultsChanged=true")
	}
	if !slices.Contains(d.RestartRequired, "server.addr") {
		t.Errorf("expected server.addr in RestartRequired, got %v", d.RestartRequired)
	}
}
