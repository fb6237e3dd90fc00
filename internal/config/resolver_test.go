package config_test

import (
	"testing"

	"github.com/hearsay-live/hearsay/internal/config"
)

func serverConfig() *config.Config {
	return &config.Config{
		STT: config.STTConfig{
			Provider:         "deepgram",
			Model:            "nova-2",
			BaseURL:          "wss://dg.example.com",
			APIKey:           "server-stt-key",
			APIKeys:          map[string]string{"deepgram": "server-dg-key", "openai": "server-oa-key"},
			SilenceThreshold: 50,
		},
		LLM: config.LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			APIKey:   "server-llm-key",
		},
		Recording: config.RecordingConfig{
			SegmentSoftThreshold: 30,
			SegmentHardThreshold: 60,
			TranslationMode:      100,
		},
	}
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestResolve_NilUserKeepsServerDefaults(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	got := config.Resolve(srv, nil, false)

	if got.STT.Provider != "deepgram" || got.STT.APIKey != "server-stt-key" {
		t.Errorf("stt defaults not preserved: %+v", got.STT)
	}
	if got.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm defaults not preserved: %+v", got.LLM)
	}
	if got.Recording.TranslationMode != 100 {
		t.Errorf("recording defaults not preserved: %+v", got.Recording)
	}
}

func TestResolve_PreferencesOverlay(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	user := &config.UserSettings{
		STT: config.UserSTTSettings{
			Provider:         "openai",
			Model:            "gpt-4o-mini-transcribe",
			SilenceThreshold: intPtr(70),
			Diarization:      boolPtr(true),
		},
		LLM: config.UserLLMSettings{
			Model: "gpt-4o",
		},
		Recording: config.UserRecordingSettings{
			AudioBufferDuration:  floatPtr(6),
			SegmentSoftThreshold: intPtr(20),
			TranslationMode:      intPtr(200),
		},
	}

	got := config.Resolve(srv, user, true)

	if got.STT.Provider != "openai" || got.STT.Model != "gpt-4o-mini-transcribe" {
		t.Errorf("stt preferences not applied: %+v", got.STT)
	}
	if got.STT.SilenceThreshold != 70 {
		t.Errorf("silence_threshold: got %d, want 70", got.STT.SilenceThreshold)
	}
	if !got.STT.Diarization {
		t.Error("diarization: got false, want true")
	}
	if got.LLM.Model != "gpt-4o" {
		t.Errorf("llm.model: got %q, want gpt-4o", got.LLM.Model)
	}
	if got.Recording.AudioBufferDuration != 6 {
		t.Errorf("audio_buffer_duration: got %.1f, want 6", got.Recording.AudioBufferDuration)
	}
	if got.Recording.SegmentSoftThreshold != 20 {
		t.Errorf("segment_soft_threshold: got %d, want 20", got.Recording.SegmentSoftThreshold)
	}
	if got.Recording.TranslationMode != 200 {
		t.Errorf("translation_mode: got %d, want 200", got.Recording.TranslationMode)
	}
	// Hard threshold was not set by the user and keeps the server value.
	if got.Recording.SegmentHardThreshold != 60 {
		t.Errorf("segment_hard_threshold: got %d, want 60", got.Recording.SegmentHardThreshold)
	}
}

func TestResolve_AdminKeysIgnoreUserCredentials(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	user := &config.UserSettings{
		STT: config.UserSTTSettings{
			Provider: "openai",
			APIKey:   "user-stt-key",
			BaseURL:  "https://user.example.com",
			APIKeys:  map[string]string{"openai": "user-oa-key"},
		},
		LLM: config.UserLLMSettings{
			APIKey: "user-llm-key",
		},
	}

	got := config.Resolve(srv, user, true)

	// The provider preference follows the user even in admin-keys mode.
	if got.STT.Provider != "openai" {
		t.Errorf("stt.provider: got %q, want openai", got.STT.Provider)
	}
	// Credentials stay the server's.
	if got.STT.APIKey != "server-stt-key" {
		t.Errorf("stt.api_key: got %q, want server-stt-key", got.STT.APIKey)
	}
	if got.STT.BaseURL != "wss://dg.example.com" {
		t.Errorf("stt.base_url: got %q, want server value", got.STT.BaseURL)
	}
	if got.STT.APIKeys["openai"] != "server-oa-key" {
		t.Errorf("stt.api_keys[openai]: got %q, want server-oa-key", got.STT.APIKeys["openai"])
	}
	if got.LLM.APIKey != "server-llm-key" {
		t.Errorf("llm.api_key: got %q, want server-llm-key", got.LLM.APIKey)
	}
	// With the keyed map resolved, the effective key is the server's.
	if got.STT.EffectiveAPIKey() != "server-oa-key" {
		t.Errorf("effective stt key: got %q, want server-oa-key", got.STT.EffectiveAPIKey())
	}
}

func TestResolve_UserCredentialsWhenNotAdmin(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	user := &config.UserSettings{
		STT: config.UserSTTSettings{
			APIKey:  "user-stt-key",
			BaseURL: "https://user.example.com",
		},
		LLM: config.UserLLMSettings{
			APIKey: "user-llm-key",
		},
	}

	got := config.Resolve(srv, user, false)

	if got.STT.APIKey != "user-stt-key" {
		t.Errorf("stt.api_key: got %q, want user-stt-key", got.STT.APIKey)
	}
	if got.STT.BaseURL != "https://user.example.com" {
		t.Errorf("stt.base_url: got %q, want user value", got.STT.BaseURL)
	}
	if got.LLM.APIKey != "user-llm-key" {
		t.Errorf("llm.api_key: got %q, want user-llm-key", got.LLM.APIKey)
	}
	// Unset user fields keep the server values.
	if got.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm.model: got %q, want gpt-4o-mini", got.LLM.Model)
	}
}

func TestResolve_KeyedMapsMerge(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	user := &config.UserSettings{
		STT: config.UserSTTSettings{
			Provider: "openai",
			APIKeys:  map[string]string{"openai": "user-oa-key"},
		},
	}

	got := config.Resolve(srv, user, false)

	if got.STT.APIKeys["openai"] != "user-oa-key" {
		t.Errorf("user key should win: got %q", got.STT.APIKeys["openai"])
	}
	if got.STT.APIKeys["deepgram"] != "server-dg-key" {
		t.Errorf("untouched server key should survive: got %q", got.STT.APIKeys["deepgram"])
	}
	if got.STT.EffectiveAPIKey() != "user-oa-key" {
		t.Errorf("effective key: got %q, want user-oa-key", got.STT.EffectiveAPIKey())
	}
}

func TestResolve_DoesNotMutateServer(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	user := &config.UserSettings{
		STT: config.UserSTTSettings{
			APIKeys: map[string]string{"deepgram": "user-dg-key"},
		},
	}

	_ = config.Resolve(srv, user, false)

	if srv.STT.APIKeys["deepgram"] != "server-dg-key" {
		t.Errorf("server config was mutated: %q", srv.STT.APIKeys["deepgram"])
	}
}

func TestParseUserSettings_Empty(t *testing.T) {
	t.Parallel()
	for _, raw := range [][]byte{nil, {}} {
		us, err := config.ParseUserSettings(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if us == nil {
			t.Fatal("expected empty settings, got nil")
		}
		if us.STT.Provider != "" || us.STT.SilenceThreshold != nil {
			t.Errorf("expected zero settings, got %+v", us)
		}
	}
}

func TestParseUserSettings_Full(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"stt": {
			"provider": "openai",
			"model": "whisper-1",
			"api_key": "user-key",
			"api_keys": {"openai": "user-oa"},
			"silence_threshold": 65,
			"diarization": false
		},
		"llm": {"provider": "anthropic", "model": "claude-sonnet-4-20250514"},
		"recording": {"translation_mode": 150, "segment_hard_threshold": 80}
	}`)

	us, err := config.ParseUserSettings(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if us.STT.Provider != "openai" || us.STT.Model != "whisper-1" {
		t.Errorf("stt: %+v", us.STT)
	}
	if us.STT.SilenceThreshold == nil || *us.STT.SilenceThreshold != 65 {
		t.Errorf("silence_threshold: %v", us.STT.SilenceThreshold)
	}
	if us.STT.Diarization == nil || *us.STT.Diarization != false {
		t.Errorf("diarization should be an explicit false, got %v", us.STT.Diarization)
	}
	if us.LLM.Provider != "anthropic" {
		t.Errorf("llm.provider: %q", us.LLM.Provider)
	}
	if us.Recording.TranslationMode == nil || *us.Recording.TranslationMode != 150 {
		t.Errorf("translation_mode: %v", us.Recording.TranslationMode)
	}
	if us.Recording.SegmentSoftThreshold != nil {
		t.Errorf("unset field should stay nil, got %v", us.Recording.SegmentSoftThreshold)
	}
}

func TestParseUserSettings_Invalid(t *testing.T) {
	t.Parallel()
	_, err := config.ParseUserSettings([]byte(`{"stt": [1,2,3]}`))
	if err == nil {
		t.Fatal("expected error for malformed settings, got nil")
	}
}

func TestResolve_ExplicitFalseDiarizationOverridesServer(t *testing.T) {
	t.Parallel()
	srv := serverConfig()
	srv.STT.Diarization = true
	user := &config.UserSettings{
		STT: config.UserSTTSettings{Diarization: boolPtr(false)},
	}

	got := config.Resolve(srv, user, true)
	if got.STT.Diarization {
		t.Error("explicit false should override the server's true")
	}
}
