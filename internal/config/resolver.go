package config

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Settings is the fully resolved configuration for one session: server
// defaults with the user's stored settings applied on top. Build it with
// [Resolve].
type Settings struct {
	STT       STTConfig
	LLM       LLMConfig
	Recording RecordingConfig
}

// UserSettings is the JSON document stored per user. Numeric and boolean
// fields are pointers so an absent field is distinguishable from an explicit
// zero.
type UserSettings struct {
	STT       UserSTTSettings       `json:"stt"`
	LLM       UserLLMSettings       `json:"llm"`
	Recording UserRecordingSettings `json:"recording"`
}

// UserSTTSettings overrides the server's ASR defaults for one user.
type UserSTTSettings struct {
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	BaseURL          string            `json:"base_url"`
	APIKey           string            `json:"api_key"`
	APIKeys          map[string]string `json:"api_keys"`
	SilenceThreshold *int              `json:"silence_threshold"`
	Diarization      *bool             `json:"diarization"`
}

// UserLLMSettings overrides the server's translation model defaults for one
// user.
type UserLLMSettings struct {
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	BaseURL  string            `json:"base_url"`
	APIKey   string            `json:"api_key"`
	APIKeys  map[string]string `json:"api_keys"`
}

// UserRecordingSettings overrides the server's recording and segmentation
// defaults for one user.
type UserRecordingSettings struct {
	AudioBufferDuration  *float64 `json:"audio_buffer_duration"`
	SegmentSoftThreshold *int     `json:"segment_soft_threshold"`
	SegmentHardThreshold *int     `json:"segment_hard_threshold"`
	TranslationMode      *int     `json:"translation_mode"`
}

// ParseUserSettings decodes the settings JSON stored per user. A nil or
// empty document yields an empty settings object so freshly created users
// resolve to pure server defaults.
func ParseUserSettings(raw []byte) (*UserSettings, error) {
	us := &UserSettings{}
	if len(raw) == 0 {
		return us, nil
	}
	if err := json.Unmarshal(raw, us); err != nil {
		return nil, fmt.Errorf("config: parse user settings: %w", err)
	}
	return us, nil
}

// Resolve overlays a user's stored settings onto the server defaults and
// returns the effective per-session configuration.
//
// Provider, model, and threshold preferences always follow the user when
// set. Credentials (API keys and base URLs) follow the user only when
// useAdminKeys is false; with useAdminKeys the server's credentials are
// used regardless of what the user stored. Unset user fields keep the
// server value in both modes.
//
// Resolve never mutates server; key maps are detached before any overlay.
func Resolve(server *Config, user *UserSettings, useAdminKeys bool) Settings {
	out := Settings{
		STT:       server.STT,
		LLM:       server.LLM,
		Recording: server.Recording,
	}
	out.STT.APIKeys = mergeKeyed(server.STT.APIKeys, nil)
	out.LLM.APIKeys = mergeKeyed(server.LLM.APIKeys, nil)
	if user == nil {
		return out
	}

	if user.STT.Provider != "" {
		out.STT.Provider = user.STT.Provider
	}
	if user.STT.Model != "" {
		out.STT.Model = user.STT.Model
	}
	if user.STT.SilenceThreshold != nil {
		out.STT.SilenceThreshold = *user.STT.SilenceThreshold
	}
	if user.STT.Diarization != nil {
		out.STT.Diarization = *user.STT.Diarization
	}
	if user.LLM.Provider != "" {
		out.LLM.Provider = user.LLM.Provider
	}
	if user.LLM.Model != "" {
		out.LLM.Model = user.LLM.Model
	}
	if user.Recording.AudioBufferDuration != nil {
		out.Recording.AudioBufferDuration = *user.Recording.AudioBufferDuration
	}
	if user.Recording.SegmentSoftThreshold != nil {
		out.Recording.SegmentSoftThreshold = *user.Recording.SegmentSoftThreshold
	}
	if user.Recording.SegmentHardThreshold != nil {
		out.Recording.SegmentHardThreshold = *user.Recording.SegmentHardThreshold
	}
	if user.Recording.TranslationMode != nil {
		out.Recording.TranslationMode = *user.Recording.TranslationMode
	}

	if useAdminKeys {
		return out
	}

	if user.STT.APIKey != "" {
		out.STT.APIKey = user.STT.APIKey
	}
	if user.STT.BaseURL != "" {
		out.STT.BaseURL = user.STT.BaseURL
	}
	out.STT.APIKeys = mergeKeyed(out.STT.APIKeys, user.STT.APIKeys)
	if user.LLM.APIKey != "" {
		out.LLM.APIKey = user.LLM.APIKey
	}
	if user.LLM.BaseURL != "" {
		out.LLM.BaseURL = user.LLM.BaseURL
	}
	out.LLM.APIKeys = mergeKeyed(out.LLM.APIKeys, user.LLM.APIKeys)
	return out
}

// mergeKeyed returns a fresh map holding base entries with overlay entries
// applied on top. Both inputs nil yields nil.
func mergeKeyed(base, overlay map[string]string) map[string]string {
	if base == nil && overlay == nil {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overlay))
	maps.Copy(merged, base)
	maps.Copy(merged, overlay)
	return merged
}
