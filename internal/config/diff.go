package config

import "maps"

// ConfigDiff describes what changed between two configs and how each change
// can be applied.
type ConfigDiff struct {
	// LogLevelChanged is set when server.log_level changed. The new level
	// applies immediately to the running logger.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionDefaultsChanged is set when the stt, llm, or recording
	// defaults changed. Running sessions keep the settings they resolved at
	// start; sessions opened after the reload pick up the new defaults.
	SessionDefaultsChanged bool

	// RestartRequired lists config sections whose changes only take effect
	// after a server restart.
	RestartRequired []string
}

// HotApplicable reports whether the diff carries any change the server can
// apply without restarting.
func (d ConfigDiff) HotApplicable() bool {
	return d.LogLevelChanged || d.SessionDefaultsChanged
}

// Diff compares old and new configs and classifies every change as either
// hot-applicable or restart-required.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !sttEqual(old.STT, new.STT) || !llmEqual(old.LLM, new.LLM) || old.Recording != new.Recording {
		d.SessionDefaultsChanged = true
	}

	if old.Server.Addr != new.Server.Addr {
		d.RestartRequired = append(d.RestartRequired, "server.addr")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Auth != new.Auth {
		d.RestartRequired = append(d.RestartRequired, "auth.jwt_secret")
	}
	if old.Storage.PostgresDSN != new.Storage.PostgresDSN ||
		old.Storage.AudioBackend != new.Storage.AudioBackend ||
		!s3Equal(old.Storage.S3, new.Storage.S3) {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.VAD != new.VAD {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}

	return d
}

func sttEqual(a, b STTConfig) bool {
	return a.Provider == b.Provider &&
		a.Model == b.Model &&
		a.BaseURL == b.BaseURL &&
		a.APIKey == b.APIKey &&
		a.SilenceThreshold == b.SilenceThreshold &&
		a.Diarization == b.Diarization &&
		maps.Equal(a.APIKeys, b.APIKeys)
}

func llmEqual(a, b LLMConfig) bool {
	return a.Provider == b.Provider &&
		a.Model == b.Model &&
		a.BaseURL == b.BaseURL &&
		a.APIKey == b.APIKey &&
		maps.Equal(a.APIKeys, b.APIKeys)
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func s3Equal(a, b *S3Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
