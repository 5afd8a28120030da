package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; a backend or model path change
// requires a process restart and is deliberately not hot-reloadable.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MaxConcurrentChanged bool
	NewMaxConcurrent     int

	DefaultLanguageChanged bool
	NewDefaultLanguage     string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Transcribe.MaxConcurrent != new.Transcribe.MaxConcurrent {
		d.MaxConcurrentChanged = true
		d.NewMaxConcurrent = new.Transcribe.MaxConcurrent
	}
	if old.Transcribe.DefaultLanguage != new.Transcribe.DefaultLanguage {
		d.DefaultLanguageChanged = true
		d.NewDefaultLanguage = new.Transcribe.DefaultLanguage
	}

	return d
}
