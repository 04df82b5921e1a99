// Package config resolves, parses, validates, and defaults dictum configuration.
package config

// Config is the fully materialized runtime configuration used by dictum.
type Config struct {
	Audio     AudioConfig
	Recording RecordingConfig
	ASR       ASRConfig
	Riva      RivaConfig
	Deepgram  DeepgramConfig
	Vocab     VocabConfig
	Cues      CuesConfig
	Handoff   HandoffConfig
	Metrics   MetricsConfig
	Debug     DebugConfig
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// RecordingConfig controls where session audio is written.
type RecordingConfig struct {
	Dir    string
	Format string
}

// ASRConfig selects the recognition engine and request-level hints.
type ASRConfig struct {
	Engine               string
	AutomaticPunctuation bool
	LanguageCode         string
	Model                string
	WatchdogMS           int
	QueueFrames          int
}

type RivaConfig struct {
	GRPC          string
	HTTP          string
	HealthPath    string
	DialTimeoutMS int
}

// DeepgramConfig names where the API key comes from; the key itself never
// lives in the config file.
type DeepgramConfig struct {
	Endpoint  string
	APIKeyEnv string
	EnvFile   string
}

type CuesConfig struct {
	Enable bool
	Volume float64
}

// HandoffConfig is the command run after a stopped session.
type HandoffConfig struct {
	Command   CommandConfig
	TimeoutMS int
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableGRPCDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to ASR adapters.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
