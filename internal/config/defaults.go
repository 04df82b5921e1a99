package config

const (
	EngineRiva     = "riva"
	EngineDeepgram = "deepgram"
	EngineMock     = "mock"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Recording: RecordingConfig{Format: "flac"},
		ASR: ASRConfig{
			Engine:               EngineRiva,
			AutomaticPunctuation: true,
			LanguageCode:         "en-US",
			Model:                "",
			WatchdogMS:           0,
			QueueFrames:          64,
		},
		Riva: RivaConfig{
			GRPC:          "127.0.0.1:50051",
			HTTP:          "127.0.0.1:9000",
			HealthPath:    "/v1/health/ready",
			DialTimeoutMS: 3000,
		},
		Deepgram: DeepgramConfig{
			Endpoint:  "wss://api.deepgram.com/v1/listen",
			APIKeyEnv: "DEEPGRAM_API_KEY",
		},
		Cues:    CuesConfig{Enable: true, Volume: 1},
		Handoff: HandoffConfig{TimeoutMS: 10000},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
	}
}
