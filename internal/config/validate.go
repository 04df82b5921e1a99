package config

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.ASR.Engine {
	case EngineRiva, EngineDeepgram:
	case EngineMock:
		warnings = append(warnings, Warning{Message: "asr.engine=mock produces synthetic transcripts"})
	default:
		return nil, fmt.Errorf("asr.engine must be one of: riva, deepgram, mock")
	}
	if strings.TrimSpace(cfg.ASR.LanguageCode) == "" {
		return nil, fmt.Errorf("asr.language_code must not be empty")
	}
	if cfg.ASR.WatchdogMS < 0 {
		return nil, fmt.Errorf("asr.watchdog_ms must be >= 0")
	}
	if cfg.ASR.QueueFrames < 0 {
		return nil, fmt.Errorf("asr.queue_frames must be >= 0")
	}

	if format := cfg.Recording.Format; format != "flac" && format != "wav" {
		return nil, fmt.Errorf("recording.format must be one of: flac, wav")
	}

	if strings.TrimSpace(cfg.Riva.GRPC) == "" {
		return nil, fmt.Errorf("riva.grpc must not be empty")
	}
	if strings.TrimSpace(cfg.Riva.HTTP) == "" {
		return nil, fmt.Errorf("riva.http must not be empty")
	}
	if strings.TrimSpace(cfg.Riva.HealthPath) == "" {
		return nil, fmt.Errorf("riva.health_path must not be empty")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Riva.HealthPath), "/") {
		return nil, fmt.Errorf("riva.health_path must start with '/'")
	}
	if cfg.Riva.DialTimeoutMS < 0 {
		return nil, fmt.Errorf("riva.dial_timeout_ms must be >= 0")
	}

	if cfg.ASR.Engine == EngineDeepgram {
		if strings.TrimSpace(cfg.Deepgram.Endpoint) == "" {
			return nil, fmt.Errorf("deepgram.endpoint must not be empty when asr.engine=deepgram")
		}
		if strings.TrimSpace(cfg.Deepgram.APIKeyEnv) == "" {
			return nil, fmt.Errorf("deepgram.api_key_env must not be empty when asr.engine=deepgram")
		}
	}

	if cfg.Cues.Volume < 0 || cfg.Cues.Volume > 1 {
		return nil, fmt.Errorf("cues.volume must be between 0 and 1")
	}
	if cfg.Handoff.TimeoutMS < 0 {
		return nil, fmt.Errorf("handoff.timeout_ms must be >= 0")
	}
	if cfg.Handoff.Command.Raw != "" && len(cfg.Handoff.Command.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "handoff.command is commented out; no handoff will run"})
	}
	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen: %w", err)
		}
	}

	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}
	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic ASR phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
