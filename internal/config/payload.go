package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// filePayload mirrors Config with pointer fields so absent keys keep their
// defaults. JSONC and YAML decode into the same shape.
type filePayload struct {
	Audio     *audioPayload     `json:"audio" yaml:"audio"`
	Recording *recordingPayload `json:"recording" yaml:"recording"`
	ASR       *asrPayload       `json:"asr" yaml:"asr"`
	Riva      *rivaPayload      `json:"riva" yaml:"riva"`
	Deepgram  *deepgramPayload  `json:"deepgram" yaml:"deepgram"`
	Vocab     *vocabPayload     `json:"vocab" yaml:"vocab"`
	Cues      *cuesPayload      `json:"cues" yaml:"cues"`
	Handoff   *handoffPayload   `json:"handoff" yaml:"handoff"`
	Metrics   *metricsPayload   `json:"metrics" yaml:"metrics"`
	Debug     *debugPayload     `json:"debug" yaml:"debug"`
}

type audioPayload struct {
	Input    *string `json:"input" yaml:"input"`
	Fallback *string `json:"fallback" yaml:"fallback"`
}

type recordingPayload struct {
	Dir    *string `json:"dir" yaml:"dir"`
	Format *string `json:"format" yaml:"format"`
}

type asrPayload struct {
	Engine               *string `json:"engine" yaml:"engine"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation" yaml:"automatic_punctuation"`
	LanguageCode         *string `json:"language_code" yaml:"language_code"`
	Model                *string `json:"model" yaml:"model"`
	WatchdogMS           *int    `json:"watchdog_ms" yaml:"watchdog_ms"`
	QueueFrames          *int    `json:"queue_frames" yaml:"queue_frames"`
}

type rivaPayload struct {
	GRPC          *string `json:"grpc" yaml:"grpc"`
	HTTP          *string `json:"http" yaml:"http"`
	HealthPath    *string `json:"health_path" yaml:"health_path"`
	DialTimeoutMS *int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
}

type deepgramPayload struct {
	Endpoint  *string `json:"endpoint" yaml:"endpoint"`
	APIKeyEnv *string `json:"api_key_env" yaml:"api_key_env"`
	EnvFile   *string `json:"env_file" yaml:"env_file"`
}

type cuesPayload struct {
	Enable *bool    `json:"enable" yaml:"enable"`
	Volume *float64 `json:"volume" yaml:"volume"`
}

type handoffPayload struct {
	Command   *string `json:"command" yaml:"command"`
	TimeoutMS *int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type metricsPayload struct {
	Listen *string `json:"listen" yaml:"listen"`
}

type vocabPayload struct {
	Global     *stringList                `json:"global" yaml:"global"`
	MaxPhrases *int                       `json:"max_phrases" yaml:"max_phrases"`
	Sets       map[string]vocabSetPayload `json:"sets" yaml:"sets"`
}

type vocabSetPayload struct {
	Boost   *float64 `json:"boost" yaml:"boost"`
	Phrases []string `json:"phrases" yaml:"phrases"`
}

type debugPayload struct {
	GRPCDump *bool `json:"grpc_dump" yaml:"grpc_dump"`
}

// stringList accepts a list or a comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitCommaList(single)
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitCommaList(value.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string list or comma-delimited string", value.Line)
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (payload filePayload) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if p := payload.Audio; p != nil {
		setString(&cfg.Audio.Input, p.Input)
		setString(&cfg.Audio.Fallback, p.Fallback)
	}

	if p := payload.Recording; p != nil {
		setString(&cfg.Recording.Dir, p.Dir)
		if p.Format != nil {
			cfg.Recording.Format = strings.ToLower(strings.TrimSpace(*p.Format))
		}
	}

	if p := payload.ASR; p != nil {
		if p.Engine != nil {
			cfg.ASR.Engine = strings.ToLower(strings.TrimSpace(*p.Engine))
		}
		if p.AutomaticPunctuation != nil {
			cfg.ASR.AutomaticPunctuation = *p.AutomaticPunctuation
		}
		setString(&cfg.ASR.LanguageCode, p.LanguageCode)
		setString(&cfg.ASR.Model, p.Model)
		setInt(&cfg.ASR.WatchdogMS, p.WatchdogMS)
		setInt(&cfg.ASR.QueueFrames, p.QueueFrames)
	}

	if p := payload.Riva; p != nil {
		setString(&cfg.Riva.GRPC, p.GRPC)
		setString(&cfg.Riva.HTTP, p.HTTP)
		setString(&cfg.Riva.HealthPath, p.HealthPath)
		setInt(&cfg.Riva.DialTimeoutMS, p.DialTimeoutMS)
	}

	if p := payload.Deepgram; p != nil {
		setString(&cfg.Deepgram.Endpoint, p.Endpoint)
		setString(&cfg.Deepgram.APIKeyEnv, p.APIKeyEnv)
		setString(&cfg.Deepgram.EnvFile, p.EnvFile)
	}

	if p := payload.Cues; p != nil {
		if p.Enable != nil {
			cfg.Cues.Enable = *p.Enable
		}
		if p.Volume != nil {
			cfg.Cues.Volume = *p.Volume
		}
	}

	if p := payload.Handoff; p != nil {
		if p.Command != nil {
			raw := *p.Command
			argv, err := ParseArgv(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid handoff.command: %w", err)
			}
			cfg.Handoff.Command = CommandConfig{Raw: raw, Argv: argv}
		}
		setInt(&cfg.Handoff.TimeoutMS, p.TimeoutMS)
	}

	if p := payload.Metrics; p != nil {
		setString(&cfg.Metrics.Listen, p.Listen)
	}

	if p := payload.Vocab; p != nil {
		if p.Global != nil {
			cfg.Vocab.GlobalSets = cfg.Vocab.GlobalSets[:0]
			for _, name := range *p.Global {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				cfg.Vocab.GlobalSets = append(cfg.Vocab.GlobalSets, name)
			}
		}
		setInt(&cfg.Vocab.MaxPhrases, p.MaxPhrases)
		if p.Sets != nil {
			if cfg.Vocab.Sets == nil {
				cfg.Vocab.Sets = make(map[string]VocabSet)
			}
			for name, set := range p.Sets {
				trimmedName := strings.TrimSpace(name)
				if trimmedName == "" {
					return nil, fmt.Errorf("vocab.sets contains an empty set name")
				}

				entry := VocabSet{Name: trimmedName, Phrases: append([]string(nil), set.Phrases...)}
				if set.Boost != nil {
					entry.Boost = *set.Boost
				}
				cfg.Vocab.Sets[trimmedName] = entry
			}
		}
	}

	if p := payload.Debug; p != nil && p.GRPCDump != nil {
		cfg.Debug.EnableGRPCDump = *p.GRPCDump
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
