package config

import "strings"

type Syntax string

const (
	SyntaxNone  Syntax = ""
	SyntaxJSONC Syntax = "jsonc"
	SyntaxYAML  Syntax = "yaml"
)

// DetectSyntax picks JSONC when the first non-blank character is `{` and
// YAML for any other non-blank content.
func DetectSyntax(content string) Syntax {
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return SyntaxNone
	case strings.HasPrefix(trimmed, "{"):
		return SyntaxJSONC
	default:
		return SyntaxYAML
	}
}

// Parse reads configuration content as JSONC or YAML over base.
func Parse(content string, base Config) (Config, []Warning, error) {
	syntax := DetectSyntax(content)
	if syntax == SyntaxNone {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	var (
		payload filePayload
		err     error
	)
	if syntax == SyntaxJSONC {
		payload, err = decodeJSONC(content)
	} else {
		payload, err = decodeYAML(content)
	}
	if err != nil {
		return Config{}, nil, err
	}

	cfg := cloneConfig(base)
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validatedWarnings...), nil
}

// cloneConfig copies the reference fields so applying a payload never
// mutates base.
func cloneConfig(base Config) Config {
	cfg := base
	cfg.Vocab.GlobalSets = append([]string(nil), base.Vocab.GlobalSets...)
	cfg.Vocab.Sets = make(map[string]VocabSet, len(base.Vocab.Sets))
	for name, set := range base.Vocab.Sets {
		cfg.Vocab.Sets[name] = set
	}
	cfg.Handoff.Command.Argv = append([]string(nil), base.Handoff.Command.Argv...)
	return cfg
}
