package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// Syntax is SyntaxJSONC or SyntaxYAML for an existing, non-empty file.
	Syntax Syntax
}

// yamlSiblings are tried next to the default config.jsonc when it is absent.
var yamlSiblings = []string{"config.yaml", "config.yml"}

// Load resolves, reads, parses, and validates the runtime configuration. An
// explicit path must be used as given; the default location also accepts a
// YAML file beside the missing config.jsonc.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(resolvedPath)
	if errors.Is(err, os.ErrNotExist) && strings.TrimSpace(explicitPath) == "" {
		for _, name := range yamlSiblings {
			candidate := filepath.Join(filepath.Dir(resolvedPath), name)
			if data, readErr := os.ReadFile(candidate); readErr == nil {
				resolvedPath, content, err = candidate, data, nil
				break
			}
		}
	}

	base := Default()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
		Syntax:   DetectSyntax(string(content)),
	}, nil
}
