package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DeepgramAPIKey reads the key named by deepgram.api_key_env, preferring
// deepgram.env_file over the process environment. The process environment
// is never modified.
func DeepgramAPIKey(cfg DeepgramConfig) (string, error) {
	name := strings.TrimSpace(cfg.APIKeyEnv)
	if name == "" {
		return "", fmt.Errorf("deepgram.api_key_env must not be empty")
	}

	if path := ExpandPath(cfg.EnvFile); path != "" {
		values, err := godotenv.Read(path)
		if err != nil {
			return "", fmt.Errorf("read deepgram env file %q: %w", path, err)
		}
		if key := strings.TrimSpace(values[name]); key != "" {
			return key, nil
		}
	}

	if key := strings.TrimSpace(os.Getenv(name)); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s is not set", name)
}
