package config

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ParseArgv splits a shell-style command string. A leading # comments the
// whole command out.
func ParseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	argv, err := shellwords.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", input, err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	return argv, nil
}
