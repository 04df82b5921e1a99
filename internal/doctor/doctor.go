// Package doctor runs runtime readiness diagnostics for config, audio,
// storage, and the recognition engine.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if cfg.Syntax != config.SyntaxNone {
		message += fmt.Sprintf(" as %s", cfg.Syntax)
	}
	if !cfg.Exists {
		message = fmt.Sprintf("no file at %q; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory is set", "XDG_RUNTIME_DIR is empty; pause/stop commands cannot reach the recorder"))

	checks = append(checks, checkRecordingDir(cfg.Config))
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))

	if len(cfg.Config.Handoff.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Handoff.Command.Argv, "handoff.command"))
	}

	switch cfg.Config.ASR.Engine {
	case config.EngineRiva:
		checks = append(checks, checkRivaReady(ctx, cfg.Config))
	case config.EngineDeepgram:
		checks = append(checks, checkDeepgramKey(cfg.Config))
	default:
		checks = append(checks, Check{Name: "asr.engine", Pass: true, Message: fmt.Sprintf("%s engine needs no service", cfg.Config.ASR.Engine)})
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkRecordingDir creates the recording directory and a scratch file in it.
func checkRecordingDir(cfg config.Config) Check {
	const name = "recording.dir"
	dir, err := config.RecordingDir(cfg)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("create %s: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".dictum-doctor-*")
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("writable %s recordings in %s", cfg.Recording.Format, dir)}
}

// checkAudioSelection runs live input selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectInput(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.input", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Input.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.input", Pass: true, Message: message}
}

// checkRivaReady probes the configured Riva HTTP ready endpoint.
func checkRivaReady(ctx context.Context, cfg config.Config) Check {
	base := strings.TrimSpace(cfg.Riva.HTTP)
	if base == "" {
		return Check{Name: "riva.ready", Pass: false, Message: "riva.http is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := strings.TrimRight(base, "/") + cfg.Riva.HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "riva.ready", Pass: false, Message: fmt.Sprintf("build request: %v", err)}
	}
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "riva.ready", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "riva.ready", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}

	bodyText := strings.ToLower(strings.TrimSpace(string(body)))
	if bodyText != "" && !strings.Contains(bodyText, "ready") {
		return Check{Name: "riva.ready", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}

	return Check{Name: "riva.ready", Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}

// checkDeepgramKey confirms an API key resolves without printing it.
func checkDeepgramKey(cfg config.Config) Check {
	key, err := config.DeepgramAPIKey(cfg.Deepgram)
	if err != nil {
		return Check{Name: "deepgram.key", Pass: false, Message: err.Error()}
	}
	return Check{Name: "deepgram.key", Pass: true, Message: fmt.Sprintf("%s resolved (%d chars)", cfg.Deepgram.APIKeyEnv, len(key))}
}
