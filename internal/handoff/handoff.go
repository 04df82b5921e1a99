// Package handoff passes a finished recording to an external command.
package handoff

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/dictum/internal/fsm"
	"github.com/rbright/dictum/internal/session"
)

const DefaultTimeout = 10 * time.Second

// Runner runs the configured command once per stopped session.
type Runner struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Runner. An empty argv makes Run a no-op.
func New(argv []string, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{argv: argv, timeout: timeout, logger: logger}
}

func (r *Runner) Enabled() bool {
	return len(r.argv) > 0
}

// Run feeds the transcript on stdin and describes the recording through
// DICTUM_* environment variables. Discarded sessions are never handed off.
func (r *Runner) Run(ctx context.Context, snap session.Snapshot) error {
	if !r.Enabled() || snap.State != fsm.StateStopped {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.argv[0], r.argv[1:]...)
	cmd.Stdin = strings.NewReader(snap.Transcript)
	cmd.Env = append(os.Environ(),
		"DICTUM_AUDIO_PATH="+snap.AudioPath,
		"DICTUM_SESSION_ID="+snap.ID,
		"DICTUM_ELAPSED_SECONDS="+strconv.Itoa(snap.ElapsedSeconds()),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("handoff %s: %w: %s", r.argv[0], err, detail)
		}
		return fmt.Errorf("handoff %s: %w", r.argv[0], err)
	}

	r.logger.Info("handoff complete",
		"command", r.argv[0],
		"session", snap.ID,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}
