// Package app dispatches parsed commands and runs the recording owner process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/cli"
	"github.com/rbright/dictum/internal/config"
	"github.com/rbright/dictum/internal/cue"
	"github.com/rbright/dictum/internal/doctor"
	"github.com/rbright/dictum/internal/fsm"
	"github.com/rbright/dictum/internal/handoff"
	"github.com/rbright/dictum/internal/ipc"
	"github.com/rbright/dictum/internal/logging"
	"github.com/rbright/dictum/internal/pipeline"
	"github.com/rbright/dictum/internal/session"
	"github.com/rbright/dictum/internal/telemetry"
	"github.com/rbright/dictum/internal/version"
)

const (
	serviceName    = "dictum"
	forwardTimeout = 220 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(serviceName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(serviceName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: logging disabled: %v\n", err)
		logRuntime = logging.Discard()
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch {
	case parsed.Command == cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case parsed.Command == cli.CommandDevices:
		return r.commandDevices(ctx)
	case parsed.Command == cli.CommandStatus:
		return r.commandStatus(ctx)
	case parsed.Command.Forwarded():
		return r.forwardOrFail(ctx, string(parsed.Command))
	case parsed.Command == cli.CommandRecord:
		return r.commandRecord(ctx, cfgLoaded.Config, parsed.OutPath, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	inputs, err := audio.ListInputs(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(inputs) == 0 {
		fmt.Fprintln(r.Stdout, "no audio inputs found")
		return 1
	}

	for _, input := range inputs {
		defaultMark := " "
		if input.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !input.Available {
			availability = "no"
		}
		muted := "no"
		if input.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			input.ID,
			input.Description,
			input.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, fsm.StateIdle)
		return 0
	}

	resp, err := ipc.Forward(ctx, socketPath, ipc.CommandStatus, forwardTimeout)
	if errors.Is(err, ipc.ErrNoOwner) {
		fmt.Fprintln(r.Stdout, fsm.StateIdle)
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		fmt.Fprintln(r.Stdout, fsm.StateIdle)
		return 0
	}

	fmt.Fprintln(r.Stdout, resp.State)
	fmt.Fprintf(r.Stdout, "elapsed: %s\n", formatElapsed(resp.ElapsedSeconds))
	if text := strings.TrimSpace(resp.Transcript); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, err := ipc.Forward(ctx, socketPath, command, forwardTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintf(r.Stdout, "%s (%s)\n", resp.Message, resp.State)
	}
	return 0
}

// commandRecord owns one session from socket acquisition to handoff.
func (r Runner) commandRecord(ctx context.Context, cfg config.Config, out string, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: 180 * time.Millisecond,
		Retries:      8,
		OnStale: func(path string) {
			logger.Warn("removed stale control socket", "path", path)
		},
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a dictum session is already recording")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = owner.Close() }()

	parts, err := pipeline.Build(cfg, out, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("build pipeline failed", "error", err.Error())
		return 1
	}
	defer func() { _ = parts.Close() }()

	metrics := telemetry.Noop()
	tel, err := telemetry.Setup(ctx, serviceName, version.Version, logger)
	if err != nil {
		logger.Warn("telemetry unavailable", "error", err.Error())
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = tel.Shutdown(shutdownCtx)
		}()
		if instruments, ierr := telemetry.NewInstruments(tel.Meter()); ierr == nil {
			metrics = instruments
		}
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	if tel != nil {
		go func() {
			if serveErr := tel.Serve(serverCtx, cfg.Metrics.Listen); serveErr != nil {
				logger.Warn("metrics endpoint failed", "error", serveErr.Error())
			}
		}()
	}

	cues := cue.New(cfg.Cues.Enable, cfg.Cues.Volume, logger)
	sess := session.New(parts.Capture, parts.Engine, session.Options{
		ID:          parts.ID,
		Destination: parts.Destination,
		Watchdog:    parts.Watchdog,
		Logger:      logger,
		Observer:    cues,
		Metrics:     metrics,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, owner, sess)
	}()

	if err := sess.Start(ctx); err != nil {
		serverCancel()
		<-serverErrCh
		cues.Wait()
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session start failed", "session", sess.ID(), "error", err.Error())
		return 1
	}
	fmt.Fprintf(r.Stderr, "recording %s (session %s)\n", parts.Destination, sess.ID())
	stopProgress := r.startProgress(ctx, sess)

	select {
	case <-sess.Done():
	case <-ctx.Done():
		if stopErr := sess.Stop(); stopErr != nil {
			logger.Warn("stop on signal", "error", stopErr.Error())
		}
		<-sess.Done()
	}
	stopProgress()

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		logger.Warn("ipc server failed", "error", serverErr.Error())
	}

	snap := sess.Snapshot()
	logSessionResult(logger, snap)

	exitCode := 0
	runner := handoff.New(cfg.Handoff.Command.Argv, time.Duration(cfg.Handoff.TimeoutMS)*time.Millisecond, logger)
	if err := runner.Run(context.Background(), snap); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("handoff failed", "session", snap.ID, "error", err.Error())
		exitCode = 1
	}

	if text := strings.TrimSpace(snap.Transcript); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	if snap.AudioPath != "" {
		fmt.Fprintf(r.Stderr, "audio: %s\n", snap.AudioPath)
	}
	if snap.State == fsm.StateDiscarded {
		fmt.Fprintln(r.Stderr, "discarded")
	}
	cues.Wait()

	if snap.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", snap.Err)
		return 1
	}
	return exitCode
}

func logSessionResult(logger *slog.Logger, snap session.Snapshot) {
	if logger == nil {
		return
	}
	fields := []any{
		"session", snap.ID,
		"state", snap.State,
		"elapsed_ms", snap.Elapsed.Milliseconds(),
		"segments", len(snap.Segments),
		"transcript_length", len(snap.Transcript),
		"audio_path", snap.AudioPath,
	}

	if snap.Err != nil {
		logger.Error("session failed", append(fields, "error", snap.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// formatElapsed renders whole seconds as m:ss.
func formatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
