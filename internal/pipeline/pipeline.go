// Package pipeline turns runtime config into the engine, capture device, and
// destination a session records with.
package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/dictum/internal/asr"
	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/config"
	"github.com/rbright/dictum/internal/deepgram"
	"github.com/rbright/dictum/internal/recording"
	"github.com/rbright/dictum/internal/riva"
	"github.com/rbright/dictum/internal/session"
)

// Pipeline holds the per-session backends built from config.
type Pipeline struct {
	ID          string
	Engine      asr.Engine
	Capture     *audio.Capture
	Destination string
	Format      recording.Format
	Watchdog    time.Duration

	debugFile *os.File
}

// Build resolves every backend for one session. out overrides the configured
// recording directory when non-empty.
func Build(cfg config.Config, out string, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pipeline{
		ID:       uuid.NewString(),
		Watchdog: time.Duration(cfg.ASR.WatchdogMS) * time.Millisecond,
	}

	destination, format, err := Destination(cfg, out, p.ID)
	if err != nil {
		return nil, err
	}
	p.Destination, p.Format = destination, format

	if cfg.Debug.EnableGRPCDump && cfg.ASR.Engine == config.EngineRiva {
		file, err := createDebugFile("grpc", "jsonl")
		if err != nil {
			return nil, err
		}
		p.debugFile = file
	}

	engine, err := p.newEngine(cfg, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Engine = engine

	p.Capture = audio.NewCapture(
		audio.Opener(cfg.Audio.Input, cfg.Audio.Fallback, logger),
		format,
		audio.WithLogger(logger),
	)
	return p, nil
}

// Close releases debug artifacts. The capture device is released by the
// session that owns it.
func (p *Pipeline) Close() error {
	if p.debugFile == nil {
		return nil
	}
	err := p.debugFile.Close()
	p.debugFile = nil
	return err
}

// DebugPath reports the gRPC dump file, if one was opened.
func (p *Pipeline) DebugPath() string {
	if p.debugFile == nil {
		return ""
	}
	return p.debugFile.Name()
}

func (p *Pipeline) newEngine(cfg config.Config, logger *slog.Logger) (asr.Engine, error) {
	switch cfg.ASR.Engine {
	case config.EngineRiva:
		phrases, _, err := config.BuildSpeechPhrases(cfg)
		if err != nil {
			return nil, fmt.Errorf("build speech contexts: %w", err)
		}
		rivaPhrases := make([]riva.SpeechPhrase, 0, len(phrases))
		for _, phrase := range phrases {
			rivaPhrases = append(rivaPhrases, riva.SpeechPhrase{Phrase: phrase.Phrase, Boost: phrase.Boost})
		}
		rc := riva.Config{
			Endpoint:             cfg.Riva.GRPC,
			LanguageCode:         cfg.ASR.LanguageCode,
			Model:                cfg.ASR.Model,
			AutomaticPunctuation: cfg.ASR.AutomaticPunctuation,
			SpeechPhrases:        rivaPhrases,
			DialTimeout:          time.Duration(cfg.Riva.DialTimeoutMS) * time.Millisecond,
			QueueFrames:          cfg.ASR.QueueFrames,
		}
		if p.debugFile != nil {
			rc.DebugResponses = p.debugFile
		}
		return riva.NewEngine(rc, logger), nil
	case config.EngineDeepgram:
		key, err := config.DeepgramAPIKey(cfg.Deepgram)
		if err != nil {
			return nil, err
		}
		return deepgram.NewEngine(deepgram.Config{
			Endpoint:     cfg.Deepgram.Endpoint,
			APIKey:       key,
			Model:        cfg.ASR.Model,
			LanguageCode: cfg.ASR.LanguageCode,
			Punctuate:    cfg.ASR.AutomaticPunctuation,
			QueueFrames:  cfg.ASR.QueueFrames,
		}, logger), nil
	case config.EngineMock:
		mock := asr.NewMock(logger)
		mock.QueueFrames = cfg.ASR.QueueFrames
		return mock, nil
	default:
		return nil, fmt.Errorf("unsupported asr.engine %q", cfg.ASR.Engine)
	}
}

// Destination picks the recording path and format. An explicit out path
// keeps its own extension when it names a supported format.
func Destination(cfg config.Config, out string, id string) (string, recording.Format, error) {
	format, err := recording.ParseFormat(cfg.Recording.Format)
	if err != nil {
		return "", "", err
	}

	if out = strings.TrimSpace(out); out != "" {
		out = config.ExpandPath(out)
		format = recording.FormatForPath(out, format)
		if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
			return "", "", fmt.Errorf("create recording dir: %w", err)
		}
		return out, format, nil
	}

	dir, err := config.RecordingDir(cfg)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("create recording dir: %w", err)
	}
	return session.DefaultDestination(dir, id, format), format, nil
}

// createDebugFile creates timestamped debug artifacts under state/dictum/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "dictum", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
