package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return v != "" },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "handoff.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-bin")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-bin", "--arg"}, "handoff.command")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "handoff.command command is available")
}

func TestCheckRecordingDir(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.Dir = filepath.Join(t.TempDir(), "nested", "takes")

	check := checkRecordingDir(cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "flac recordings")

	entries, err := os.ReadDir(cfg.Recording.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCheckRecordingDirUnwritable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := config.Default()
	cfg.Recording.Dir = filepath.Join(blocker, "takes")
	check := checkRecordingDir(cfg)
	require.False(t, check.Pass)
}

func TestCheckRivaReadySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health/ready", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Riva.HTTP = strings.TrimPrefix(server.URL, "http://")

	check := checkRivaReady(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "ready at")
}

func TestCheckRivaReadyFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Riva.HTTP = strings.TrimPrefix(server.URL, "http://")

	check := checkRivaReady(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckRivaReadyPassesOnHTTP200NonReadyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("warming-up"))
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Riva.HTTP = strings.TrimPrefix(server.URL, "http://")

	check := checkRivaReady(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 200")
}

func TestCheckRivaReadyEmptyBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Riva.HTTP = ""

	check := checkRivaReady(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "riva.http is empty")
}

func TestCheckDeepgramKey(t *testing.T) {
	cfg := config.Default()
	cfg.Deepgram.APIKeyEnv = "DICTUM_DOCTOR_KEY"

	t.Setenv("DICTUM_DOCTOR_KEY", "")
	require.False(t, checkDeepgramKey(cfg).Pass)

	t.Setenv("DICTUM_DOCTOR_KEY", "abcd")
	check := checkDeepgramKey(cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "4 chars")
	require.NotContains(t, check.Message, "abcd")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Equal(t, "audio.input", check.Name)
}

func TestRunWithToneInputAndMockEngine(t *testing.T) {
	binDir := t.TempDir()
	fakeHandoff := filepath.Join(binDir, "fake-handoff")
	require.NoError(t, os.WriteFile(fakeHandoff, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cfg := config.Default()
	cfg.Audio.Input = audio.ToneInput
	cfg.ASR.Engine = config.EngineMock
	cfg.Recording.Dir = t.TempDir()
	cfg.Handoff.Command = config.CommandConfig{Raw: "fake-handoff", Argv: []string{"fake-handoff"}}

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg, Exists: true})
	require.True(t, report.OK(), report.String())

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "XDG_RUNTIME_DIR", "recording.dir", "audio.input", "fake-handoff", "asr.engine"}, names)
}
