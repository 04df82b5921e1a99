package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSONCConfig(t *testing.T) {
	input := `
{
  // capture
  "audio": {"input": "Elgato", "fallback": "default"},
  "recording": {"dir": "/srv/takes", "format": "wav"},
  "asr": {
    "engine": "deepgram",
    "model": "nova-3",
    "watchdog_ms": 5000,
  },
  "deepgram": {"env_file": "~/.config/dictum/.env"},
  "cues": {"enable": false, "volume": 0.5},
  "handoff": {"command": "notes-import --session \"clinic a\"", "timeout_ms": 2500},
  "metrics": {"listen": "127.0.0.1:9464"},
  "vocab": {
    "global": ["core", "team"],
    "sets": {
      "core": {"boost": 14, "phrases": ["Dictum", "Hyprland"]},
      "team": {"boost": 18, "phrases": ["Dictum", "Riva"]},
    },
  },
}
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, "/srv/takes", cfg.Recording.Dir)
	require.Equal(t, "wav", cfg.Recording.Format)
	require.Equal(t, EngineDeepgram, cfg.ASR.Engine)
	require.Equal(t, "nova-3", cfg.ASR.Model)
	require.Equal(t, 5000, cfg.ASR.WatchdogMS)
	require.Equal(t, "en-US", cfg.ASR.LanguageCode)
	require.Equal(t, "~/.config/dictum/.env", cfg.Deepgram.EnvFile)
	require.Equal(t, "DEEPGRAM_API_KEY", cfg.Deepgram.APIKeyEnv)
	require.False(t, cfg.Cues.Enable)
	require.Equal(t, 0.5, cfg.Cues.Volume)
	require.Equal(t, []string{"notes-import", "--session", "clinic a"}, cfg.Handoff.Command.Argv)
	require.Equal(t, 2500, cfg.Handoff.TimeoutMS)
	require.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	require.NotEmpty(t, warnings, "expected dedupe warning for repeated phrase")

	phrases, _, err := BuildSpeechPhrases(cfg)
	require.NoError(t, err)
	require.Len(t, phrases, 3)
	for _, p := range phrases {
		if p.Phrase == "Dictum" {
			require.Equal(t, float32(18), p.Boost)
		}
	}
}

func TestParseYAMLConfig(t *testing.T) {
	input := `
# capture
audio:
  input: Elgato
asr:
  engine: mock
  queue_frames: 32
riva:
  grpc: riva.lan:50051
handoff:
  command: notes-import --inbox
vocab:
  global: core
  sets:
    core:
      boost: 12
      phrases: [Dictum]
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.Equal(t, EngineMock, cfg.ASR.Engine)
	require.Equal(t, 32, cfg.ASR.QueueFrames)
	require.Equal(t, "riva.lan:50051", cfg.Riva.GRPC)
	require.Equal(t, "127.0.0.1:9000", cfg.Riva.HTTP)
	require.Equal(t, []string{"notes-import", "--inbox"}, cfg.Handoff.Command.Argv)
	require.Equal(t, []string{"core"}, cfg.Vocab.GlobalSets)
	require.Equal(t, VocabSet{Name: "core", Boost: 12, Phrases: []string{"Dictum"}}, cfg.Vocab.Sets["core"])
	require.Contains(t, warnings, Warning{Message: "asr.engine=mock produces synthetic transcripts"})
}

func TestParseYAMLGlobalList(t *testing.T) {
	cfg, _, err := Parse("vocab:\n  global: [a, b]\n  sets:\n    a: {phrases: [x]}\n    b: {phrases: [y]}\n", Default())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, cfg.Vocab.GlobalSets)
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`{"paste": {"enable": true}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")

	_, _, err = Parse("paste:\n  enable: true\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "yaml")
}

func TestParseYAMLRejectsMultipleDocuments(t *testing.T) {
	_, _, err := Parse("cues:\n  enable: false\n---\ncues:\n  enable: true\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple YAML documents")
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, _, err := Parse("   \n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseDoesNotMutateBase(t *testing.T) {
	base := Default()
	base.Vocab.Sets["keep"] = VocabSet{Name: "keep", Phrases: []string{"k"}}

	_, _, err := Parse(`{"vocab":{"sets":{"added":{"phrases":["a"]}}}}`, base)
	require.NoError(t, err)
	require.NotContains(t, base.Vocab.Sets, "added")
}

func TestParseValidationFailureSurfaces(t *testing.T) {
	_, _, err := Parse(`{"recording": {"format": "mp3"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "recording.format")
}
