package handoff

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/dictum/internal/fsm"
	"github.com/rbright/dictum/internal/session"
	"github.com/stretchr/testify/require"
)

func TestRunWritesTranscriptAndEnvironment(t *testing.T) {
	script := writeCaptureScript(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	r := New([]string{script, out}, time.Second, nil)
	require.True(t, r.Enabled())

	err := r.Run(context.Background(), session.Snapshot{
		ID:         "abc",
		State:      fsm.StateStopped,
		Elapsed:    7 * time.Second,
		Transcript: "hello\n\nworld.",
		AudioPath:  "/tmp/take.flac",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "/tmp/take.flac|abc|7\nhello\n\nworld.", string(data))
}

func TestRunSkipsDiscardedSessions(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	r := New([]string{writeCaptureScript(t), out}, time.Second, nil)

	require.NoError(t, r.Run(context.Background(), session.Snapshot{State: fsm.StateDiscarded}))
	_, err := os.Stat(out)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunWithoutCommandIsNoop(t *testing.T) {
	r := New(nil, 0, nil)
	require.False(t, r.Enabled())
	require.Equal(t, DefaultTimeout, r.timeout)
	require.NoError(t, r.Run(context.Background(), session.Snapshot{State: fsm.StateStopped}))
}

func TestRunReportsCommandFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho \"notes service offline\" >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	err := New([]string{path}, time.Second, nil).Run(context.Background(), session.Snapshot{State: fsm.StateStopped})
	require.Error(t, err)
	require.Contains(t, err.Error(), "notes service offline")
}

func TestRunTimesOut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\nexec sleep 5\n"), 0o755))

	started := time.Now()
	err := New([]string{path}, 100*time.Millisecond, nil).Run(context.Background(), session.Snapshot{State: fsm.StateStopped})
	require.Error(t, err)
	require.Less(t, time.Since(started), 3*time.Second)
}

func writeCaptureScript(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
printf '%s|%s|%s\n' "$DICTUM_AUDIO_PATH" "$DICTUM_SESSION_ID" "$DICTUM_ELAPSED_SECONDS" > "$1"
cat >> "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
