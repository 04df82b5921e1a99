package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/dictum/internal/session"
	"golang.org/x/term"
)

const progressInterval = 500 * time.Millisecond

// startProgress redraws one status line on an interactive stderr until the
// returned stop func is called.
func (r Runner) startProgress(ctx context.Context, sess *session.Session) func() {
	f, ok := r.Stderr.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range sess.Watch(ctx, progressInterval) {
			width, _, err := term.GetSize(int(f.Fd()))
			if err != nil {
				width = 80
			}
			fmt.Fprintf(f, "\r\033[K%s", progressLine(snap, width))
		}
		fmt.Fprint(f, "\r\033[K")
	}()

	return func() {
		cancel()
		<-done
	}
}

// progressLine renders state, elapsed time and the transcript tail in at
// most width columns.
func progressLine(snap session.Snapshot, width int) string {
	line := fmt.Sprintf("%s %s", snap.State, formatElapsed(snap.ElapsedSeconds()))
	text := strings.Join(strings.Fields(snap.Transcript), " ")
	if text == "" {
		return truncate(line, width)
	}

	room := width - len([]rune(line)) - 2
	if room <= 0 {
		return truncate(line, width)
	}
	runes := []rune(text)
	if len(runes) > room {
		runes = append([]rune("…"), runes[len(runes)-room+1:]...)
	}
	return line + "  " + string(runes)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	return string(runes[:width])
}
