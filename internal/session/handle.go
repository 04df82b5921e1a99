package session

import (
	"context"
	"fmt"

	"github.com/rbright/dictum/internal/ipc"
)

// Handle serves IPC commands for the owner process.
func (s *Session) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var err error
	switch req.Command {
	case ipc.CommandStatus:
		return response(s.Snapshot(), "status")
	case ipc.CommandPause:
		err = s.Pause()
	case ipc.CommandResume:
		err = s.Resume(ctx)
	case ipc.CommandStop:
		err = s.Stop()
	case ipc.CommandDiscard:
		err = s.Discard()
	default:
		snap := s.Snapshot()
		return ipc.Response{OK: false, State: string(snap.State), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}

	snap := s.Snapshot()
	if err != nil {
		resp := response(snap, "")
		resp.OK = false
		resp.Error = err.Error()
		return resp
	}
	return response(snap, req.Command)
}

func response(snap Snapshot, message string) ipc.Response {
	return ipc.Response{
		OK:             true,
		State:          string(snap.State),
		Message:        message,
		ElapsedSeconds: snap.ElapsedSeconds(),
		Transcript:     snap.Transcript,
		AudioPath:      snap.AudioPath,
	}
}
