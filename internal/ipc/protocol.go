// Package ipc carries dictum control commands over a unix socket as
// newline-delimited JSON.
package ipc

// Commands served by the recording owner.
const (
	CommandStatus  = "status"
	CommandPause   = "pause"
	CommandResume  = "resume"
	CommandStop    = "stop"
	CommandDiscard = "discard"
)

// maxRequestBytes bounds one request line.
const maxRequestBytes = 4 << 10

type Request struct {
	Command string `json:"command"`
}

// Response reports the command outcome and the session snapshot after it.
type Response struct {
	OK             bool   `json:"ok"`
	State          string `json:"state,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	AudioPath      string `json:"audio_path,omitempty"`
}
