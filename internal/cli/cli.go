// Package cli parses the dictum command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRecord  Command = "record"
	CommandPause   Command = "pause"
	CommandResume  Command = "resume"
	CommandStop    Command = "stop"
	CommandDiscard Command = "discard"
	CommandStatus  Command = "status"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

type commandInfo struct {
	name    Command
	summary string
	// forwarded commands are served by the recording process over the
	// control socket.
	forwarded bool
}

// commands is ordered as printed in the help text.
var commands = []commandInfo{
	{CommandRecord, "Record and transcribe until stopped or discarded", false},
	{CommandPause, "Pause the active recording", true},
	{CommandResume, "Resume a paused recording", true},
	{CommandStop, "Stop the active recording and keep the audio file", true},
	{CommandDiscard, "Stop the active recording and delete its audio", true},
	{CommandStatus, "Print state, elapsed time, and transcript so far", true},
	{CommandDevices, "List available input devices", false},
	{CommandDoctor, "Run configuration and environment checks", false},
	{CommandVersion, "Print version information", false},
	{CommandHelp, "Show this help", false},
}

func lookup(name string) (commandInfo, bool) {
	for _, info := range commands {
		if string(info.name) == name {
			return info, true
		}
	}
	return commandInfo{}, false
}

// Forwarded reports whether the command is sent to the recording process.
func (c Command) Forwarded() bool {
	info, ok := lookup(string(c))
	return ok && info.forwarded
}

type Parsed struct {
	Command    Command
	ConfigPath string
	OutPath    string
	ShowHelp   bool
}

// Parse accepts global flags before a single command. Path flags take their
// value either as the next argument or after "=".
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	sawCommand := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if sawCommand {
			return Parsed{}, fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}

		if !strings.HasPrefix(arg, "-") {
			info, ok := lookup(arg)
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			parsed.Command = info.name
			parsed.ShowHelp = info.name == CommandHelp
			sawCommand = true
			continue
		}

		flag, value, hasValue := strings.Cut(arg, "=")
		switch flag {
		case "-h", "--help":
			parsed.Command = CommandHelp
			parsed.ShowHelp = true
		case "--version":
			parsed.Command = CommandVersion
			parsed.ShowHelp = false
		case "--config", "--out":
			if !hasValue {
				i++
				if i >= len(args) {
					return Parsed{}, fmt.Errorf("%s requires a path", flag)
				}
				value = args[i]
			}
			if strings.TrimSpace(value) == "" {
				return Parsed{}, fmt.Errorf("%s requires a path", flag)
			}
			if flag == "--config" {
				parsed.ConfigPath = value
			} else {
				parsed.OutPath = value
			}
		default:
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if parsed.OutPath != "" && parsed.Command != CommandRecord {
		return Parsed{}, errors.New("--out only applies to record")
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [--config PATH] [--out PATH] <command>\n\nCommands:\n", binaryName)
	for _, info := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", info.name, info.summary)
	}
	b.WriteString(`
Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/dictum/config.jsonc)
  --out PATH      Recording path for record (extension picks flac or wav)
  -h, --help      Show help
  --version       Show version
`)
	return b.String()
}
