// Package cli parses command-line arguments for the ditado binary.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandToggle     Command = "toggle"
	CommandStop       Command = "stop"
	CommandCancel     Command = "cancel"
	CommandStatus     Command = "status"
	CommandDevices    Command = "devices"
	CommandTranscribe Command = "transcribe"
	CommandHistory    Command = "history"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandToggle:     {},
	CommandStop:       {},
	CommandCancel:     {},
	CommandStatus:     {},
	CommandDevices:    {},
	CommandTranscribe: {},
	CommandHistory:    {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Policy     string
	Language   string
	AudioFile  string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	commandSeen := false
	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			value, next, err := flagValue(args, i, "--config")
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = value
			i = next
		case "--policy":
			value, next, err := flagValue(args, i, "--policy")
			if err != nil {
				return Parsed{}, err
			}
			parsed.Policy = value
			i = next
		case "--language":
			value, next, err := flagValue(args, i, "--language")
			if err != nil {
				return Parsed{}, err
			}
			parsed.Language = value
			i = next
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			if commandSeen {
				if parsed.Command == CommandTranscribe && parsed.AudioFile == "" {
					parsed.AudioFile = arg
					continue
				}
				return Parsed{}, fmt.Errorf("unexpected argument %q after command %q", arg, parsed.Command)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			commandSeen = true
		}
	}

	if parsed.Command == CommandTranscribe && parsed.AudioFile == "" {
		return Parsed{}, errors.New("transcribe requires an audio file argument")
	}

	return parsed, nil
}

// flagValue returns the value following a flag and the new loop index.
func flagValue(args []string, i int, flag string) (string, int, error) {
	if i+1 >= len(args) {
		return "", i, fmt.Errorf("%s requires a value", flag)
	}
	return args[i+1], i + 1, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--policy POLICY] [--language LANG] <command>

Commands:
  toggle            Start recording or stop+commit when already recording
  stop              Stop active recording and commit transcript
  cancel            Cancel active recording and discard transcript
  status            Print current state
  devices           List available input devices
  transcribe FILE   Transcribe an existing audio file and print the result
  history           Show recent transcription sessions
  doctor            Run configuration and environment checks
  version           Print version information
  help              Show this help

Flags:
  --config PATH     Config file path (default: $XDG_CONFIG_HOME/ditado/config.yaml)
  --policy POLICY   Override routing policy: auto, remote, or local
  --language LANG   Pin the recognition language (default: autodetect)
  -h, --help        Show help
  --version         Show version
`, binaryName)
}
