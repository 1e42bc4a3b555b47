// Package doctor runs runtime readiness diagnostics for config, tools, audio, and engines.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ditado/ditado/internal/audio"
	"github.com/ditado/ditado/internal/config"
	"github.com/ditado/ditado/internal/history"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkCommand(cfg.Config.ClipboardArgv, "clipboard_cmd"))

	if cfg.Config.Paste.Enable {
		if len(cfg.Config.PasteArgv) > 0 {
			checks = append(checks, checkCommand(cfg.Config.PasteArgv, "paste_cmd"))
		} else {
			checks = append(checks, checkBinary("hyprctl", "default paste path requires hyprctl"))
		}
	}

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkRemote(cfg.Config.Remote))
	checks = append(checks, checkProbeTarget(cfg.Config.Probe))
	checks = append(checks, checkLocalEngine(cfg.Config.Local)...)
	if cfg.Config.History.Enable {
		checks = append(checks, checkHistoryPath(cfg.Config.History))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkRemote validates endpoint shape and credential availability, without
// spending a request against the remote API.
func checkRemote(cfg config.RemoteConfig) Check {
	parsed, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Check{Name: "remote.base_url", Pass: false, Message: fmt.Sprintf("not an http(s) URL: %q", cfg.BaseURL)}
	}
	if strings.TrimSpace(os.Getenv(cfg.APIKeyEnv)) == "" {
		return Check{
			Name:    "remote.credentials",
			Pass:    false,
			Message: fmt.Sprintf("environment variable %s is not set; remote engine will reject requests", cfg.APIKeyEnv),
		}
	}
	return Check{Name: "remote.credentials", Pass: true, Message: fmt.Sprintf("endpoint %s with %s set", cfg.BaseURL, cfg.APIKeyEnv)}
}

// checkProbeTarget performs one reachability dial using the probe settings.
func checkProbeTarget(cfg config.ProbeConfig) Check {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	conn, err := net.DialTimeout("tcp", cfg.Target, timeout)
	if err != nil {
		return Check{Name: "probe.target", Pass: false, Message: fmt.Sprintf("dial %s failed: %v", cfg.Target, err)}
	}
	_ = conn.Close()
	return Check{Name: "probe.target", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.Target)}
}

// checkHistoryPath resolves the history database location and verifies its
// parent directory can be created.
func checkHistoryPath(cfg config.HistoryConfig) Check {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		resolved, err := history.DefaultPath()
		if err != nil {
			return Check{Name: "history.path", Pass: false, Message: err.Error()}
		}
		path = resolved
	}
	path = config.ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Check{Name: "history.path", Pass: false, Message: fmt.Sprintf("create %s: %v", filepath.Dir(path), err)}
	}
	return Check{Name: "history.path", Pass: true, Message: path}
}

// checkLocalEngine verifies the sidecar binary and model file exist on disk.
func checkLocalEngine(cfg config.LocalConfig) []Check {
	checks := make([]Check, 0, 2)

	binary := strings.TrimSpace(cfg.ServerBinary)
	if strings.Contains(binary, string(os.PathSeparator)) {
		if _, err := os.Stat(binary); err != nil {
			checks = append(checks, Check{Name: "local.server_binary", Pass: false, Message: fmt.Sprintf("stat %s: %v", binary, err)})
		} else {
			checks = append(checks, Check{Name: "local.server_binary", Pass: true, Message: fmt.Sprintf("found %s", binary)})
		}
	} else {
		checks = append(checks, checkBinary(binary, "local engine sidecar"))
	}

	model := strings.TrimSpace(cfg.ModelPath)
	if info, err := os.Stat(config.ExpandHome(model)); err != nil {
		checks = append(checks, Check{Name: "local.model_path", Pass: false, Message: fmt.Sprintf("stat %s: %v", model, err)})
	} else {
		checks = append(checks, Check{Name: "local.model_path", Pass: true, Message: fmt.Sprintf("%s (%d bytes)", model, info.Size())})
	}

	return checks
}
