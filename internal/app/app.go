// Package app wires configuration, engines, and IPC into runnable commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/ditado/ditado/internal/audio"
	"github.com/ditado/ditado/internal/audiofile"
	"github.com/ditado/ditado/internal/cli"
	"github.com/ditado/ditado/internal/config"
	"github.com/ditado/ditado/internal/doctor"
	"github.com/ditado/ditado/internal/history"
	"github.com/ditado/ditado/internal/ipc"
	"github.com/ditado/ditado/internal/localengine"
	"github.com/ditado/ditado/internal/logging"
	"github.com/ditado/ditado/internal/netprobe"
	"github.com/ditado/ditado/internal/notify"
	"github.com/ditado/ditado/internal/output"
	"github.com/ditado/ditado/internal/pipeline"
	"github.com/ditado/ditado/internal/remote"
	"github.com/ditado/ditado/internal/routing"
	"github.com/ditado/ditado/internal/session"
	"github.com/ditado/ditado/internal/transcript"
	"github.com/ditado/ditado/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("ditado"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("ditado"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	if parsed.Policy != "" {
		if _, err := routing.ParsePolicy(parsed.Policy); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 2
		}
		cfgLoaded.Config.Routing.Policy = parsed.Policy
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"policy", cfgLoaded.Config.Routing.Policy,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, "stop")
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, "cancel")
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded, parsed.Language, logger)
	case cli.CommandTranscribe:
		return r.commandTranscribeFile(ctx, cfgLoaded.Config, parsed.AudioFile, parsed.Language, logger)
	case cli.CommandHistory:
		return r.commandHistory(ctx, cfgLoaded.Config)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// engines bundles the routing collaborators that share a lifecycle.
type engines struct {
	router *routing.Router
	probe  *netprobe.Probe
	local  *localengine.Handle
}

// buildEngines constructs the remote client, local handle, and probe, and
// starts background probing. Callers must Close when done.
func buildEngines(cfg config.Config, onChange func(online bool), logger *slog.Logger) *engines {
	remoteClient := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Model:   cfg.Remote.Model,
		APIKey:  os.Getenv(cfg.Remote.APIKeyEnv),
		Timeout: cfg.Remote.Timeout(),
	})

	ladder := cfg.Local.Ladder
	if len(ladder) == 0 {
		ladder = localengine.DefaultLadder()
	}
	loader := localengine.NewSidecarLoader(localengine.SidecarConfig{
		Binary:         cfg.Local.ServerBinary,
		ModelPath:      config.ExpandHome(cfg.Local.ModelPath),
		ListenAddr:     cfg.Local.ListenAddr,
		HealthPath:     cfg.Local.HealthPath,
		StartupTimeout: cfg.Local.StartupTimeout(),
		InferTimeout:   cfg.Local.InferTimeout(),
	}, logger)
	local := localengine.NewHandle(ladder, loader, logger)

	probe := netprobe.New(netprobe.Config{
		Target:   cfg.Probe.Target,
		Interval: cfg.Probe.Interval(),
		Timeout:  cfg.Probe.Timeout(),
		OnChange: onChange,
	}, logger)
	probe.Start()

	return &engines{
		router: routing.NewRouter(remoteClient, local, probe, logger),
		probe:  probe,
		local:  local,
	}
}

// Close stops probing and releases any loaded local engine.
func (e *engines) Close() {
	e.probe.Stop()
	_ = e.local.Close()
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active ditado session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandToggle(ctx context.Context, loaded config.Loaded, language string, logger *slog.Logger) int {
	cfg := loaded.Config

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "toggle")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, "toggle")
			if forwardErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", forwardErr)
				return 1
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	notifier := notify.New(cfg.Notify.AppName, cfg.Notify.Enable, logger)
	eng := buildEngines(cfg, func(online bool) {
		notifyCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		notifier.ConnectivityChanged(notifyCtx, online)
	}, logger)
	defer eng.Close()

	transcriber := pipeline.NewTranscriber(cfg, eng.router, logger)
	transcriber.Language = language
	committer := output.NewCommitter(cfg, logger)
	controller := session.NewController(logger, transcriber, committer, notifier)
	controller.EngineStatus = func() string {
		return string(eng.local.Status().State)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	if loaded.Exists {
		go func() {
			_ = config.Watch(serverCtx, loaded.Path, logger, func(reloaded config.Loaded) {
				transcriber.UpdateConfig(reloaded.Config)
			})
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}

	r.recordHistory(ctx, cfg, history.Session{
		RequestID:    result.RequestID,
		Transcript:   strings.TrimSpace(result.Transcript),
		Engine:       result.Engine,
		Fallback:     result.Fallback,
		AudioSeconds: result.AudioSeconds,
		ElapsedMS:    result.Elapsed.Milliseconds(),
		Source:       "live",
	}, logger)

	if strings.TrimSpace(result.Transcript) != "" {
		fmt.Fprintln(r.Stdout, strings.TrimSpace(result.Transcript))
	}

	return 0
}

func (r Runner) commandTranscribeFile(ctx context.Context, cfg config.Config, path, language string, logger *slog.Logger) int {
	info, err := audiofile.Validate(config.ExpandHome(path))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	policy, err := routing.ParsePolicy(cfg.Routing.Policy)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	eng := buildEngines(cfg, nil, logger)
	defer eng.Close()

	req := routing.NewRequest(info.Path, policy)
	req.Duration = info.Duration
	req.SizeBytes = info.SizeBytes
	req.Language = language
	req.Prompt = config.BuildPrompt(cfg.Glossary)

	result, err := eng.router.Transcribe(ctx, req)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("file transcription failed", "request_id", req.ID, "error", err.Error())
		return 1
	}

	text := transcript.Assemble([]string{result.Text}, transcript.Options{
		CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
	})

	logger.Info("file transcription complete",
		"request_id", result.RequestID,
		"engine", string(result.Engine),
		"fallback", result.Fallback,
		"elapsed_ms", result.Elapsed.Milliseconds(),
		"transcript_length", len(text),
	)

	r.recordHistory(ctx, cfg, history.Session{
		RequestID:    result.RequestID,
		Transcript:   text,
		Engine:       string(result.Engine),
		Fallback:     result.Fallback,
		AudioSeconds: info.Duration.Seconds(),
		ElapsedMS:    result.Elapsed.Milliseconds(),
		Source:       "file",
	}, logger)

	fmt.Fprintln(r.Stdout, text)
	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.Config) int {
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.Recent(ctx, 20)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(r.Stdout, "no history yet")
		return 0
	}

	for _, s := range sessions {
		engine := s.Engine
		if s.Fallback {
			engine += " (fallback)"
		}
		fmt.Fprintf(r.Stdout, "%s  %-18s %s\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			engine,
			s.Transcript,
		)
	}
	return 0
}

// recordHistory best-effort persists a committed session when enabled.
func (r Runner) recordHistory(ctx context.Context, cfg config.Config, entry history.Session, logger *slog.Logger) {
	if !cfg.History.Enable || strings.TrimSpace(entry.Transcript) == "" {
		return
	}

	store, err := openHistory(cfg)
	if err != nil {
		logger.Warn("history unavailable", "error", err.Error())
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.Record(ctx, entry); err != nil {
		logger.Warn("history record failed", "error", err.Error())
	}
}

// openHistory resolves the configured or default database path.
func openHistory(cfg config.Config) (*history.Store, error) {
	path := strings.TrimSpace(cfg.History.Path)
	if path == "" {
		resolved, err := history.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return history.Open(config.ExpandHome(path))
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"audio_seconds", result.AudioSeconds,
		"transcript_length", len(result.Transcript),
		"request_id", result.RequestID,
		"engine", result.Engine,
		"fallback", result.Fallback,
		"routing_elapsed_ms", result.Elapsed.Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
