package localengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ditado/ditado/internal/routing"
)

// SidecarConfig describes how to spawn and reach the whisper sidecar server.
type SidecarConfig struct {
	Binary         string
	ModelPath      string
	ListenAddr     string // host:port the sidecar binds
	HealthPath     string // readiness endpoint, e.g. /health
	StartupTimeout time.Duration
	InferTimeout   time.Duration
}

// SidecarLoader starts one whisper server process per successful Load.
// Loading the model is the resource-heavy step; a capability that cannot
// bring the server up is reported as a classified init failure so the
// handle can advance the ladder.
type SidecarLoader struct {
	cfg    SidecarConfig
	logger *slog.Logger
}

// NewSidecarLoader validates nothing up front; all checks happen per Load
// attempt so error classification stays next to the attempt that failed.
func NewSidecarLoader(cfg SidecarConfig, logger *slog.Logger) *SidecarLoader {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 45 * time.Second
	}
	if cfg.InferTimeout <= 0 {
		cfg.InferTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SidecarLoader{cfg: cfg, logger: logger}
}

// Load spawns the sidecar for one capability and waits for readiness.
func (l *SidecarLoader) Load(ctx context.Context, capability Capability) (Engine, error) {
	binary, err := exec.LookPath(l.cfg.Binary)
	if err != nil {
		return nil, &routing.InitError{
			Kind: routing.InitConfigInvalid,
			Err:  fmt.Errorf("sidecar binary %q not found: %w", l.cfg.Binary, err),
		}
	}
	if _, err := os.Stat(l.cfg.ModelPath); err != nil {
		return nil, &routing.InitError{
			Kind: routing.InitConfigInvalid,
			Err:  fmt.Errorf("model %q not readable: %w", l.cfg.ModelPath, err),
		}
	}

	host, port, ok := strings.Cut(l.cfg.ListenAddr, ":")
	if !ok {
		return nil, &routing.InitError{
			Kind: routing.InitConfigInvalid,
			Err:  fmt.Errorf("listen address %q is not host:port", l.cfg.ListenAddr),
		}
	}

	args := []string{
		"--model", l.cfg.ModelPath,
		"--host", host,
		"--port", port,
		"--device", capability.Device,
		"--compute-type", capability.Precision,
	}

	var stderr bytes.Buffer
	cmd := exec.Command(binary, args...)
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, &routing.InitError{
			Kind: routing.InitHardwareUnavailable,
			Err:  fmt.Errorf("start sidecar: %w", err),
		}
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	baseURL := "http://" + l.cfg.ListenAddr
	if err := l.awaitReady(ctx, baseURL, cmd, exited, &stderr); err != nil {
		return nil, err
	}

	l.logger.Info("sidecar ready",
		"capability", capability.String(),
		"addr", l.cfg.ListenAddr,
	)

	return &sidecarEngine{
		cmd:    cmd,
		exited: exited,
		url:    baseURL + "/inference",
		client: &http.Client{},
		infer:  l.cfg.InferTimeout,
	}, nil
}

// awaitReady polls the health endpoint until the server answers, the
// process dies, or the startup deadline passes.
func (l *SidecarLoader) awaitReady(ctx context.Context, baseURL string, cmd *exec.Cmd, exited chan error, stderr *bytes.Buffer) error {
	deadline := time.NewTimer(l.cfg.StartupTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	client := &http.Client{Timeout: 2 * time.Second}
	healthURL := baseURL + l.cfg.HealthPath

	for {
		select {
		case err := <-exited:
			return &routing.InitError{
				Kind: routing.InitHardwareUnavailable,
				Err:  fmt.Errorf("sidecar exited during startup: %v: %s", err, stderrTail(stderr)),
			}
		case <-deadline.C:
			killProcessGroup(cmd)
			<-exited
			return &routing.InitError{
				Kind: routing.InitResourceExhausted,
				Err:  fmt.Errorf("sidecar not ready within %s: %s", l.cfg.StartupTimeout, stderrTail(stderr)),
			}
		case <-ctx.Done():
			killProcessGroup(cmd)
			<-exited
			return &routing.InitError{
				Kind: routing.InitResourceExhausted,
				Err:  fmt.Errorf("sidecar startup abandoned: %w", ctx.Err()),
			}
		case <-tick.C:
			resp, err := client.Get(healthURL)
			if err != nil {
				continue
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// sidecarEngine is a ready sidecar process plus its inference endpoint.
type sidecarEngine struct {
	cmd    *exec.Cmd
	exited chan error
	url    string
	client *http.Client
	infer  time.Duration
}

// inferenceResponse mirrors the sidecar's JSON output.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio file and decodes the transcript. The handle
// serializes calls; the sidecar sees one request at a time.
func (e *sidecarEngine) Transcribe(ctx context.Context, req routing.Request) (routing.Transcript, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return routing.Transcript{}, fmt.Errorf("open audio %q: %w", req.AudioPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return routing.Transcript{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return routing.Transcript{}, fmt.Errorf("read audio: %w", err)
	}
	_ = writer.WriteField("response_format", "json")
	if req.Language != "" {
		_ = writer.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = writer.WriteField("prompt", req.Prompt)
	}
	if err := writer.Close(); err != nil {
		return routing.Transcript{}, fmt.Errorf("finish upload: %w", err)
	}

	inferCtx, cancel := context.WithTimeout(ctx, e.infer)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(inferCtx, http.MethodPost, e.url, &body)
	if err != nil {
		return routing.Transcript{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return routing.Transcript{}, fmt.Errorf("sidecar request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return routing.Transcript{}, fmt.Errorf("read sidecar response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return routing.Transcript{}, fmt.Errorf("sidecar http %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return routing.Transcript{}, fmt.Errorf("decode sidecar response: %w", err)
	}

	transcript := routing.Transcript{
		Text:     strings.TrimSpace(parsed.Text),
		Language: parsed.Language,
	}
	for _, segment := range parsed.Segments {
		transcript.Segments = append(transcript.Segments, strings.TrimSpace(segment.Text))
	}
	return transcript, nil
}

// Close terminates the sidecar process group.
func (e *sidecarEngine) Close() error {
	killProcessGroup(e.cmd)
	<-e.exited
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

func stderrTail(buf *bytes.Buffer) string {
	text := strings.TrimSpace(buf.String())
	if len(text) > 300 {
		text = text[len(text)-300:]
	}
	if text == "" {
		return "(no stderr output)"
	}
	return text
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
