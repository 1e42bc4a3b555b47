// Package pipeline owns the capture -> encode -> route -> transcript flow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ditado/ditado/internal/audio"
	"github.com/ditado/ditado/internal/audiofile"
	"github.com/ditado/ditado/internal/config"
	"github.com/ditado/ditado/internal/routing"
	"github.com/ditado/ditado/internal/session"
	"github.com/ditado/ditado/internal/transcript"
)

const (
	captureSampleRate = 16000
	captureChannels   = 1
)

// Router dispatches one request to a transcription engine.
type Router interface {
	Transcribe(ctx context.Context, req routing.Request) (routing.Result, error)
}

// captureClient is the subset of audio.Capture the pipeline drives.
type captureClient interface {
	Stop() error
	Chunks() <-chan []byte
	BytesCaptured() int64
	RawPCM() []byte
}

// Transcriber owns one end-to-end capture -> routing -> transcript instance.
type Transcriber struct {
	router Router
	logger *slog.Logger

	// Language optionally pins the recognition language for this instance.
	// Empty means engine autodetect.
	Language string

	mu        sync.Mutex
	cfg       config.Config
	started   bool
	selection audio.Selection
	capture   captureClient

	drained chan struct{}

	// Injection points for tests that cannot reach a Pulse server.
	selectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
	startCapture func(ctx context.Context, device audio.Device) (captureClient, error)
	writeWAV     func(path string, pcm []byte, sampleRate, channels int) error
}

// NewTranscriber constructs a pipeline transcriber from runtime config.
func NewTranscriber(cfg config.Config, router Router, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transcriber{
		router:       router,
		logger:       logger,
		cfg:          cfg,
		selectDevice: audio.SelectDevice,
		startCapture: func(ctx context.Context, device audio.Device) (captureClient, error) {
			return audio.StartCapture(ctx, device)
		},
		writeWAV: audiofile.WritePCM16,
	}
}

// Start resolves device selection and begins buffering microphone PCM.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("transcriber already started")
	}

	selection, err := t.selectDevice(ctx, t.cfg.Audio.Input, t.cfg.Audio.Fallback)
	if err != nil {
		return err
	}
	t.selection = selection
	if selection.Warning != "" {
		t.logger.Warn(selection.Warning)
	}

	capture, err := t.startCapture(ctx, selection.Device)
	if err != nil {
		return err
	}
	t.capture = capture

	// Capture publishes fixed-size chunks as well as the full buffer; the
	// chunk channel must be drained or the stream backpressures and stalls.
	t.drained = make(chan struct{})
	go drainChunks(capture, t.drained)

	t.started = true
	return nil
}

// StopAndTranscribe stops capture, encodes the buffered PCM, and routes the
// request through the configured engines.
func (t *Transcriber) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	t.mu.Lock()
	cfg := t.cfg
	started := t.started
	capture := t.capture
	selection := t.selection
	drained := t.drained
	t.resetLocked()
	t.mu.Unlock()

	if !started || capture == nil {
		return session.StopResult{}, session.ErrPipelineUnavailable
	}

	_ = capture.Stop()
	if drained != nil {
		<-drained
	}

	result := session.StopResult{
		AudioDevice:   describeDevice(selection.Device),
		BytesCaptured: capture.BytesCaptured(),
	}
	result.AudioSeconds = pcmSeconds(result.BytesCaptured)

	rawPCM := capture.RawPCM()
	if len(rawPCM) == 0 {
		return result, nil
	}

	policy, err := routing.ParsePolicy(cfg.Routing.Policy)
	if err != nil {
		return result, err
	}

	req := routing.NewRequest("", policy)
	wavPath := filepath.Join(os.TempDir(), "ditado-"+req.ID+".wav")
	if err := t.writeWAV(wavPath, rawPCM, captureSampleRate, captureChannels); err != nil {
		return result, fmt.Errorf("encode captured audio: %w", err)
	}
	defer os.Remove(wavPath)

	req.AudioPath = wavPath
	req.SizeBytes = wavFileSize(wavPath, rawPCM)
	req.Duration = time.Duration(pcmSeconds(int64(len(rawPCM))) * float64(time.Second))
	req.Language = t.Language
	req.Prompt = config.BuildPrompt(cfg.Glossary)

	routed, err := t.router.Transcribe(ctx, req)
	if err != nil {
		result.RequestID = req.ID
		return result, fmt.Errorf("route transcription: %w", err)
	}

	result.RequestID = routed.RequestID
	result.Engine = string(routed.Engine)
	result.Fallback = routed.Fallback
	result.Elapsed = routed.Elapsed
	result.Transcript = transcript.Assemble([]string{routed.Text}, transcript.Options{
		TrailingSpace:       cfg.Transcript.TrailingSpace,
		CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
	})
	return result, nil
}

// UpdateConfig swaps the active configuration. A session already recording
// picks up the new routing, glossary, and formatting values at stop time.
func (t *Transcriber) UpdateConfig(cfg config.Config) {
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
}

// Cancel stops capture and discards the buffered audio.
func (t *Transcriber) Cancel(_ context.Context) error {
	t.mu.Lock()
	capture := t.capture
	drained := t.drained
	t.resetLocked()
	t.mu.Unlock()

	if capture != nil {
		_ = capture.Stop()
	}
	if drained != nil {
		<-drained
	}
	return nil
}

// resetLocked clears per-session state; callers hold t.mu.
func (t *Transcriber) resetLocked() {
	t.started = false
	t.capture = nil
	t.drained = nil
}

// drainChunks consumes the capture chunk stream until it closes.
func drainChunks(capture captureClient, done chan<- struct{}) {
	defer close(done)
	for range capture.Chunks() {
	}
}

// pcmSeconds converts a 16kHz mono s16 byte count to seconds.
func pcmSeconds(bytes int64) float64 {
	return float64(bytes) / float64(captureSampleRate*captureChannels*2)
}

// wavFileSize returns the encoded file size, falling back to the PCM length.
func wavFileSize(path string, pcm []byte) int64 {
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}
	return int64(len(pcm))
}

// describeDevice formats device metadata for logs/session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
