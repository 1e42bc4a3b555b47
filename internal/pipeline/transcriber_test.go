package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ditado/ditado/internal/audio"
	"github.com/ditado/ditado/internal/config"
	"github.com/ditado/ditado/internal/routing"
	"github.com/ditado/ditado/internal/session"
)

type fakeCapture struct {
	chunks     chan []byte
	raw        []byte
	bytes      int64
	stopCalled bool
}

func newFakeCapture(raw []byte) *fakeCapture {
	chunks := make(chan []byte)
	close(chunks)
	return &fakeCapture{chunks: chunks, raw: raw, bytes: int64(len(raw))}
}

func (f *fakeCapture) Stop() error {
	f.stopCalled = true
	return nil
}

func (f *fakeCapture) Chunks() <-chan []byte { return f.chunks }

func (f *fakeCapture) BytesCaptured() int64 { return f.bytes }

func (f *fakeCapture) RawPCM() []byte {
	out := make([]byte, len(f.raw))
	copy(out, f.raw)
	return out
}

type fakeRouter struct {
	result routing.Result
	err    error
	req    routing.Request
	called bool
}

func (f *fakeRouter) Transcribe(_ context.Context, req routing.Request) (routing.Result, error) {
	f.called = true
	f.req = req
	if f.err != nil {
		return routing.Result{}, f.err
	}
	result := f.result
	if result.RequestID == "" {
		result.RequestID = req.ID
	}
	return result, nil
}

func startedTranscriber(t *testing.T, cfg config.Config, capture *fakeCapture, router Router) *Transcriber {
	t.Helper()

	transcriber := NewTranscriber(cfg, router, nil)
	transcriber.selectDevice = func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{Device: audio.Device{ID: "mic-1", Description: "Mic"}}, nil
	}
	transcriber.startCapture = func(context.Context, audio.Device) (captureClient, error) {
		return capture, nil
	}

	require.NoError(t, transcriber.Start(context.Background()))
	return transcriber
}

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}

func TestPCMSeconds(t *testing.T) {
	require.Equal(t, 1.0, pcmSeconds(32000))
	require.Equal(t, 0.5, pcmSeconds(16000))
	require.Equal(t, 0.0, pcmSeconds(0))
}

func TestStartFailsWhenAlreadyStarted(t *testing.T) {
	transcriber := startedTranscriber(t, config.Default(), newFakeCapture(nil), &fakeRouter{})

	err := transcriber.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already started")
}

func TestStartFailsWhenDeviceSelectionFails(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), &fakeRouter{}, nil)
	transcriber.selectDevice = func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{}, errors.New("no audio input devices found")
	}
	transcriber.startCapture = func(context.Context, audio.Device) (captureClient, error) {
		t.Fatal("startCapture should not run when selection fails")
		return nil, nil
	}

	err := transcriber.Start(context.Background())
	require.Error(t, err)
	require.False(t, transcriber.started)
}

func TestStopAndTranscribeUnavailableWhenNotStarted(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), &fakeRouter{}, nil)

	result, err := transcriber.StopAndTranscribe(context.Background())
	require.ErrorIs(t, err, session.ErrPipelineUnavailable)
	require.Equal(t, session.StopResult{}, result)
}

func TestCancelWithoutInitializedPipeline(t *testing.T) {
	transcriber := NewTranscriber(config.Default(), &fakeRouter{}, nil)
	require.NoError(t, transcriber.Cancel(context.Background()))
}

func TestStopAndTranscribeSuccessPath(t *testing.T) {
	cfg := config.Default()
	cfg.Transcript.TrailingSpace = true
	cfg.Glossary.Keywords = []string{"kubernetes"}

	pcm := make([]byte, 32000) // one second of silence
	capture := newFakeCapture(pcm)
	router := &fakeRouter{result: routing.Result{
		Text:     "hello world",
		Engine:   routing.EngineRemote,
		Elapsed:  40 * time.Millisecond,
		Fallback: false,
	}}

	transcriber := startedTranscriber(t, cfg, capture, router)
	transcriber.Language = "en"

	result, err := transcriber.StopAndTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello world ", result.Transcript)
	require.Equal(t, "Mic (mic-1)", result.AudioDevice)
	require.Equal(t, int64(len(pcm)), result.BytesCaptured)
	require.Equal(t, 1.0, result.AudioSeconds)
	require.Equal(t, "remote", result.Engine)
	require.False(t, result.Fallback)
	require.NotEmpty(t, result.RequestID)
	require.True(t, capture.stopCalled)
	require.False(t, transcriber.started)

	require.True(t, router.called)
	require.Equal(t, routing.PolicyAuto, router.req.Policy)
	require.Equal(t, "en", router.req.Language)
	require.Contains(t, router.req.Prompt, "kubernetes")
	require.Equal(t, time.Second, router.req.Duration)
	require.Greater(t, router.req.SizeBytes, int64(len(pcm)))

	// The temp WAV is cleaned up after routing.
	_, statErr := os.Stat(router.req.AudioPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestStopAndTranscribeWavExistsDuringRouting(t *testing.T) {
	pcm := make([]byte, 640)
	capture := newFakeCapture(pcm)

	var sawFile bool
	transcriber := startedTranscriber(t, config.Default(), capture, nil)
	transcriber.router = routerFunc(func(_ context.Context, req routing.Request) (routing.Result, error) {
		_, err := os.Stat(req.AudioPath)
		sawFile = err == nil
		return routing.Result{RequestID: req.ID, Text: "ok", Engine: routing.EngineLocal}, nil
	})

	_, err := transcriber.StopAndTranscribe(context.Background())
	require.NoError(t, err)
	require.True(t, sawFile)
}

func TestStopAndTranscribeEmptyCaptureSkipsRouting(t *testing.T) {
	capture := newFakeCapture(nil)
	router := &fakeRouter{}
	transcriber := startedTranscriber(t, config.Default(), capture, router)

	result, err := transcriber.StopAndTranscribe(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Transcript)
	require.Equal(t, "Mic (mic-1)", result.AudioDevice)
	require.False(t, router.called)
}

func TestStopAndTranscribeFallbackFlagPropagates(t *testing.T) {
	capture := newFakeCapture(make([]byte, 640))
	router := &fakeRouter{result: routing.Result{
		Text:     "fell back",
		Engine:   routing.EngineLocal,
		Fallback: true,
	}}

	transcriber := startedTranscriber(t, config.Default(), capture, router)

	result, err := transcriber.StopAndTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "local", result.Engine)
	require.True(t, result.Fallback)
}

func TestStopAndTranscribeRouterErrorWrapped(t *testing.T) {
	capture := newFakeCapture(make([]byte, 640))
	router := &fakeRouter{err: errors.New("all engines failed")}

	transcriber := startedTranscriber(t, config.Default(), capture, router)

	result, err := transcriber.StopAndTranscribe(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "route transcription")
	require.NotEmpty(t, result.RequestID)
	require.Equal(t, "Mic (mic-1)", result.AudioDevice)
}

func TestStopAndTranscribeEncodeErrorWrapped(t *testing.T) {
	capture := newFakeCapture(make([]byte, 640))
	router := &fakeRouter{}

	transcriber := startedTranscriber(t, config.Default(), capture, router)
	transcriber.writeWAV = func(string, []byte, int, int) error {
		return errors.New("disk full")
	}

	_, err := transcriber.StopAndTranscribe(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "encode captured audio")
	require.False(t, router.called)
}

func TestStopAndTranscribeInvalidPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Routing.Policy = "sometimes"

	transcriber := startedTranscriber(t, cfg, newFakeCapture(make([]byte, 640)), &fakeRouter{})

	_, err := transcriber.StopAndTranscribe(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown routing policy")
}

func TestUpdateConfigAppliesAtStopTime(t *testing.T) {
	cfg := config.Default()
	cfg.Transcript.TrailingSpace = false

	router := &fakeRouter{result: routing.Result{Text: "hot reload", Engine: routing.EngineRemote}}
	transcriber := startedTranscriber(t, cfg, newFakeCapture(make([]byte, 640)), router)

	updated := cfg
	updated.Routing.Policy = "local"
	updated.Transcript.TrailingSpace = true
	transcriber.UpdateConfig(updated)

	result, err := transcriber.StopAndTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hot reload ", result.Transcript)
	require.Equal(t, routing.PolicyForceLocal, router.req.Policy)
}

func TestCancelStopsCaptureAndResetsState(t *testing.T) {
	capture := newFakeCapture([]byte{1, 2})
	transcriber := startedTranscriber(t, config.Default(), capture, &fakeRouter{})

	require.NoError(t, transcriber.Cancel(context.Background()))
	require.True(t, capture.stopCalled)
	require.False(t, transcriber.started)
	require.Nil(t, transcriber.capture)
}

type routerFunc func(ctx context.Context, req routing.Request) (routing.Result, error)

func (f routerFunc) Transcribe(ctx context.Context, req routing.Request) (routing.Result, error) {
	return f(ctx, req)
}
