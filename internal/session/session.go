// Package session coordinates dictation lifecycle state, actions, and commit flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ditado/ditado/internal/fsm"
	"github.com/ditado/ditado/internal/ipc"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State         fsm.State
	Transcript    string
	Cancelled     bool
	Err           error
	RequestID     string
	Engine        string
	Fallback      bool
	AudioDevice   string
	BytesCaptured int64
	AudioSeconds  float64
	Elapsed       time.Duration
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Notifier is the session-facing subset of desktop notification behavior.
type Notifier interface {
	Recording(context.Context)
	Transcribing(context.Context)
	Committed(ctx context.Context, engine string, fallback bool)
	Error(context.Context, string)
	Hide(context.Context)
}

// noopNotifier preserves session flow when no notifier is wired.
type noopNotifier struct{}

func (noopNotifier) Recording(context.Context)               {}
func (noopNotifier) Transcribing(context.Context)            {}
func (noopNotifier) Committed(context.Context, string, bool) {}
func (noopNotifier) Error(context.Context, string)           {}
func (noopNotifier) Hide(context.Context)                    {}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	logger     *slog.Logger
	transcribe Transcriber
	commit     Committer
	notifier   Notifier

	// EngineStatus optionally describes the local engine lifecycle for
	// status responses. Set before Run.
	EngineStatus func() string

	mu    sync.RWMutex
	state fsm.State

	actions chan action
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	transcriber Transcriber,
	committer Committer,
	notifier Notifier,
) *Controller {
	if transcriber == nil {
		transcriber = PlaceholderTranscriber{}
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Controller{
		logger:     logger,
		transcribe: transcriber,
		commit:     committer,
		notifier:   notifier,
		state:      fsm.StateIdle,
		actions:    make(chan action, 1),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run executes one owner lifecycle from start to stop/cancel/failure completion.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(fsm.EventStart); err != nil {
		return c.finish(result, err)
	}

	c.notifier.Recording(ctx)

	if err := c.transcribe.Start(ctx); err != nil {
		c.notifier.Error(ctx, "Unable to start recording")
		c.toErrorAndReset()
		return c.finish(result, err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.notifier.Hide(cleanupCtx)
	}()

	select {
	case <-ctx.Done():
		_ = c.transcribe.Cancel(context.Background())
		c.notifier.Error(context.Background(), "Cancelled")
		c.toErrorAndReset()
		return c.finish(result, ctx.Err())
	case a := <-c.actions:
		switch a {
		case actionCancel:
			_ = c.transcribe.Cancel(context.Background())
			_ = c.transition(fsm.EventCancel)
			result.Cancelled = true
			return c.finish(result, nil)
		case actionStop:
			if err := c.transition(fsm.EventStop); err != nil {
				c.toErrorAndReset()
				return c.finish(result, err)
			}
			c.notifier.Transcribing(ctx)

			stopResult, err := c.transcribe.StopAndTranscribe(ctx)
			result.RequestID = stopResult.RequestID
			result.Engine = stopResult.Engine
			result.Fallback = stopResult.Fallback
			result.AudioDevice = stopResult.AudioDevice
			result.BytesCaptured = stopResult.BytesCaptured
			result.AudioSeconds = stopResult.AudioSeconds
			result.Elapsed = stopResult.Elapsed
			if err != nil {
				c.notifier.Error(context.Background(), "Transcription failed")
				c.toErrorAndReset()
				return c.finish(result, err)
			}

			result.Transcript = stopResult.Transcript
			if strings.TrimSpace(stopResult.Transcript) == "" {
				c.notifier.Error(context.Background(), "No speech detected")
				c.toErrorAndReset()
				return c.finish(result, ErrEmptyTranscript)
			}

			if err := c.commit.Commit(ctx, stopResult.Transcript); err != nil {
				c.notifier.Error(context.Background(), "Output dispatch failed")
				c.toErrorAndReset()
				return c.finish(result, err)
			}
			c.notifier.Committed(context.Background(), stopResult.Engine, stopResult.Fallback)

			if err := c.transition(fsm.EventTranscribed); err != nil {
				return c.finish(result, err)
			}
			return c.finish(result, nil)
		default:
			c.toErrorAndReset()
			return c.finish(result, fmt.Errorf("unknown action %d", a))
		}
	}
}

// finish stamps the terminal fields shared by every Run exit path.
func (c *Controller) finish(result Result, err error) Result {
	result.State = c.State()
	result.Err = err
	result.FinishedAt = time.Now()
	return result
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		message := "status"
		if c.EngineStatus != nil {
			message = "status, local engine " + c.EngineStatus()
		}
		return ipc.Response{OK: true, State: string(c.State()), Message: message}
	case "toggle":
		return c.requestStop("toggle")
	case "stop":
		return c.requestStop("stop")
	case "cancel":
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestStop enqueues a stop action when state permits it.
func (c *Controller) requestStop(source string) ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing {
		return ipc.Response{OK: false, State: string(state), Error: "already transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when state permits it.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing {
		return ipc.Response{OK: false, State: string(state), Error: "cannot cancel while transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

// IsPipelineUnavailable reports whether an error represents missing pipeline wiring.
func IsPipelineUnavailable(err error) bool {
	return errors.Is(err, ErrPipelineUnavailable)
}
