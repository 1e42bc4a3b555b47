// Package localengine owns lazy, at-most-once initialization of the local
// transcription engine, walking a hardware capability ladder until one
// configuration comes up. Ladder exhaustion is permanent for the process:
// hardware faults are not transient, so remediation is config change or
// restart, never a silent retry.
package localengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ditado/ditado/internal/routing"
)

// Capability is one device/precision configuration to attempt, in ladder
// order.
type Capability struct {
	Device    string `yaml:"device"`
	Precision string `yaml:"precision"`
}

func (c Capability) String() string {
	return c.Device + "-" + c.Precision
}

// DefaultLadder prefers accelerated float16, then accelerated int8, then a
// CPU int8 floor that should come up anywhere.
func DefaultLadder() []Capability {
	return []Capability{
		{Device: "cuda", Precision: "float16"},
		{Device: "cuda", Precision: "int8"},
		{Device: "cpu", Precision: "int8"},
	}
}

// State is the handle's lifecycle position. It moves Unloaded -> Loading ->
// Ready|Failed exactly once per process; Ready never regresses.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Status is a consistent snapshot of handle state for status/doctor output.
type Status struct {
	State      State
	Capability Capability // valid when State == StateReady
	Err        error      // valid when State == StateFailed
}

// Engine is a ready inference backend produced by a Loader.
type Engine interface {
	Transcribe(ctx context.Context, req routing.Request) (routing.Transcript, error)
	Close() error
}

// Loader initializes an engine for one capability. A classified
// *routing.InitError advances the ladder; success ends it.
type Loader interface {
	Load(ctx context.Context, capability Capability) (Engine, error)
}

// Handle memoizes one initialization attempt sequence and serializes
// inference calls, since the underlying engine handles one request at a
// time.
type Handle struct {
	ladder []Capability
	loader Loader
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	done       chan struct{}
	engine     Engine
	capability Capability
	initErr    *routing.InitError

	inferMu sync.Mutex
}

// NewHandle builds an unloaded handle. Nothing heavyweight happens until
// the first Transcribe or EnsureReady call.
func NewHandle(ladder []Capability, loader Loader, logger *slog.Logger) *Handle {
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handle{
		ladder: ladder,
		loader: loader,
		logger: logger,
		state:  StateUnloaded,
	}
}

// EnsureReady triggers the one-time ladder walk on first demand and blocks
// until it resolves. Concurrent first callers share a single attempt
// sequence; later calls return the memoized outcome immediately. A caller
// cancelling its context stops waiting but never aborts the shared
// initialization.
func (h *Handle) EnsureReady(ctx context.Context) (Capability, error) {
	h.mu.Lock()
	switch h.state {
	case StateReady:
		capability := h.capability
		h.mu.Unlock()
		return capability, nil
	case StateFailed:
		err := h.initErr
		h.mu.Unlock()
		return Capability{}, err
	case StateLoading:
		done := h.done
		h.mu.Unlock()
		return h.wait(ctx, done)
	default:
		h.state = StateLoading
		h.done = make(chan struct{})
		done := h.done
		h.mu.Unlock()

		go h.initialize()
		return h.wait(ctx, done)
	}
}

// Transcribe runs one inference, lazily initializing the engine on first
// use. While the handle is Failed it fails fast with the memoized init
// error; an inference failure surfaces as *routing.InferError and leaves
// Ready intact.
func (h *Handle) Transcribe(ctx context.Context, req routing.Request) (routing.Transcript, error) {
	if _, err := h.EnsureReady(ctx); err != nil {
		return routing.Transcript{}, err
	}

	h.mu.Lock()
	engine := h.engine
	h.mu.Unlock()

	h.inferMu.Lock()
	defer h.inferMu.Unlock()

	transcript, err := engine.Transcribe(ctx, req)
	if err != nil {
		var inferErr *routing.InferError
		if errors.As(err, &inferErr) {
			return routing.Transcript{}, err
		}
		return routing.Transcript{}, &routing.InferError{Err: err}
	}
	return transcript, nil
}

// Status reports the current lifecycle snapshot.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := Status{State: h.state}
	switch h.state {
	case StateReady:
		status.Capability = h.capability
	case StateFailed:
		status.Err = h.initErr
	}
	return status
}

// Close releases the engine if one was initialized. The handle is not
// usable afterwards.
func (h *Handle) Close() error {
	h.mu.Lock()
	engine := h.engine
	h.engine = nil
	h.mu.Unlock()

	if engine == nil {
		return nil
	}
	return engine.Close()
}

// wait blocks on the in-flight attempt or the caller's context, whichever
// resolves first.
func (h *Handle) wait(ctx context.Context, done chan struct{}) (Capability, error) {
	select {
	case <-done:
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.state == StateReady {
			return h.capability, nil
		}
		return Capability{}, h.initErr
	case <-ctx.Done():
		return Capability{}, ctx.Err()
	}
}

// initialize walks the ladder once, detached from any caller context so a
// cancelled waiter cannot corrupt shared state.
func (h *Handle) initialize() {
	var stepErrs []error

	for _, capability := range h.ladder {
		h.logger.Info("local engine init attempt", "capability", capability.String())

		engine, err := h.loader.Load(context.Background(), capability)
		if err == nil {
			h.mu.Lock()
			h.state = StateReady
			h.engine = engine
			h.capability = capability
			done := h.done
			h.mu.Unlock()

			h.logger.Info("local engine ready", "capability", capability.String())
			close(done)
			return
		}

		h.logger.Warn("local engine init step failed",
			"capability", capability.String(),
			"error", err.Error(),
		)
		stepErrs = append(stepErrs, fmt.Errorf("%s: %w", capability, err))
	}

	h.mu.Lock()
	h.state = StateFailed
	h.initErr = &routing.InitError{Kind: routing.InitLadderExhausted, Err: errors.Join(stepErrs...)}
	done := h.done
	h.mu.Unlock()

	h.logger.Error("local engine capability ladder exhausted", "attempts", len(h.ladder))
	close(done)
}
