package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ditado/ditado/internal/netprobe"
)

// RemoteClient is one bounded attempt against the remote transcription API.
type RemoteClient interface {
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// LocalEngine is the lazily initialized on-device engine.
type LocalEngine interface {
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// Reachability exposes the probe's latest verdict without blocking.
type Reachability interface {
	Current() netprobe.Snapshot
}

// Router dispatches each request to exactly one engine according to its
// policy, falling back remote->local at most once under PolicyAuto.
type Router struct {
	remote RemoteClient
	local  LocalEngine
	probe  Reachability
	logger *slog.Logger
}

// NewRouter wires the router's collaborators. The logger may be nil.
func NewRouter(remote RemoteClient, local LocalEngine, probe Reachability, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{remote: remote, local: local, probe: probe, logger: logger}
}

// Transcribe services one request. Exactly one engine produces the result;
// under PolicyAuto a remote network failure triggers a single local
// fallback, and any other remote failure surfaces immediately.
func (r *Router) Transcribe(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	switch req.Policy {
	case PolicyForceRemote:
		transcript, err := r.remote.Transcribe(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return r.result(req, transcript, EngineRemote, false, start), nil

	case PolicyForceLocal:
		transcript, err := r.local.Transcribe(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return r.result(req, transcript, EngineLocal, false, start), nil

	case PolicyAuto:
		return r.transcribeAuto(ctx, req, start)

	default:
		return Result{}, fmt.Errorf("unknown routing policy %q", req.Policy)
	}
}

// transcribeAuto trusts the probe's last verdict: remote-first only when the
// network looked reachable at call time, direct local otherwise. This bounds
// worst-case latency to one remote timeout plus one local inference.
func (r *Router) transcribeAuto(ctx context.Context, req Request, start time.Time) (Result, error) {
	snap := r.probe.Current()

	if snap.Verdict != netprobe.VerdictReachable {
		r.logger.Info("routing direct to local engine",
			"request_id", req.ID,
			"verdict", string(snap.Verdict),
		)
		transcript, err := r.local.Transcribe(ctx, req)
		if err != nil {
			return Result{}, err
		}
		return r.result(req, transcript, EngineLocal, false, start), nil
	}

	transcript, remoteErr := r.remote.Transcribe(ctx, req)
	if remoteErr == nil {
		return r.result(req, transcript, EngineRemote, false, start), nil
	}

	// The caller abandoning the request is not a reason to fall back.
	if ctx.Err() != nil {
		return Result{}, remoteErr
	}

	var re *RemoteError
	if !errors.As(remoteErr, &re) || !re.FallbackEligible() {
		return Result{}, remoteErr
	}

	r.logger.Warn("remote attempt failed, falling back to local engine",
		"request_id", req.ID,
		"remote_error", remoteErr.Error(),
	)

	transcript, localErr := r.local.Transcribe(ctx, req)
	if localErr != nil {
		return Result{}, &RouteError{RemoteErr: remoteErr, LocalErr: localErr}
	}
	return r.result(req, transcript, EngineLocal, true, start), nil
}

func (r *Router) result(req Request, transcript Transcript, engine Engine, fallback bool, start time.Time) Result {
	elapsed := time.Since(start)
	r.logger.Info("request routed",
		"request_id", req.ID,
		"policy", string(req.Policy),
		"engine", string(engine),
		"fallback", fallback,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return Result{
		RequestID: req.ID,
		Text:      transcript.Text,
		Engine:    engine,
		Elapsed:   elapsed,
		Fallback:  fallback,
	}
}
