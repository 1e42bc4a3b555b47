package routing

import "fmt"

// RemoteErrorKind classifies a remote API failure. Only network-kind
// failures are eligible for local fallback under the auto policy; the rest
// indicate account or service misconfiguration that a different engine
// would silently mask.
type RemoteErrorKind string

const (
	RemoteNetwork RemoteErrorKind = "network"
	RemoteAuth    RemoteErrorKind = "auth"
	RemoteQuota   RemoteErrorKind = "quota"
	RemoteService RemoteErrorKind = "service"
)

// RemoteError wraps one classified remote transcription failure.
type RemoteError struct {
	Kind RemoteErrorKind
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote transcription (%s): %v", e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// FallbackEligible reports whether the auto policy may retry this failure
// on the local engine.
func (e *RemoteError) FallbackEligible() bool {
	return e.Kind == RemoteNetwork
}

// InitErrorKind classifies a local engine initialization failure.
type InitErrorKind string

const (
	InitHardwareUnavailable InitErrorKind = "hardware_unavailable"
	InitConfigInvalid       InitErrorKind = "config_invalid"
	InitResourceExhausted   InitErrorKind = "resource_exhausted"
	// InitLadderExhausted means every configured capability failed; the
	// local engine stays failed for the rest of the process lifetime.
	InitLadderExhausted InitErrorKind = "ladder_exhausted"
)

// InitError wraps a local engine startup failure.
type InitError struct {
	Kind InitErrorKind
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("local engine init (%s): %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// InferError wraps a single local inference failure. It does not invalidate
// the engine's Ready state.
type InferError struct {
	Err error
}

func (e *InferError) Error() string {
	return fmt.Sprintf("local inference: %v", e.Err)
}

func (e *InferError) Unwrap() error { return e.Err }

// RouteError is the composite failure surfaced when the auto policy
// attempted the remote engine, fell back, and the local engine failed too.
// Both causes are preserved so the caller can render an actionable message.
type RouteError struct {
	RemoteErr error
	LocalErr  error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("all engines failed: remote: %v; local fallback: %v", e.RemoteErr, e.LocalErr)
}

func (e *RouteError) Unwrap() []error {
	return []error{e.RemoteErr, e.LocalErr}
}
