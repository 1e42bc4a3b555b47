// Package routing decides, per request, whether transcription runs against
// the remote API or the local engine, and applies policy-driven fallback.
package routing

import "fmt"

// Policy selects how a single request is routed. It is fixed for the
// lifetime of that request.
type Policy string

const (
	// PolicyAuto picks the engine from the current reachability verdict and
	// falls back from remote to local on transient network failure.
	PolicyAuto Policy = "auto"
	// PolicyForceRemote always uses the remote API; failures surface as-is.
	PolicyForceRemote Policy = "remote"
	// PolicyForceLocal always uses the local engine; failures surface as-is.
	PolicyForceLocal Policy = "local"
)

// Engine identifies which backend actually serviced a request.
type Engine string

const (
	EngineRemote Engine = "remote"
	EngineLocal  Engine = "local"
)

// ParsePolicy converts a config/CLI string into a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(value) {
	case PolicyAuto, PolicyForceRemote, PolicyForceLocal:
		return Policy(value), nil
	default:
		return "", fmt.Errorf("unknown routing policy %q (valid: auto, remote, local)", value)
	}
}

func (p Policy) String() string {
	return string(p)
}
