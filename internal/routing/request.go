package routing

import (
	"time"

	"github.com/rs/xid"
)

// Request describes one transcription job. Values are fixed before routing
// and passed by value so nothing downstream can mutate a shared copy.
type Request struct {
	ID        string
	AudioPath string
	Duration  time.Duration
	SizeBytes int64
	Language  string // optional hint; empty means autodetect
	Prompt    string // optional glossary/system instruction text
	Policy    Policy
}

// NewRequest stamps a fresh request ID for the given audio reference. Callers
// fill the remaining metadata before handing the request to the router.
func NewRequest(audioPath string, policy Policy) Request {
	return Request{
		ID:        xid.New().String(),
		AudioPath: audioPath,
		Policy:    policy,
	}
}

// Transcript is raw engine output before transcript assembly.
type Transcript struct {
	Text     string
	Segments []string
	Language string
}

// Result is the routed outcome handed back to the caller, exactly one per
// successful Transcribe call.
type Result struct {
	RequestID string
	Text      string
	Engine    Engine
	Elapsed   time.Duration
	// Fallback is set only when the remote attempt failed in a
	// fallback-eligible way and the local engine serviced the request.
	Fallback bool
}
