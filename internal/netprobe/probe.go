// Package netprobe maintains a best-effort view of internet reachability by
// dialing a known target on a fixed interval in the background. Reads are
// instantaneous; probing is never on a request's critical path.
package netprobe

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Verdict is the most recent reachability observation.
type Verdict string

const (
	// VerdictUnknown is the only valid verdict before the first completed check.
	VerdictUnknown     Verdict = "unknown"
	VerdictReachable   Verdict = "reachable"
	VerdictUnreachable Verdict = "unreachable"
)

// Snapshot is a complete, consistent copy of probe state at read time.
type Snapshot struct {
	Verdict   Verdict
	CheckedAt time.Time
}

// CheckFunc dials a target within a timeout and reports success. It must
// never return an error; a failed or timed-out dial is simply unreachable.
type CheckFunc func(ctx context.Context, target string, timeout time.Duration) bool

// Config controls probe target and cadence.
type Config struct {
	Target   string        // host:port, e.g. "8.8.8.8:53"
	Interval time.Duration // time between checks
	Timeout  time.Duration // per-attempt dial timeout
	OnChange func(online bool)
}

// Probe runs the background check loop and owns the reachability state.
// All mutation happens on the probe's own goroutine; callers only read
// snapshots.
type Probe struct {
	cfg    Config
	check  CheckFunc
	logger *slog.Logger

	mu      sync.Mutex
	snap    Snapshot
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a probe with TCP dialing as the check primitive. Zero config
// values fall back to 8.8.8.8:53 every 10s with a 3s dial timeout.
func New(cfg Config, logger *slog.Logger) *Probe {
	if cfg.Target == "" {
		cfg.Target = "8.8.8.8:53"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Probe{
		cfg:    cfg,
		check:  dialCheck,
		logger: logger,
		snap:   Snapshot{Verdict: VerdictUnknown},
	}
}

// Start launches the background loop with an immediate first check.
// Calling Start again while running has no additional effect.
func (p *Probe) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	go p.loop(ctx)
}

// Stop halts the background loop and waits for it to exit. Safe to call
// without a prior Start, and safe to call more than once.
func (p *Probe) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Current returns the latest completed observation without blocking, even
// while a check is mid-flight.
func (p *Probe) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// loop runs checks sequentially so a slow attempt can never overwrite the
// result of a later one.
func (p *Probe) loop(ctx context.Context) {
	defer close(p.done)

	p.runCheck(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCheck(ctx)
		}
	}
}

func (p *Probe) runCheck(ctx context.Context) {
	online := p.check(ctx, p.cfg.Target, p.cfg.Timeout)
	if ctx.Err() != nil {
		// Shutdown raced the check; keep the last completed verdict.
		return
	}

	verdict := VerdictUnreachable
	if online {
		verdict = VerdictReachable
	}

	p.mu.Lock()
	previous := p.snap.Verdict
	p.snap = Snapshot{Verdict: verdict, CheckedAt: time.Now()}
	p.mu.Unlock()

	if previous != verdict {
		if p.logger != nil {
			p.logger.Info("reachability changed", "from", string(previous), "to", string(verdict), "target", p.cfg.Target)
		}
		if p.cfg.OnChange != nil {
			p.cfg.OnChange(verdict == VerdictReachable)
		}
	}
}

// dialCheck is the production check primitive: one TCP connect attempt.
func dialCheck(ctx context.Context, target string, timeout time.Duration) bool {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", target)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
