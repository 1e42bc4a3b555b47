package netprobe

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForVerdict(t *testing.T, probe *Probe, want Verdict) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := probe.Current()
		if snap.Verdict == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("probe never reached verdict %s (current: %s)", want, probe.Current().Verdict)
	return Snapshot{}
}

func newTestProbe(interval time.Duration, check CheckFunc, onChange func(bool)) *Probe {
	probe := New(Config{
		Target:   "192.0.2.1:53",
		Interval: interval,
		Timeout:  50 * time.Millisecond,
		OnChange: onChange,
	}, nil)
	probe.check = check
	return probe
}

func TestCurrentIsUnknownBeforeFirstCheck(t *testing.T) {
	probe := New(Config{}, nil)
	snap := probe.Current()
	require.Equal(t, VerdictUnknown, snap.Verdict)
	require.True(t, snap.CheckedAt.IsZero())
}

func TestProbeObservesReachableThenUnreachable(t *testing.T) {
	var online atomic.Bool
	online.Store(true)

	probe := newTestProbe(10*time.Millisecond, func(context.Context, string, time.Duration) bool {
		return online.Load()
	}, nil)
	probe.Start()
	defer probe.Stop()

	first := waitForVerdict(t, probe, VerdictReachable)
	require.False(t, first.CheckedAt.IsZero())

	online.Store(false)
	second := waitForVerdict(t, probe, VerdictUnreachable)
	require.True(t, second.CheckedAt.After(first.CheckedAt) || second.CheckedAt.Equal(first.CheckedAt))
}

func TestStartIsIdempotent(t *testing.T) {
	var checks atomic.Int32
	probe := newTestProbe(time.Hour, func(context.Context, string, time.Duration) bool {
		checks.Add(1)
		return true
	}, nil)

	probe.Start()
	probe.Start()
	probe.Start()
	defer probe.Stop()

	waitForVerdict(t, probe, VerdictReachable)
	// One immediate check from the single loop; extra Starts add nothing.
	require.Equal(t, int32(1), checks.Load())
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	probe := New(Config{}, nil)
	probe.Stop()
	probe.Stop()
}

func TestStopWaitsForLoopExit(t *testing.T) {
	probe := newTestProbe(5*time.Millisecond, func(context.Context, string, time.Duration) bool {
		return true
	}, nil)
	probe.Start()
	waitForVerdict(t, probe, VerdictReachable)

	done := make(chan struct{})
	go func() {
		probe.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestCurrentNeverBlocksDuringSlowCheck(t *testing.T) {
	release := make(chan struct{})
	probe := newTestProbe(time.Hour, func(ctx context.Context, _ string, _ time.Duration) bool {
		<-release
		return true
	}, nil)
	probe.Start()
	defer func() {
		close(release)
		probe.Stop()
	}()

	start := time.Now()
	snap := probe.Current()
	require.Less(t, time.Since(start), 100*time.Millisecond)
	require.Equal(t, VerdictUnknown, snap.Verdict, "mid-flight check must not be observable")
}

func TestOnChangeFiresOnlyOnTransitions(t *testing.T) {
	var online atomic.Bool
	var transitions atomic.Int32
	online.Store(true)

	probe := newTestProbe(5*time.Millisecond, func(context.Context, string, time.Duration) bool {
		return online.Load()
	}, func(bool) {
		transitions.Add(1)
	})
	probe.Start()
	defer probe.Stop()

	waitForVerdict(t, probe, VerdictReachable)
	time.Sleep(30 * time.Millisecond) // several stable checks
	require.Equal(t, int32(1), transitions.Load())

	online.Store(false)
	waitForVerdict(t, probe, VerdictUnreachable)
	require.Equal(t, int32(2), transitions.Load())
}

func TestDialCheckTimeoutCountsAsUnreachable(t *testing.T) {
	// Listener with a full backlog is unreliable across platforms; a
	// blackhole TEST-NET address with a tight timeout is deterministic.
	start := time.Now()
	reachable := dialCheck(context.Background(), "192.0.2.1:53", 50*time.Millisecond)
	require.False(t, reachable)
	require.Less(t, time.Since(start), time.Second)
}

func TestDialCheckSucceedsAgainstListener(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			_ = conn.Close()
		}
	}()

	require.True(t, dialCheck(context.Background(), listener.Addr().String(), time.Second))
}
