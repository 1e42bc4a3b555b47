// Package notify surfaces session and connectivity events as freedesktop
// desktop notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notifier posts transient desktop notifications, replacing the previous one
// so the user sees a single evolving status bubble per session.
type Notifier struct {
	appName string
	enabled bool
	logger  *slog.Logger

	send    func(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error

	mu     sync.Mutex
	lastID uint32
}

// New builds a Notifier. A disabled notifier swallows every call.
func New(appName string, enabled bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		appName: appName,
		enabled: enabled,
		logger:  logger,
		send:    desktopNotify,
		dismiss: desktopDismiss,
	}
}

// Recording announces capture start.
func (n *Notifier) Recording(ctx context.Context) {
	n.post(ctx, "Recording…", 0)
}

// Transcribing announces that audio is being routed for transcription.
func (n *Notifier) Transcribing(ctx context.Context) {
	n.post(ctx, "Transcribing…", 0)
}

// Committed announces a successful commit, naming the engine that produced
// the transcript and whether the session degraded to the local engine.
func (n *Notifier) Committed(ctx context.Context, engine string, fallback bool) {
	summary := fmt.Sprintf("Copied (%s)", engine)
	if fallback {
		summary = "Copied (local, remote unavailable)"
	}
	n.post(ctx, summary, 2500)
}

// Error surfaces a failure message with a short timeout.
func (n *Notifier) Error(ctx context.Context, message string) {
	n.post(ctx, message, 4000)
}

// ConnectivityChanged announces probe verdict flips while a session owner is
// running.
func (n *Notifier) ConnectivityChanged(ctx context.Context, online bool) {
	if online {
		n.post(ctx, "Network restored; remote transcription available", 2500)
		return
	}
	n.post(ctx, "Network unreachable; using local transcription", 4000)
}

// Hide dismisses the current notification, if any.
func (n *Notifier) Hide(ctx context.Context) {
	if n == nil || !n.enabled {
		return
	}

	n.mu.Lock()
	id := n.lastID
	n.lastID = 0
	n.mu.Unlock()

	if id == 0 {
		return
	}
	if err := n.dismiss(ctx, id); err != nil {
		n.logger.Debug("dismiss notification failed", "error", err.Error())
	}
}

func (n *Notifier) post(ctx context.Context, summary string, timeoutMS int) {
	if n == nil || !n.enabled {
		return
	}

	n.mu.Lock()
	replaceID := n.lastID
	n.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, 800*time.Millisecond)
	defer cancel()

	id, err := n.send(callCtx, n.appName, replaceID, summary, timeoutMS)
	if err != nil {
		n.logger.Debug("desktop notification failed", "summary", summary, "error", err.Error())
		return
	}

	n.mu.Lock()
	n.lastID = id
	n.mu.Unlock()
}
