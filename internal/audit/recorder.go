package audit

import (
	"context"
	"log/slog"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// Recorder writes every auth event to a Repository.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

// NewRecorder returns an auth.EventRecorder backed by repo.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record implements auth.EventRecorder. Write failures are logged.
func (r *Recorder) Record(ctx context.Context, ev auth.Event) {
	entry := FromEvent(ev)
	// Written even if the request context is already cancelled.
	if err := r.repo.Create(context.WithoutCancel(ctx), &entry); err != nil {
		r.logger.Error("writing audit log", "action", entry.Action, "error", err)
	}
}

// FromEvent converts an auth event to an audit entry.
func FromEvent(ev auth.Event) AuditLog {
	return AuditLog{
		Action:     string(ev.Type),
		Outcome:    ev.Outcome(),
		Username:   ev.Username,
		Target:     ev.Target,
		Details:    ev.Detail,
		RemoteAddr: ev.RemoteAddr,
		CreatedAt:  ev.Time,
	}
}
