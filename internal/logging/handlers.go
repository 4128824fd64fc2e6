package logging

import (
	"context"
	"errors"
	"log/slog"
)

// FieldSessionID identifies one daemon run across all of its log lines.
const FieldSessionID = "session_id"

// fanoutHandler delivers each record to every child handler that accepts its level.
type fanoutHandler []slog.Handler

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	var live fanoutHandler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return live
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// TeeLogger duplicates log output from base into the provided handlers.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(newFanoutHandler(handlers...))
	}
	return slog.New(newFanoutHandler(append([]slog.Handler{base.Handler()}, handlers...)...))
}

// sessionHandler stamps session_id onto every record at the top level.
type sessionHandler struct {
	next      slog.Handler
	sessionID string
}

func newSessionIDHandler(next slog.Handler, sessionID string) slog.Handler {
	return &sessionHandler{next: next, sessionID: sessionID}
}

func (h *sessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sessionHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	return h.next.Handle(ctx, record)
}

func (h *sessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sessionHandler{next: h.next.WithAttrs(attrs), sessionID: h.sessionID}
}

func (h *sessionHandler) WithGroup(name string) slog.Handler {
	return &sessionHandler{next: h.next.WithGroup(name), sessionID: h.sessionID}
}
