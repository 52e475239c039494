package ddlog

import (
	"context"
	"log/slog"
	"strings"
)

// Handler bridges log/slog onto the package-level logger, so drivers and
// user code that already use slog compose naturally with ours.
type Handler struct {
	groups []string
	attrs  []slog.Attr
}

var _ slog.Handler = Handler{}

func (h Handler) Enabled(_ context.Context, lvl slog.Level) bool {
	switch {
	case lvl >= slog.LevelError:
		return GetLevel() >= LevelError
	case lvl >= slog.LevelWarn:
		return GetLevel() >= LevelWarn
	case lvl >= slog.LevelInfo:
		return GetLevel() >= LevelInfo
	default:
		return GetLevel() >= LevelDebug
	}
}

func (h Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.groups, a)
		return true
	})
	switch {
	case r.Level >= slog.LevelError:
		Error("%s", b.String())
	case r.Level >= slog.LevelWarn:
		Warn("%s", b.String())
	case r.Level >= slog.LevelInfo:
		Info("%s", b.String())
	default:
		Debug("%s", b.String())
	}
	return nil
}

func writeAttr(b *strings.Builder, groups []string, a slog.Attr) {
	b.WriteByte(' ')
	if len(groups) > 0 {
		b.WriteString(strings.Join(groups, "."))
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := Handler{groups: h.groups, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
	return next
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{groups: append(append([]string{}, h.groups...), name), attrs: h.attrs}
}
