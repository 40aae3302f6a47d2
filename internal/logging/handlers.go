package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// Tee hands every record to each handler enabled for its level.
type Tee []slog.Handler

// NewTee drops nil handlers so optional outputs can be passed unconditionally.
func NewTee(handlers ...slog.Handler) Tee {
	return slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
}

func (t Tee) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

// Handle runs every enabled handler, even after one fails, and returns the
// joined failures.
func (t Tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t Tee) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t Tee) derive(fn func(slog.Handler) slog.Handler) Tee {
	out := make(Tee, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}

// ContextProvider returns attributes describing the current link state, such
// as the active server. It runs once per record and must not block.
type ContextProvider func() []slog.Attr

// stateHandler appends the provider's attributes to each record. Attributes
// whose value is empty are skipped, so nothing is printed before a server is
// selected.
type stateHandler struct {
	next  slog.Handler
	attrs ContextProvider
}

func (h stateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h stateHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range h.attrs() {
		if a.Key == "" || a.Value.Equal(slog.Value{}) || a.Value.Equal(slog.StringValue("")) {
			continue
		}
		r.AddAttrs(a)
	}
	return h.next.Handle(ctx, r)
}

func (h stateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stateHandler{next: h.next.WithAttrs(attrs), attrs: h.attrs}
}

func (h stateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return stateHandler{next: h.next.WithGroup(name), attrs: h.attrs}
}
