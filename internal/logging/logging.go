// Package logging provides structured logging shared across vectra's
// packages.
//
// Design principles:
//   - Logging is dependency-injected, never global
//   - Each component owns its own scoped logger
//   - Logger scoping happens once at construction time
//   - slog.With() is used to attach default attributes
//   - If no logger is provided, a discard logger is used
//
// Global configuration (output format, level, destination) belongs only in
// cmd/vectra's main(). Components must never call slog.SetDefault or reach
// for a package-level logger.
//
// Logging is sparse: the namespace logs its lifecycle boundaries
// (namespace created, batch add, snapshot saved/loaded); the ANN tree's
// splits and calibration are not logged. The per-vector hot path
// (AddVector, Query's inner scans) is never logged.
package logging

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"
)

// discardHandler is a handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
// Use this as a default when no logger is provided.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns the provided logger if non-nil, otherwise a discard
// logger.
//
//	func NewComponent(logger *slog.Logger) *Component {
//	    logger = logging.Default(logger)
//	    return &Component{logger: logger.With("component", "name")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// Component names a logger's "component" attribute value. Vectra has one
// top-level engine component today (namespace wires every other package
// and is the only one that holds a logger); the type exists so a second
// component can be added as a typed constant instead of a bare string
// once one logs independently.
type Component string

// ComponentNamespace tags the namespace package's own lifecycle logging
// (created, batch add, state saved/loaded).
const ComponentNamespace Component = "namespace"

// ComponentFilterHandler wraps an slog.Handler and filters log records
// based on component-specific log levels. This enables dynamic,
// attribute-based logging control without components needing to know
// about or manage log levels.
//
// Thread-safety:
//   - Handle() uses lock-free atomic read of levels map
//   - SetLevel()/ClearLevel() use copy-on-write pattern
//   - No allocations or heavy work in the hot path
type ComponentFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level

	// preAttrs holds attributes added via WithAttrs before any group context.
	// These are checked for "component" in Handle().
	preAttrs []slog.Attr

	// levelSnapshot is a pointer to an atomic that holds the current levels
	// map. This is a pointer so that handlers created via WithAttrs/WithGroup
	// share the same atomic, allowing SetLevel changes to affect all derived
	// loggers.
	levelSnapshot *atomic.Pointer[map[Component]slog.Level]
}

// NewComponentFilterHandler creates a handler that filters log records
// based on component-specific log levels.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	snapshot := &atomic.Pointer[map[Component]slog.Level]{}
	empty := make(map[Component]slog.Level)
	snapshot.Store(&empty)

	return &ComponentFilterHandler{
		next:          next,
		defaultLevel:  defaultLevel,
		levelSnapshot: snapshot,
	}
}

// Enabled always returns true; actual filtering happens in Handle() where
// the "component" attribute is available.
func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle filters the record based on its component attribute and
// configured levels.
func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	levels := *h.levelSnapshot.Load()

	component := h.findComponent(r)

	minLevel := h.defaultLevel
	if component != "" {
		if level, ok := levels[component]; ok {
			minLevel = level
		}
	}

	if r.Level < minLevel {
		return nil
	}

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}

	return h.next.Handle(ctx, r)
}

// findComponent extracts the "component" attribute value from preAttrs and
// record. Returns the empty Component if not found.
func (h *ComponentFilterHandler) findComponent(r slog.Record) Component {
	for _, attr := range h.preAttrs {
		if attr.Key == "component" {
			if s, ok := attr.Value.Resolve().Any().(string); ok {
				return Component(s)
			}
		}
	}

	var component Component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				component = Component(s)
				return false
			}
		}
		return true
	})
	return component
}

// WithAttrs returns a new handler with the given attributes. If attrs
// contains "component", it will be used for filtering.
func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	newPreAttrs := make([]slog.Attr, len(h.preAttrs), len(h.preAttrs)+len(attrs))
	copy(newPreAttrs, h.preAttrs)
	newPreAttrs = append(newPreAttrs, attrs...)

	return &ComponentFilterHandler{
		next:          h.next.WithAttrs(attrs),
		defaultLevel:  h.defaultLevel,
		preAttrs:      newPreAttrs,
		levelSnapshot: h.levelSnapshot,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ComponentFilterHandler{
		next:          h.next.WithGroup(name),
		defaultLevel:  h.defaultLevel,
		preAttrs:      h.preAttrs,
		levelSnapshot: h.levelSnapshot,
	}
}

// SetLevel sets the minimum log level for a specific component. Safe to
// call at runtime.
func (h *ComponentFilterHandler) SetLevel(component Component, level slog.Level) {
	oldLevels := *h.levelSnapshot.Load()
	newLevels := make(map[Component]slog.Level, len(oldLevels)+1)
	maps.Copy(newLevels, oldLevels)
	newLevels[component] = level
	h.levelSnapshot.Store(&newLevels)
}

// ClearLevel removes the component-specific log level, reverting to the
// default.
func (h *ComponentFilterHandler) ClearLevel(component Component) {
	oldLevels := *h.levelSnapshot.Load()
	if _, ok := oldLevels[component]; !ok {
		return
	}

	newLevels := make(map[Component]slog.Level, len(oldLevels))
	for k, v := range oldLevels {
		if k != component {
			newLevels[k] = v
		}
	}
	h.levelSnapshot.Store(&newLevels)
}

// Level returns the current minimum level for a component, or the default
// if unset.
func (h *ComponentFilterHandler) Level(component Component) slog.Level {
	levels := *h.levelSnapshot.Load()
	if level, ok := levels[component]; ok {
		return level
	}
	return h.defaultLevel
}

// DefaultLevel returns the default minimum level for components without
// explicit configuration.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.defaultLevel
}
