package proc

import "log/slog"

// Option customizes a Handle before the process spawns.
type Option func(*Handle)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.log = l
		}
	}
}

// WithStderrFunc registers an observer called with each diagnostic line as
// it arrives, in addition to the handle's own capture.
func WithStderrFunc(fn func(line string)) Option {
	return func(h *Handle) {
		h.stderrFn = fn
	}
}
