package coursegen

import "log/slog"

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}
