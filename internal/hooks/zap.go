package hooks

import "go.uber.org/zap"

// NewZapHooks returns Hooks whose LogError and OnTrace slots write to logger,
// the default structured-logging adapter (component C9). Any other
// lifecycle slot is left nil; compose with Merge to layer metrics or
// user-supplied hooks underneath.
func NewZapHooks(logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{
		LogError: func(err error) {
			logger.Error("memoize hook error", zap.Error(err))
		},
		OnTrace: func(t Trace) {
			fields := []zap.Field{
				zap.String("function", t.FunctionID),
				zap.String("key", t.Key),
				zap.String("decision", string(t.Decision)),
			}
			if t.Err != nil {
				fields = append(fields, zap.Error(t.Err))
				logger.Warn("memoize call", fields...)
				return
			}
			logger.Debug("memoize call", fields...)
		},
	}
}
