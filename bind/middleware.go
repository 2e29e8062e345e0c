package bind

import (
	"context"
	"log/slog"

	stand "github.com/goliatone/go-stand"
)

// LogMiddleware logs every set and get through logger at debug level. A nil
// logger uses slog.Default().
func LogMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(set SetFunc, get GetFunc) (SetFunc, GetFunc) {
		loggedSet := func(u stand.Update) error {
			err := set(u)
			attrs := []slog.Attr{slog.String("update", updateKind(u))}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(context.Background(), slog.LevelWarn, "bind set failed", attrs...)
				return err
			}
			logger.LogAttrs(context.Background(), slog.LevelDebug, "bind set", attrs...)
			return nil
		}
		loggedGet := func() map[string]any {
			state := get()
			logger.LogAttrs(context.Background(), slog.LevelDebug, "bind get", slog.Int("fields", len(state)))
			return state
		}
		return loggedSet, loggedGet
	}
}

func updateKind(u stand.Update) string {
	switch u.(type) {
	case *stand.Partial:
		return "partial"
	case stand.Mutate:
		return "mutate"
	case nil:
		return "nil"
	default:
		return "custom"
	}
}
