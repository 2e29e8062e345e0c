package stand

import (
	"context"
	"log/slog"
	"time"
)

// UpdateLogEvent describes one SetState call.
type UpdateLogEvent struct {
	StoreID   string
	Kind      string
	Patches   int
	Listeners int
	Depth     int
	Duration  time.Duration
	Err       error
}

// EvaluationLogEvent describes an expression evaluation.
type EvaluationLogEvent struct {
	Engine   string
	Expr     string
	Duration time.Duration
	Err      error
}

// Logger records store and evaluator events.
type Logger interface {
	LogUpdate(UpdateLogEvent)
	LogEvaluation(EvaluationLogEvent)
}

// LoggerFuncs adapts plain functions to Logger. Nil fields are skipped.
type LoggerFuncs struct {
	Update     func(UpdateLogEvent)
	Evaluation func(EvaluationLogEvent)
}

// LogUpdate implements Logger.
func (f LoggerFuncs) LogUpdate(event UpdateLogEvent) {
	if f.Update != nil {
		f.Update(event)
	}
}

// LogEvaluation implements Logger.
func (f LoggerFuncs) LogEvaluation(event EvaluationLogEvent) {
	if f.Evaluation != nil {
		f.Evaluation(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogUpdate(UpdateLogEvent)         {}
func (noopLogger) LogEvaluation(EvaluationLogEvent) {}

// WithLogger attaches a logger to the store.
func WithLogger(logger Logger) Option {
	return func(cfg *storeConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// NewSlogLogger emits events as structured slog records. Successful events
// log at debug level and failures at warn.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger}
}

type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) LogUpdate(event UpdateLogEvent) {
	attrs := []slog.Attr{
		slog.String("store", event.StoreID),
		slog.String("kind", event.Kind),
		slog.Int("patches", event.Patches),
		slog.Int("listeners", event.Listeners),
		slog.Int("depth", event.Depth),
		slog.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
		l.logger.LogAttrs(context.Background(), slog.LevelWarn, "state update failed", attrs...)
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "state updated", attrs...)
}

func (l slogLogger) LogEvaluation(event EvaluationLogEvent) {
	attrs := []slog.Attr{
		slog.String("engine", event.Engine),
		slog.String("expr", event.Expr),
		slog.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		attrs = append(attrs, slog.String("error", event.Err.Error()))
		l.logger.LogAttrs(context.Background(), slog.LevelWarn, "selector evaluation failed", attrs...)
		return
	}
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, "selector evaluated", attrs...)
}
