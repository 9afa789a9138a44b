package bus

import (
	"context"
	"log/slog"
	"time"

	"hostboard/internal/app/outbox"
)

// Middleware wraps a Bus with extra behaviour.
type Middleware func(next Bus) Bus

// Chain applies mws around base, outermost first.
func Chain(base Bus, mws ...Middleware) Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// Validatable messages are checked before they reach their handler.
type Validatable interface {
	Validate() error
}

func Validation() Middleware {
	return func(next Bus) Bus {
		return Func(func(ctx context.Context, msg Message) (any, error) {
			if v, ok := msg.(Validatable); ok {
				if err := v.Validate(); err != nil {
					return nil, err
				}
			}
			return next.Send(ctx, msg)
		})
	}
}

func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Bus) Bus {
		return Func(func(ctx context.Context, msg Message) (any, error) {
			started := time.Now()
			res, err := next.Send(ctx, msg)
			attrs := []any{"key", msg.Key(), "duration", time.Since(started)}
			if err != nil {
				logger.DebugContext(ctx, "bus message failed", append(attrs, "error", err)...)
				return res, err
			}
			logger.DebugContext(ctx, "bus message handled", attrs...)
			return res, nil
		})
	}
}

// OutboxFlush flushes box after every handled message, including partially failed ones.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) Middleware {
	if box == nil {
		panic("bus: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Bus) Bus {
		return Func(func(ctx context.Context, msg Message) (any, error) {
			res, err := next.Send(ctx, msg)
			if flushErr := box.Flush(ctx); flushErr != nil {
				logger.ErrorContext(ctx, "outbox flush failed", "key", msg.Key(), "error", flushErr)
			}
			return res, err
		})
	}
}
