package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront/internal/cache"
)

const tracerName = "github.com/utafrali/storefront/internal/cache/redis"

// SetSlowCommandLogging logs commands slower than threshold as warnings.
// A zero threshold or nil logger disables it. Call before the store is used.
func (s *Store) SetSlowCommandLogging(threshold time.Duration, logger *slog.Logger) {
	s.slowThreshold = threshold
	s.logger = logger
}

// trace starts a client span for one store operation. The returned function
// must be called with the operation's error when it completes.
func (s *Store) trace(ctx context.Context, operation, sessionID string, fields int) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", operation),
			attribute.String("session.id", sessionID),
			attribute.Int("cache.fields", fields),
		),
	)

	return ctx, func(err error) {
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if s.slowThreshold <= 0 || s.logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= s.slowThreshold {
			attrs := []any{
				slog.String("operation", operation),
				slog.String("session_id", sessionID),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			s.logger.WarnContext(ctx, "slow cache command", attrs...)
		}
	}
}
