package obs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

// WithRequestID stores a request id for Time to report.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// Time logs the duration of op when the returned func is deferred:
//
//	defer obs.Time(ctx, "dispatch.RunBatch")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	reqID, _ := ctx.Value(RequestIDKey).(string)

	return func(errp *error) {
		fields := []zap.Field{
			zap.String("req_id", reqID),
			zap.String("op", name),
			zap.Int64("dur_ms", time.Since(start).Milliseconds()),
		}

		if errp != nil && *errp != nil {
			L().Warn("op failed", append(fields, zap.Error(*errp))...)
			return
		}
		L().Debug("op done", fields...)
	}
}
