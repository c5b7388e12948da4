package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"profile-enrichment/internal/domain/model"
	"profile-enrichment/internal/infra/metrics"
)

// StageContext is the structured context passed through the interceptor
// chain around each stage call. Interceptors read from it instead of
// closing over globals.
type StageContext struct {
	SessionID string
	Stage     model.Stage
	Version   int64 // version of the snapshot the stage was computed from
}

// StageFunc executes one stage: it reads cur and writes its output and
// transcript entries onto next. It never appends to the store itself.
type StageFunc func(ctx context.Context, sc *StageContext, cur, next *model.Session) error

// StageInterceptor wraps a StageFunc with a cross-cutting concern.
type StageInterceptor func(next StageFunc) StageFunc

// Chain applies interceptors so the first one listed is outermost.
func Chain(fn StageFunc, interceptors ...StageInterceptor) StageFunc {
	for i := len(interceptors) - 1; i >= 0; i-- {
		fn = interceptors[i](fn)
	}
	return fn
}

// LoggingInterceptor logs stage start/finish with duration and outcome.
func LoggingInterceptor(base *zerolog.Logger) StageInterceptor {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, sc *StageContext, cur, nxt *model.Session) error {
			log := base.With().
				Str("session_id", sc.SessionID).
				Str("stage", string(sc.Stage)).
				Int64("version", sc.Version).
				Logger()
			log.Debug().Msg("stage start")
			start := time.Now()
			err := next(ctx, sc, cur, nxt)
			if err != nil {
				log.Error().Err(err).Dur("duration", time.Since(start)).Msg("stage failed")
				return err
			}
			log.Info().Dur("duration", time.Since(start)).Msg("stage finished")
			return nil
		}
	}
}

// MetricsInterceptor records per-stage latency.
func MetricsInterceptor() StageInterceptor {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, sc *StageContext, cur, nxt *model.Session) error {
			start := time.Now()
			err := next(ctx, sc, cur, nxt)
			metrics.ObserveStageLatency(string(sc.Stage), int(time.Since(start)/time.Millisecond), err == nil)
			return err
		}
	}
}
