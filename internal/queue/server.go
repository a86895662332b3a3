package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocer/internal/obs"
)

// ServerConfig configures the worker process.
type ServerConfig struct {
	Concurrency int
	Logger      zerolog.Logger
}

// NewServer builds an asynq server that drains the notification queue ahead of
// the default queue.
func NewServer(redisOpt asynq.RedisConnOpt, cfg ServerConfig) *asynq.Server {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	logger := cfg.Logger
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueNotifications: 6,
			QueueDefault:       1,
		},
		Logger:   zerologAdapter{logger: logger.With().Str("component", "asynq").Logger()},
		LogLevel: asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn().Err(err).Str("task_type", task.Type()).
				Int("retry", retried).Int("max_retry", maxRetry).Msg("task_failed")
		}),
	})
}

// NewMux returns a ServeMux that records job outcomes and durations.
func NewMux(logger zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(Observe(logger))
	return mux
}

// Observe is asynq middleware that logs each job and counts its result.
func Observe(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			taskID, _ := asynq.GetTaskID(ctx)
			err := next.ProcessTask(ctx, t)
			result := "ok"
			if err != nil {
				result = "error"
			}
			obs.ObserveNotificationJob(t.Type(), result)
			evt := logger.Info()
			if err != nil {
				evt = logger.Warn().Err(err)
			}
			evt.Str("task_type", t.Type()).Str("task_id", taskID).
				Dur("duration", time.Since(start)).Msg("task_processed")
			return err
		})
	}
}

type zerologAdapter struct {
	logger zerolog.Logger
}

func (z zerologAdapter) Debug(args ...any) { z.logger.Debug().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Info(args ...any)  { z.logger.Info().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Warn(args ...any)  { z.logger.Warn().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Error(args ...any) { z.logger.Error().Msg(fmt.Sprint(args...)) }
func (z zerologAdapter) Fatal(args ...any) { z.logger.Fatal().Msg(fmt.Sprint(args...)) }
