package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TestJob is a no-op module used to verify scheduling, execution and job
// logging end to end.
type TestJob struct {
	logger *zap.Logger
}

func (t *TestJob) Doc() string {
	return "Logs a message and returns its kwargs. Optional kwargs: " +
		"sleep_seconds (number) to simulate a long-running job, " +
		"message (string) to include in the result."
}

func (t *TestJob) Run(ctx context.Context, kwargs map[string]any) (map[string]any, error) {
	if secs, ok := kwargs["sleep_seconds"].(float64); ok && secs > 0 {
		select {
		case <-time.After(time.Duration(secs * float64(time.Second))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	message := "test job executed"
	if m, ok := kwargs["message"].(string); ok && m != "" {
		message = m
	}
	t.logger.Info("test job", zap.String("message", message))

	return map[string]any{"message": message, "kwargs": kwargs}, nil
}
