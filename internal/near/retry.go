package near

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// retry runs fn until it succeeds, returns an error that is not a transport
// error, or exhausts c.maxRetries. The delay doubles after every attempt.
func (c *Client) retry(ctx context.Context, what string, fn func(context.Context) error) error {
	maxRetries := c.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := c.retryBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !isRetryable(err) {
			return err
		}

		c.logger.Warn("view call failed, retrying",
			zap.String("call", what),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
