// Package resilience carries the reference fleet's generic retry helper and
// circuit breaker (libs/go/core/resilience) into workgraph, wrapping
// federation peer IPC calls, federation transfer probing, and the service
// daemon's socket reconnect loop.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry executes fn up to attempts times with exponential backoff and full
// jitter, starting at delay and capping growth at 60s. It stops early and
// returns ctx.Err() if ctx is cancelled between attempts.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	cur := delay
	var lastErr error
	meter := otel.Meter("workgraph")
	attemptCounter, _ := meter.Int64Counter("workgraph_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("workgraph_resilience_retry_success_total")
	failCounter, _ := meter.Int64Counter("workgraph_resilience_retry_fail_total")

	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
