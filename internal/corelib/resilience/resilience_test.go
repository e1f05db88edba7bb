package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if v != 42 {
		t.Fatalf("v = %d", v)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	_, err := Retry(context.Background(), 2, time.Millisecond, func() (int, error) {
		return 0, errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(2*time.Second, 4, 3, 0.5, 200*time.Millisecond, 1)
	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("should allow while closed, iteration %d", i)
		}
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatal("expected breaker to be open")
	}
	time.Sleep(250 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected half-open probe to be allowed")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatal("expected breaker closed after successful probe")
	}
}
