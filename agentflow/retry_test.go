package agentflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentflow/agentflow-go/agentflow"
)

func TestRetryExecutorSucceedsOnThirdAttempt(t *testing.T) {
	policy := agentflow.RetryPolicy{
		MaxAttempts: 5,
		Strategy:    agentflow.FixedDelay(1),
	}
	executor := agentflow.NewRetryExecutor(1)

	attempts := 0
	err := executor.ExecuteWithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return agentflow.NewFlowError(agentflow.TimeoutExceeded, "simulated timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success by third attempt, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExecutorExhaustion(t *testing.T) {
	// MaxAttempts counts retries: 3 retries plus the initial attempt is 4
	// total invocations, matching the 1-initial-plus-N-retries contract.
	policy := agentflow.RetryPolicy{
		MaxAttempts: 3,
		Strategy:    agentflow.FixedDelay(1),
	}
	executor := agentflow.NewRetryExecutor(1)

	attempts := 0
	err := executor.ExecuteWithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return agentflow.NewFlowError(agentflow.TimeoutExceeded, "always fails")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	var exhausted *agentflow.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *RetryExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if attempts != 4 {
		t.Errorf("fn called %d times, want 4", attempts)
	}
}

func TestRetryPolicyRespectsErrorPatterns(t *testing.T) {
	policy := agentflow.RetryPolicy{
		MaxAttempts:            3,
		Strategy:               agentflow.FixedDelay(1),
		RetryableErrorPatterns: []agentflow.ErrorPattern{agentflow.ErrorTypePattern("TimeoutExceeded")},
	}
	executor := agentflow.NewRetryExecutor(1)

	attempts := 0
	err := executor.ExecuteWithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return agentflow.NewFlowError(agentflow.NodeInputError, "not retryable")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected no retries for a non-matching error pattern, got %d attempts", attempts)
	}
}

func TestRetryPolicyRespectsMaxDuration(t *testing.T) {
	policy := agentflow.RetryPolicy{
		MaxAttempts: 100,
		Strategy:    agentflow.FixedDelay(20),
		MaxDuration: 30 * time.Millisecond,
	}
	executor := agentflow.NewRetryExecutor(1)

	attempts := 0
	err := executor.ExecuteWithRetry(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return agentflow.NewFlowError(agentflow.TimeoutExceeded, "always fails")
	})
	if err == nil {
		t.Fatalf("expected error once max_duration elapses")
	}
	if attempts >= 100 {
		t.Errorf("expected max_duration to cut retries short, got %d attempts", attempts)
	}
}

func TestExponentialBackoffJitterStaysWithinBounds(t *testing.T) {
	strategy := agentflow.ExponentialBackoff(100, 1000, 2.0, true)
	// One retry means exactly one jittered delay between the two attempts.
	policy := agentflow.RetryPolicy{MaxAttempts: 1, Strategy: strategy}
	executor := agentflow.NewRetryExecutor(42)

	start := time.Now()
	_ = executor.ExecuteWithRetry(context.Background(), policy, func(ctx context.Context) error {
		return agentflow.NewFlowError(agentflow.TimeoutExceeded, "fails")
	})
	elapsed := time.Since(start)

	// base delay 100ms +/- 25% jitter: between 75ms and 125ms.
	if elapsed < 70*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("elapsed = %v, expected roughly one jittered 100ms delay", elapsed)
	}
}

func TestErrorPatternMatchers(t *testing.T) {
	if !agentflow.MessageContains("boom").Matches(errors.New("it went boom today")) {
		t.Errorf("expected MessageContains to match")
	}
	if !agentflow.TimeoutErrorPattern().Matches(agentflow.NewFlowError(agentflow.TimeoutExceeded, "x")) {
		t.Errorf("expected TimeoutErrorPattern to match TimeoutExceeded kind")
	}
	if agentflow.RateLimitErrorPattern().Matches(errors.New("unrelated")) {
		t.Errorf("expected RateLimitErrorPattern not to match unrelated error")
	}
}
