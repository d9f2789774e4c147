// Copyright 2025 Arogya Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package resilience provides the retry, timeout and circuit breaker policies
// wrapped around calls to the generation service, and the error taxonomy they
// share.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the default number of invocations before giving up
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the default delay unit for linear backoff
	DefaultBaseDelay = 2 * time.Second
)

// RetryPolicy holds configuration for linear backoff retry logic.
// The delay after failed attempt n is BaseDelay * n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// ShouldRetry decides whether a failure is retried. Nil retries every
	// failure except cancellation and invalid input.
	ShouldRetry func(error) bool
	Logger      *zap.Logger
}

// DefaultRetryPolicy returns the default policy: 3 attempts, 2s linear backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// RetryTransientOnly only retries network, rate limit and unclassified failures
func RetryTransientOnly(err error) bool {
	return IsTransient(err)
}

// Delay returns the wait after the given failed attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(attempt)
}

func (p RetryPolicy) retryable(err error) bool {
	switch Classify(err) {
	case KindCancelled, KindInvalidInput:
		return false
	}
	if p.ShouldRetry == nil {
		return true
	}
	return p.ShouldRetry(err)
}

// Operation is a fallible call that can be retried
type Operation[T any] func(ctx context.Context) (T, error)

// Execute runs op until it succeeds or MaxAttempts invocations have failed.
// The last failure is returned unchanged. Cancellation and invalid input stop
// retrying at once.
func Execute[T any](ctx context.Context, policy RetryPolicy, op Operation[T]) (T, error) {
	logger := policy.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", maxAttempts))
			}
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return zero, ContextError(ctx)
		}

		if !policy.retryable(err) {
			logger.Debug("Error is not retryable, stopping attempts",
				zap.Error(err),
				zap.String("error_kind", string(Classify(err))),
				zap.Int("attempt", attempt))
			return zero, err
		}

		if attempt == maxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		logger.Warn("Generation call failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ContextError(ctx)
		case <-timer.C:
		}
	}

	logger.Error("All retry attempts exhausted",
		zap.Error(lastErr),
		zap.Int("total_attempts", maxAttempts))

	return zero, lastErr
}

// Retry is Execute for operations without a result value
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
