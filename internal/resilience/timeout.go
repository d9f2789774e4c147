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

package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultRequestTimeout bounds a single call to the generation service
const DefaultRequestTimeout = 60 * time.Second

// ContextError converts a finished context into an AnalysisError.
// A deadline is reported as a network timeout, anything else as a cancellation.
func ContextError(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError("request timed out", err)
	}
	return NewCancelledError("request cancelled", err)
}

// WithTimeout executes fn with a timeout. A non-positive timeout only
// inherits the parent's deadline.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, logger *zap.Logger, fn Operation[T]) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := fn(timeoutCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && timeoutCtx.Err() != nil && ctx.Err() == nil {
			// fn noticed the deadline before we did
			return out.value, NewNetworkError("request timed out", out.err)
		}
		return out.value, out.err
	case <-timeoutCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ContextError(ctx)
		}
		logger.Warn("Operation timed out",
			zap.Duration("timeout", timeout),
			zap.Error(timeoutCtx.Err()))
		return zero, NewNetworkError("request timed out", timeoutCtx.Err())
	}
}
