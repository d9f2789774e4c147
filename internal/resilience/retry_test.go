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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Logger:      zap.NewNop(),
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if policy.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts to be 3, got %d", policy.MaxAttempts)
	}

	if policy.BaseDelay != 2*time.Second {
		t.Errorf("Expected BaseDelay to be 2 seconds, got %v", policy.BaseDelay)
	}
}

func TestRetryPolicy_DelayIsLinear(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second}

	assert.Equal(t, time.Duration(0), policy.Delay(0))
	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
	assert.Equal(t, 6*time.Second, policy.Delay(3))
	assert.Equal(t, 8*time.Second, policy.Delay(4))
}

func TestExecute_Success(t *testing.T) {
	attempts := 0
	result, err := Execute(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		attempts++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
}

func TestExecute_FailuresBelowLimitThenSuccess(t *testing.T) {
	for failures := 0; failures < 3; failures++ {
		attempts := 0
		result, err := Execute(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
			attempts++
			if attempts <= failures {
				return 0, errors.New("temporary error")
			}
			return 42, nil
		})

		require.NoError(t, err, "failures=%d", failures)
		assert.Equal(t, 42, result)
		assert.Equal(t, failures+1, attempts, "expected failures+1 invocations")
	}
}

func TestExecute_ExhaustedReturnsLastErrorUnchanged(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		attempts := 0
		var last error
		_, err := Execute(context.Background(), fastPolicy(maxAttempts), func(_ context.Context) (string, error) {
			attempts++
			last = NewRateLimitedError("quota exceeded", errors.New("429"))
			return "", last
		})

		assert.Equal(t, maxAttempts, attempts)
		assert.Same(t, last, err, "final failure must be propagated unchanged")
	}
}

func TestExecute_WaitsLinearBackoff(t *testing.T) {
	policy := fastPolicy(3)
	policy.BaseDelay = 20 * time.Millisecond

	start := time.Now()
	_, err := Execute(context.Background(), policy, func(_ context.Context) (int, error) {
		return 0, errors.New("persistent error")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	// 20ms after attempt 1 plus 40ms after attempt 2
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestExecute_CancelledErrorIsNotRetried(t *testing.T) {
	attempts := 0
	_, err := Execute(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		attempts++
		return 0, NewCancelledError("request cancelled", context.Canceled)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, KindCancelled, Classify(err))
}

func TestExecute_InvalidInputIsNotRetried(t *testing.T) {
	attempts := 0
	_, err := Execute(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		attempts++
		return 0, NewInvalidInputError("image type not supported", nil)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, KindInvalidInput, Classify(err))
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	policy := fastPolicy(3)
	policy.BaseDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	var attempts int32

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Execute(ctx, policy, func(_ context.Context) (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, errors.New("network down")
	})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.True(t, IsCancelled(err))
}

func TestExecute_TransientOnlyPolicy(t *testing.T) {
	policy := fastPolicy(3)
	policy.ShouldRetry = RetryTransientOnly

	attempts := 0
	_, err := Execute(context.Background(), policy, func(_ context.Context) (int, error) {
		attempts++
		return 0, NewSafetyBlockedError("blocked", nil)
	})
	assert.Equal(t, 1, attempts)
	assert.Equal(t, KindSafetyBlocked, Classify(err))

	attempts = 0
	_, err = Execute(context.Background(), policy, func(_ context.Context) (int, error) {
		attempts++
		return 0, NewNetworkError("connection reset", nil)
	})
	assert.Equal(t, 3, attempts)
	assert.Equal(t, KindNetwork, Classify(err))
}

func TestExecute_BlindRetryByDefault(t *testing.T) {
	attempts := 0
	_, err := Execute(context.Background(), fastPolicy(3), func(_ context.Context) (int, error) {
		attempts++
		return 0, NewSafetyBlockedError("blocked", nil)
	})

	assert.Equal(t, 3, attempts)
	assert.Error(t, err)
}

func TestExecute_LogsEachFailedAttempt(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	policy := fastPolicy(3)
	policy.Logger = zap.New(core)

	_, _ = Execute(context.Background(), policy, func(_ context.Context) (int, error) {
		return 0, errors.New("boom")
	})

	retries := logs.FilterMessage("Generation call failed, retrying").All()
	require.Len(t, retries, 2)
	assert.Equal(t, int64(1), retries[0].ContextMap()["attempt"])
	assert.Equal(t, int64(2), retries[1].ContextMap()["attempt"])
	assert.Len(t, logs.FilterMessage("All retry attempts exhausted").All(), 1)
}

func TestRetry_NoResult(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(2), func(_ context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("first")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestExecute_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	policy := fastPolicy(0)
	policy.Logger = zaptest.NewLogger(t)

	_, err := Execute(context.Background(), policy, func(_ context.Context) (int, error) {
		attempts++
		return 0, errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
