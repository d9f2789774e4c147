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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewBreaker(t *testing.T) {
	breaker := NewBreaker(DefaultBreakerConfig("generator"), zap.NewNop())

	require.NotNil(t, breaker)
	assert.Equal(t, "closed", breaker.State())
}

func TestBreaker_TripsOnConsecutiveTransientFailures(t *testing.T) {
	config := DefaultBreakerConfig("generator")
	config.MaxFailures = 2
	config.ResetTimeout = 20 * time.Millisecond
	breaker := NewBreaker(config, zap.NewNop())

	failing := func(_ context.Context) error {
		return NewNetworkError("connection refused", nil)
	}

	assert.Error(t, breaker.Execute(context.Background(), failing))
	assert.Equal(t, "closed", breaker.State())
	assert.Error(t, breaker.Execute(context.Background(), failing))
	assert.Equal(t, "open", breaker.State())

	called := false
	err := breaker.Execute(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called, "open breaker must not invoke the call")
	assert.True(t, errors.Is(err, ErrBreakerOpen))
	assert.Equal(t, KindNetwork, Classify(err))

	time.Sleep(30 * time.Millisecond)

	err = breaker.Execute(context.Background(), func(_ context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", breaker.State())
}

func TestBreaker_SafetyBlocksDoNotTrip(t *testing.T) {
	config := DefaultBreakerConfig("generator")
	config.MaxFailures = 1
	breaker := NewBreaker(config, zap.NewNop())

	for i := 0; i < 3; i++ {
		err := breaker.Execute(context.Background(), func(_ context.Context) error {
			return NewSafetyBlockedError("blocked", nil)
		})
		assert.Equal(t, KindSafetyBlocked, Classify(err))
	}

	assert.Equal(t, "closed", breaker.State())
}
