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

package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
)

func newTestController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithInterval(5 * time.Millisecond), WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewController(opts...)
}

// startAsync runs op on the controller in the background and waits until op is running
func startAsync(t *testing.T, c *Controller, op func(ctx context.Context) error) <-chan error {
	t.Helper()
	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		result <- c.Start(context.Background(), func(ctx context.Context) error {
			close(started)
			return op(ctx)
		})
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("operation did not start")
	}
	return result
}

func TestNewController_Idle(t *testing.T) {
	c := NewController()

	state := c.State()
	assert.False(t, state.Processing)
	assert.Equal(t, StageIdle, state.Stage)
	assert.Equal(t, 0, state.Progress)
	assert.Empty(t, c.Events())
}

func TestController_CancelWhileIdleIsNoop(t *testing.T) {
	c := newTestController(t)
	before := c.State()

	settled := c.Cancel()

	select {
	case <-settled:
	default:
		t.Fatal("expected idle cancel to return a closed channel")
	}
	assert.Equal(t, before, c.State())
	assert.Empty(t, c.Events())
}

func TestController_SuccessEmitsOrderedSequence(t *testing.T) {
	c := newTestController(t)

	err := c.Start(context.Background(), func(_ context.Context) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	events := c.Events()
	require.GreaterOrEqual(t, len(events), 2)

	first := events[0]
	assert.Equal(t, StageInitializing, first.Stage)
	assert.Equal(t, 0, first.Progress)

	last := events[len(events)-1]
	assert.Equal(t, EventTypeComplete, last.Type)
	assert.Equal(t, StageComplete, last.Stage)
	assert.Equal(t, 100, last.Progress)

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Progress, events[i-1].Progress, "progress must strictly increase")
		assert.Equal(t, first.RunID, events[i].RunID)
	}
	for _, event := range events[:len(events)-1] {
		assert.False(t, event.Terminal())
	}

	state := c.State()
	assert.False(t, state.Processing)
	assert.Equal(t, StageComplete, state.Stage)
	assert.Equal(t, 100, state.Progress)
}

func TestController_WalksAllSimulatedSteps(t *testing.T) {
	c := newTestController(t)

	err := c.Start(context.Background(), func(_ context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	var stages []string
	for _, event := range c.Events() {
		stages = append(stages, event.Stage)
	}
	assert.Equal(t, []string{
		StageInitializing, StageUnderstanding, StageGenerating, StageProcessing, StageFinalizing, StageComplete,
	}, stages)
}

func TestController_StateWhileRunning(t *testing.T) {
	c := newTestController(t, WithInterval(time.Hour))
	release := make(chan struct{})

	result := startAsync(t, c, func(_ context.Context) error {
		<-release
		return nil
	})

	state := c.State()
	assert.True(t, state.Processing)
	assert.Equal(t, StageInitializing, state.Stage)
	assert.NotEmpty(t, state.RunID)

	close(release)
	assert.NoError(t, <-result)
}

func TestController_RejectsConcurrentStart(t *testing.T) {
	c := newTestController(t)
	release := make(chan struct{})

	result := startAsync(t, c, func(_ context.Context) error {
		<-release
		return nil
	})

	called := false
	err := c.Start(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, called)

	close(release)
	assert.NoError(t, <-result)

	// idle again, a new run is accepted
	assert.NoError(t, c.Start(context.Background(), func(_ context.Context) error { return nil }))
}

func TestController_CancelDuringRun(t *testing.T) {
	c := newTestController(t)
	unwound := make(chan struct{})

	result := startAsync(t, c, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		close(unwound)
		return ctx.Err()
	})

	settled := c.Cancel()

	// the idle state is reported synchronously, before the run unwinds
	state := c.State()
	assert.False(t, state.Processing)
	assert.Equal(t, StageCancelled, state.Stage)
	assert.Equal(t, 0, state.Progress)

	select {
	case <-unwound:
		t.Fatal("operation unwound before Cancel returned")
	default:
	}

	select {
	case <-settled:
	case <-time.After(time.Second):
		t.Fatal("settled channel never closed")
	}

	err := <-result
	assert.True(t, resilience.IsCancelled(err))

	events := c.Events()
	require.NotEmpty(t, events)
	count := len(events)
	assert.Equal(t, EventTypeCancelled, events[count-1].Type)

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, c.Events(), count, "no events may follow cancellation")
	assert.Equal(t, StageCancelled, c.State().Stage)
}

func TestController_CancelledRunIgnoringContext(t *testing.T) {
	c := newTestController(t)
	release := make(chan struct{})

	result := startAsync(t, c, func(_ context.Context) error {
		<-release
		return nil
	})

	c.Cancel()
	close(release)

	err := <-result
	assert.True(t, resilience.IsCancelled(err))
	assert.Equal(t, StageCancelled, c.State().Stage)
}

func TestController_FailurePropagatesErrorUnchanged(t *testing.T) {
	c := newTestController(t)
	failure := resilience.NewRateLimitedError("quota exceeded", nil)

	err := c.Start(context.Background(), func(_ context.Context) error {
		return failure
	})

	assert.Same(t, failure, err)
	state := c.State()
	assert.False(t, state.Processing)
	assert.Equal(t, StageFailed, state.Stage)

	events := c.Events()
	last := events[len(events)-1]
	assert.Equal(t, EventTypeError, last.Type)
	assert.Contains(t, last.Error, "quota exceeded")
}

func TestController_RunTimeout(t *testing.T) {
	c := newTestController(t, WithTimeout(20*time.Millisecond))

	err := c.Start(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.Equal(t, resilience.KindNetwork, resilience.Classify(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StageFailed, c.State().Stage)
}

func TestController_SubscribeReceivesEventsInOrder(t *testing.T) {
	c := newTestController(t)

	var mu sync.Mutex
	var received []Event
	unsubscribe := c.Subscribe(func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})

	require.NoError(t, c.Start(context.Background(), func(_ context.Context) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}))

	mu.Lock()
	assert.Equal(t, c.Events(), received)
	count := len(received)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, c.Start(context.Background(), func(_ context.Context) error { return nil }))

	mu.Lock()
	assert.Len(t, received, count)
	mu.Unlock()
}

func TestRun_ReturnsValue(t *testing.T) {
	c := newTestController(t)

	value, err := Run(context.Background(), c, func(_ context.Context) (string, error) {
		return "analysis", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "analysis", value)

	value, err = Run(context.Background(), c, func(_ context.Context) (string, error) {
		return "partial", errors.New("failed")
	})
	assert.Error(t, err)
	assert.Empty(t, value)
}
