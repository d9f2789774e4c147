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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arogyaplus/arogya-assistant/internal/resilience"
)

// DefaultInterval is the pace of the simulated progress sequence
const DefaultInterval = time.Second

// ErrBusy is returned by Start while another run is in flight
var ErrBusy = errors.New("a request is already in progress")

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Controller runs at most one operation at a time, owns its cancellation
// handle and emits simulated progress while it runs.
//
// Subscribers are called synchronously and in order; they must not call back
// into the controller.
type Controller struct {
	mu     sync.Mutex
	emitMu sync.Mutex

	state       State
	active      *run
	events      []Event
	subscribers map[int]Callback
	nextSubID   int

	interval time.Duration
	timeout  time.Duration
	steps    []Step
	logger   *zap.Logger
}

type run struct {
	id      string
	cancel  context.CancelFunc
	settled chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithInterval sets the pace of simulated progress updates
func WithInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithTimeout bounds every run; zero disables the bound
func WithTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.timeout = timeout
	}
}

// WithSteps replaces the simulated progress sequence
func WithSteps(steps []Step) Option {
	return func(c *Controller) {
		c.steps = steps
	}
}

// WithLogger sets the controller's logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates an idle controller
func NewController(opts ...Option) *Controller {
	c := &Controller{
		subscribers: make(map[int]Callback),
		interval:    DefaultInterval,
		steps:       SimulatedSteps,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the controller state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the events emitted for the most recent run
func (c *Controller) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]Event, len(c.events))
	copy(events, c.events)
	return events
}

// Subscribe registers a callback and returns a function removing it
func (c *Controller) Subscribe(callback Callback) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = callback

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Start runs op with a fresh cancellation handle. It returns ErrBusy if a run
// is already active. The error of op is returned unchanged, except that a run
// ended by Cancel or by the run timeout reports an AnalysisError.
func (c *Controller) Start(ctx context.Context, op func(ctx context.Context) error) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	r := &run{
		id:      uuid.NewString(),
		cancel:  cancel,
		settled: make(chan struct{}),
	}
	c.active = r
	c.events = nil
	c.state = State{Processing: true, Stage: StageInitializing, Progress: 0, RunID: r.id}
	c.logger.Debug("Request started", zap.String("run_id", r.id))
	c.emitLocked(r.id, EventTypeProgress, "")

	stop := make(chan struct{})
	go c.simulate(r, stop)

	err := op(runCtx)
	close(stop)
	defer close(r.settled)
	defer cancel()

	c.mu.Lock()
	if c.active != r {
		// Cancel already reported the terminal state for this run.
		c.mu.Unlock()
		c.logger.Debug("Cancelled request settled", zap.String("run_id", r.id), zap.Error(err))
		if err != nil && resilience.IsCancelled(err) {
			return err
		}
		return resilience.NewCancelledError("request cancelled", context.Canceled)
	}
	c.active = nil

	if err == nil {
		c.state = State{Processing: false, Stage: StageComplete, Progress: 100, RunID: r.id}
		c.logger.Debug("Request completed", zap.String("run_id", r.id))
		c.emitLocked(r.id, EventTypeComplete, "")
		return nil
	}

	if runCtx.Err() != nil {
		var analysisErr *resilience.AnalysisError
		if !resilience.AsAnalysisError(err, &analysisErr) {
			err = resilience.ContextError(runCtx)
		}
	}

	c.state = State{Processing: false, Stage: StageFailed, Progress: c.state.Progress, RunID: r.id}
	c.logger.Debug("Request failed", zap.String("run_id", r.id), zap.Error(err))
	c.emitLocked(r.id, EventTypeError, err.Error())
	return err
}

// Cancel signals the active run to stop and reports the idle "Cancelled"
// state immediately, without waiting for the run to unwind. The returned
// channel is closed once the run's operation has actually returned. Calling
// Cancel while idle is a no-op.
func (c *Controller) Cancel() <-chan struct{} {
	c.mu.Lock()
	r := c.active
	if r == nil {
		c.mu.Unlock()
		return closedChan
	}

	c.active = nil
	r.cancel()
	c.state = State{Processing: false, Stage: StageCancelled, Progress: 0, RunID: r.id}
	c.logger.Debug("Request cancelled", zap.String("run_id", r.id))
	c.emitLocked(r.id, EventTypeCancelled, "")

	return r.settled
}

// simulate walks the progress steps on every tick until the run ends
func (c *Controller) simulate(r *run, stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for _, step := range c.steps {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.active != r {
			c.mu.Unlock()
			return
		}
		c.state.Stage = step.Stage
		c.state.Progress = step.Progress
		c.emitLocked(r.id, EventTypeProgress, "")
	}
}

// emitLocked records the current state as an event and delivers it.
// It must be called with mu held and returns with mu released; emitMu is
// taken before mu is released so deliveries keep emission order.
func (c *Controller) emitLocked(runID string, eventType EventType, errMsg string) {
	event := newEvent(runID, eventType, c.state, errMsg)
	c.events = append(c.events, event)

	callbacks := make([]Callback, 0, len(c.subscribers))
	for _, callback := range c.subscribers {
		callbacks = append(callbacks, callback)
	}

	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	for _, callback := range callbacks {
		callback(event)
	}
}

// Run is Start for operations returning a value
func Run[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Start(ctx, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
