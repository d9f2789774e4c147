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
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrBreakerOpen is wrapped by errors returned while the breaker rejects calls
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds configuration for circuit breaker behavior
type BreakerConfig struct {
	Name                string
	MaxFailures         uint32
	ResetTimeout        time.Duration
	HalfOpenMaxRequests uint32
	// IsFailure decides which errors count against the breaker. Nil counts
	// transient failures only, so safety blocks and cancellations never trip it.
	IsFailure func(error) bool
}

// DefaultBreakerConfig returns default configuration for circuit breaker
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxFailures:         5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker guards the generation service with a gobreaker circuit breaker
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreaker creates a new circuit breaker with the given configuration
func NewBreaker(config BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	isFailure := config.IsFailure
	if isFailure == nil {
		isFailure = IsTransient
	}
	maxFailures := config.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMaxRequests,
		Timeout:     config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	logger.Info("Circuit breaker created",
		zap.String("name", config.Name),
		zap.Uint32("max_failures", maxFailures),
		zap.Duration("reset_timeout", config.ResetTimeout))

	return &Breaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Execute runs fn through the breaker. Rejected calls fail with a network
// error wrapping ErrBreakerOpen.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Debug("Circuit breaker rejected call", zap.String("name", b.cb.Name()))
		return NewNetworkError("the analysis service is temporarily unavailable",
			fmt.Errorf("%w: %v", ErrBreakerOpen, err))
	}
	return err
}

// State returns the breaker state as a string: closed, half-open or open
func (b *Breaker) State() string {
	return b.cb.State().String()
}
