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

// Package health reports the state of the generation backend and the
// conversation store.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Statuses, from best to worst. Degraded means analyses still answer but
// may serve sample results.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultTimeout bounds a full round of checks
const DefaultTimeout = 5 * time.Second

var severity = map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

// CheckResult is the outcome of one check
type CheckResult struct {
	Status  string                 `json:"status"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency_ns"`
}

// Report aggregates every check. Status is the worst check status.
type Report struct {
	Status        string                 `json:"status"`
	Service       string                 `json:"service"`
	Version       string                 `json:"version"`
	Environment   string                 `json:"environment,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Checks        map[string]CheckResult `json:"checks"`
	CheckedAt     time.Time              `json:"checked_at"`
}

// Checker reports on one dependency
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) CheckResult

// Check calls f
func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	return f(ctx)
}

// Manager runs the registered checks. Register checkers before serving.
type Manager struct {
	service     string
	version     string
	environment string
	started     time.Time
	timeout     time.Duration
	checkers    map[string]Checker
	logger      *zap.Logger
}

// NewManager creates a manager for the named service
func NewManager(service, version, environment string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		service:     service,
		version:     version,
		environment: environment,
		started:     time.Now(),
		timeout:     DefaultTimeout,
		checkers:    make(map[string]Checker),
		logger:      logger,
	}
}

// SetTimeout changes the bound on a round of checks
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// AddChecker registers checker under name, replacing any previous one
func (m *Manager) AddChecker(name string, checker Checker) {
	m.checkers[name] = checker
}

// Check runs all checkers concurrently under the manager timeout.
func (m *Manager) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(m.checkers))
	)
	for name, checker := range m.checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			start := time.Now()
			result := checker.Check(ctx)
			result.Latency = time.Since(start)

			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	status := StatusHealthy
	for name, result := range checks {
		if severity[result.Status] > severity[status] {
			status = result.Status
		}
		if result.Status != StatusHealthy {
			m.logger.Debug("Health check not healthy",
				zap.String("check", name),
				zap.String("status", result.Status),
				zap.String("error", result.Error))
		}
	}

	return Report{
		Status:        status,
		Service:       m.service,
		Version:       m.version,
		Environment:   m.environment,
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Checks:        checks,
		CheckedAt:     time.Now(),
	}
}

// HTTPHandler serves the report as JSON. Only unhealthy answers 503.
func (m *Manager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		report := m.Check(r.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			m.logger.Error("Failed to write health report", zap.Error(err))
		}
	}
}

// Pinger is anything that can report whether it is reachable, such as a history store
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports a conversation store as unhealthy when it cannot be
// reached.
func StoreChecker(storageType string, store Pinger) Checker {
	return CheckerFunc(func(ctx context.Context) CheckResult {
		if err := store.Ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Error:   fmt.Sprintf("history store ping failed: %v", err),
				Details: map[string]interface{}{"storage_type": storageType},
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Details: map[string]interface{}{"storage_type": storageType},
		}
	})
}

// ProviderChecker reports the generation backend. A missing API key or an
// open circuit breaker is degraded since every analysis then falls back to
// sample results.
func ProviderChecker(provider string, apiKeyConfigured bool, breakerState func() (string, bool)) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		details := map[string]interface{}{
			"provider":           provider,
			"api_key_configured": apiKeyConfigured,
		}
		if !apiKeyConfigured {
			return CheckResult{
				Status:  StatusDegraded,
				Error:   "no API key configured",
				Details: details,
			}
		}

		if breakerState != nil {
			if state, ok := breakerState(); ok {
				details["breaker_state"] = state
				if state == "open" {
					return CheckResult{
						Status:  StatusDegraded,
						Error:   "circuit breaker is open",
						Details: details,
					}
				}
			}
		}

		return CheckResult{Status: StatusHealthy, Details: details}
	})
}

// SessionChecker reports the number of tracked progress sessions
func SessionChecker(count func() int) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		return CheckResult{
			Status:  StatusHealthy,
			Details: map[string]interface{}{"active_sessions": count()},
		}
	})
}
