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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func staticCheck(status string) Checker {
	return CheckerFunc(func(context.Context) CheckResult {
		return CheckResult{Status: status}
	})
}

func TestManager_Check(t *testing.T) {
	manager := NewManager("arogya", "1.0.0", "test", zap.NewNop())

	manager.AddChecker("healthy", staticCheck(StatusHealthy))
	manager.AddChecker("unhealthy", CheckerFunc(func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: "store is down"}
	}))

	report := manager.Check(context.Background())

	if report.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", report.Status)
	}
	if report.Service != "arogya" || report.Version != "1.0.0" || report.Environment != "test" {
		t.Errorf("Unexpected service identity: %+v", report)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("Expected 2 checks, got %d", len(report.Checks))
	}
	if report.Checks["unhealthy"].Error != "store is down" {
		t.Errorf("Expected check error to be kept, got %q", report.Checks["unhealthy"].Error)
	}
	if report.CheckedAt.IsZero() {
		t.Error("Expected checked_at to be set")
	}
}

func TestManager_WorstStatusWins(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		expected string
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []string{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []string{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy beats degraded", []string{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("arogya", "1.0.0", "", zap.NewNop())
			for i, status := range tt.statuses {
				manager.AddChecker(fmt.Sprintf("check-%d", i), staticCheck(status))
			}
			if got := manager.Check(context.Background()).Status; got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestManager_ChecksRunConcurrently(t *testing.T) {
	manager := NewManager("arogya", "1.0.0", "test", zap.NewNop())
	manager.SetTimeout(time.Second)

	ready := make(chan struct{})
	manager.AddChecker("waiter", CheckerFunc(func(ctx context.Context) CheckResult {
		select {
		case <-ready:
			return CheckResult{Status: StatusHealthy}
		case <-ctx.Done():
			return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
		}
	}))
	manager.AddChecker("signaller", CheckerFunc(func(ctx context.Context) CheckResult {
		close(ready)
		return CheckResult{Status: StatusHealthy}
	}))

	if report := manager.Check(context.Background()); report.Status != StatusHealthy {
		t.Errorf("Expected both checks to pass, got %+v", report.Checks)
	}
}

func TestManager_Timeout(t *testing.T) {
	manager := NewManager("arogya", "1.0.0", "test", zap.NewNop())
	manager.SetTimeout(20 * time.Millisecond)
	manager.AddChecker("blocking", CheckerFunc(func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	}))

	start := time.Now()
	report := manager.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("Expected the check timeout to bound the run")
	}
	if report.Status != StatusUnhealthy {
		t.Errorf("Expected status to be unhealthy, got %s", report.Status)
	}
}

func TestManager_HTTPHandler(t *testing.T) {
	tests := []struct {
		name           string
		status         string
		method         string
		expectedStatus int
	}{
		{"healthy", StatusHealthy, http.MethodGet, http.StatusOK},
		{"degraded", StatusDegraded, http.MethodGet, http.StatusOK},
		{"unhealthy", StatusUnhealthy, http.MethodGet, http.StatusServiceUnavailable},
		{"wrong method", StatusHealthy, http.MethodPost, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("arogya", "1.0.0", "test", zap.NewNop())
			manager.AddChecker("dep", staticCheck(tt.status))

			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()
			manager.HTTPHandler()(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status code %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.method != http.MethodGet {
				return
			}

			var report Report
			if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if report.Status != tt.status {
				t.Errorf("Expected status %s, got %s", tt.status, report.Status)
			}
			if report.Checks["dep"].Status != tt.status {
				t.Errorf("Expected dep check %s, got %+v", tt.status, report.Checks)
			}
		})
	}
}

func TestStoreChecker(t *testing.T) {
	result := StoreChecker("sqlite", fakePinger{}).Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy store, got %s", result.Status)
	}
	if result.Details["storage_type"] != "sqlite" {
		t.Errorf("Expected storage type metadata, got %v", result.Details)
	}

	result = StoreChecker("redis", fakePinger{err: errors.New("connection refused")}).Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy store, got %s", result.Status)
	}
	if result.Error == "" {
		t.Error("Expected an error message")
	}
}

func TestProviderChecker(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		state      func() (string, bool)
		expected   string
	}{
		{"no key", false, nil, StatusDegraded},
		{"no breaker", true, nil, StatusHealthy},
		{"closed breaker", true, func() (string, bool) { return "closed", true }, StatusHealthy},
		{"open breaker", true, func() (string, bool) { return "open", true }, StatusDegraded},
		{"breaker not wired", true, func() (string, bool) { return "", false }, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ProviderChecker("gemini", tt.configured, tt.state).Check(context.Background())
			if result.Status != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result.Status)
			}
			if result.Details["provider"] != "gemini" {
				t.Errorf("Expected provider metadata, got %v", result.Details)
			}
		})
	}
}

func TestSessionChecker(t *testing.T) {
	result := SessionChecker(func() int { return 3 }).Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}
	if result.Details["active_sessions"] != 3 {
		t.Errorf("Expected 3 active sessions, got %v", result.Details["active_sessions"])
	}
}
